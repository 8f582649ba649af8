// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package session

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Registry starts sessions that nobody waits for, and reaps them.
// Reap collects any terminated child of this process, registered or
// not; the registry only lets it say which session went away.
type Registry struct {
	// mu is held across Start and across a whole Reap sweep, so a child
	// can not be reaped before it has been recorded.
	mu      sync.Mutex
	live    map[int]*Session
	started int
	v       func(string, ...interface{})
	logf    func(string, ...interface{})
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		live: map[int]*Session{},
		v:    func(string, ...interface{}) {},
		logf: func(string, ...interface{}) {},
	}
}

// SetVerbose sets the function used for debug prints.
func (r *Registry) SetVerbose(f func(string, ...interface{})) {
	r.v = f
}

// SetLogger sets the function used to report errors.
func (r *Registry) SetLogger(f func(string, ...interface{})) {
	r.logf = f
}

// Start starts s and records it as live. From then on only Reap
// collects its exit status; s.Wait must not be called.
func (r *Registry) Start(s *Session) error {
	s.SetLogger(r.logf)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := s.Start(); err != nil {
		return err
	}
	pid := s.Pid()
	s.release()
	r.started++
	r.live[pid] = s
	r.v("session %v: started %v shell %q as pid %d", s.ID, s.Mode, s.Shell, pid)
	return nil
}

// Reap collects the exit status of every child that has already
// terminated, and returns how many it collected. It never blocks.
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		// ECHILD: no children at all. pid 0: none have exited yet.
		if err != nil || pid <= 0 {
			break
		}
		n++
		s, ok := r.live[pid]
		if !ok {
			r.v("reaped pid %d (not a session): %s", pid, status(ws))
			continue
		}
		delete(r.live, pid)
		r.v("session %v: pid %d %s", s.ID, pid, status(ws))
	}
	return n
}

// Len returns the number of sessions started and not yet reaped.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Started returns the number of sessions ever started.
func (r *Registry) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}
