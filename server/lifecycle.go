// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package server

import (
	"context"
	"os"
	"os/signal"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// Notify starts catching SIGINT, SIGTERM and SIGCHLD for s. Signals
// that arrive before Serve are held for it, so a caller that announces
// its pid should call Notify before anything else. Calling it again
// does nothing. Catching goes on until StopNotify.
func (s *Server) Notify() {
	s.notify()
}

// notify returns the channel signals arrive on, and whether this call
// created it.
func (s *Server) notify() (<-chan os.Signal, bool) {
	s.sigMu.Lock()
	defer s.sigMu.Unlock()
	if s.sigs != nil {
		return s.sigs, false
	}
	// SIGCHLDs coalesce, and Reap sweeps up every finished child anyway,
	// so a small buffer loses nothing.
	s.sigs = make(chan os.Signal, 8)
	signal.Notify(s.sigs, unix.SIGINT, unix.SIGTERM, unix.SIGCHLD)
	return s.sigs, true
}

// StopNotify restores the default actions for the signals Notify
// caught.
func (s *Server) StopNotify() {
	s.sigMu.Lock()
	defer s.sigMu.Unlock()
	if s.sigs != nil {
		signal.Stop(s.sigs)
		s.sigs = nil
	}
}

// watch turns signals into actions until ctx is done. SIGINT and
// SIGTERM shut the server down; SIGCHLD reaps finished shells. None of
// that work happens in signal context: the runtime queues the signal
// and this goroutine picks it up.
func (s *Server) watch(ctx context.Context, sigs <-chan os.Signal) error {
	// A shell may have finished before we were listening for SIGCHLD.
	s.reg.Reap()
	if s.watching != nil {
		s.watching()
	}
	for {
		select {
		case <-ctx.Done():
			if s.failed.Load() {
				// Not a graceful shutdown: the marker stays.
				if err := s.Close(); err != nil {
					s.log.Printf("%v", err)
				}
				return nil
			}
			s.Shutdown() //nolint
			return nil
		case sig := <-sigs:
			s.verbose("handle_signal(%v)", sig)
			if sig == unix.SIGCHLD {
				s.reg.Reap()
				continue
			}
			s.Shutdown() //nolint
		}
	}
}

// Shutdown stops an interactive server: it marks the server as
// shutting down, closes all endpoints, which unblocks the accept loop,
// and removes the pid marker. Failures are logged and returned but
// nothing is retried. Calling Shutdown again is harmless.
func (s *Server) Shutdown() error {
	if s.shutdown.CompareAndSwap(false, true) {
		s.verbose("shutting down")
	}
	var errs error
	if err := s.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := removePIDFile(s.cfg.PIDFile); err != nil {
		errs = multierror.Append(errs, err)
	}
	if errs != nil {
		s.log.Printf("shutdown: %v", errs)
	}
	return errs
}

// ShuttingDown reports whether Shutdown has been called.
func (s *Server) ShuttingDown() bool {
	return s.shutdown.Load()
}

// Children returns how many shells have been started and how many of
// them have not been reaped yet.
func (s *Server) Children() (started, live int) {
	return s.reg.Started(), s.reg.Len()
}
