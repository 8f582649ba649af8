// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// Mode selects how the shell is invoked.
type Mode int

const (
	// Interactive runs the shell with no arguments. It reads its
	// commands from stdin.
	Interactive Mode = iota
	// Batch runs the shell as sh -c command.
	Batch
)

func (m Mode) String() string {
	switch m {
	case Interactive:
		return "interactive"
	case Batch:
		return "batch"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ErrNotStarted is returned by Wait for a Session that was never started.
var ErrNotStarted = errors.New("session not started")

// Triple holds the three connected sockets that become the stdin,
// stdout and stderr of a shell.
type Triple struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Close closes every member that is still open. It is safe to call
// more than once.
func (t *Triple) Close() error {
	var errs error
	for _, f := range []**os.File{&t.Stdin, &t.Stdout, &t.Stderr} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		*f = nil
	}
	return errs
}

// Session is one shell process bound to a Triple.
type Session struct {
	ID      uuid.UUID
	Mode    Mode
	Shell   string
	Command string

	triple Triple
	cmd    *exec.Cmd
	pid    int
	logf   func(string, ...interface{})
}

// New returns a Session that will run shell in the given mode, with
// its standard streams connected to t. command is only used in Batch
// mode. The Session owns t from here on.
func New(shell string, mode Mode, command string, t Triple) *Session {
	return &Session{
		ID:      uuid.New(),
		Mode:    mode,
		Shell:   shell,
		Command: command,
		triple:  t,
		pid:     -1,
		logf:    func(string, ...interface{}) {},
	}
}

// SetLogger sets where the Session reports errors it can not return.
func (s *Session) SetLogger(f func(string, ...interface{})) {
	s.logf = f
}

func (s *Session) command() *exec.Cmd {
	if s.Mode == Batch {
		return exec.Command(s.Shell, "-c", s.Command)
	}
	return exec.Command(s.Shell)
}

// Start creates the shell process. The triple is duplicated onto fds
// 0, 1 and 2 of the child; anything else the parent holds is
// close-on-exec and does not leak into it. The parent's copies of the
// triple are closed before Start returns, whether or not the child
// was created.
func (s *Session) Start() error {
	c := s.command()
	c.Stdin, c.Stdout, c.Stderr = s.triple.Stdin, s.triple.Stdout, s.triple.Stderr
	err := c.Start()
	if cerr := s.triple.Close(); cerr != nil {
		s.logf("session %v: closing parent copies of the connections: %v", s.ID, cerr)
	}
	if err != nil {
		return fmt.Errorf("session %v: starting %q: %w", s.ID, c.Args, err)
	}
	s.cmd = c
	s.pid = c.Process.Pid
	return nil
}

// Wait waits for the shell started by Start. It is only for sessions
// whose owner reaps them directly; a Session started by a Registry is
// reaped by the Registry.
func (s *Session) Wait() error {
	if s.cmd == nil {
		return ErrNotStarted
	}
	return s.cmd.Wait()
}

// Pid returns the process id of the shell, or -1 if it has not started.
// It stays valid after the Registry releases the process.
func (s *Session) Pid() int {
	return s.pid
}

// ExitCode returns the exit status of the shell after Wait, or -1.
func (s *Session) ExitCode() int {
	if s.cmd == nil || s.cmd.ProcessState == nil {
		return -1
	}
	return s.cmd.ProcessState.ExitCode()
}

// release drops the os.Process handle so that the exit status can be
// collected by wait4 instead of by Wait.
func (s *Session) release() {
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Release() //nolint
	}
}

// IsForkError reports whether err means the kernel refused to create
// a new process at all. Any other start failure (missing shell,
// permissions, a failed dup2 in the child) only concerns that one
// child.
func IsForkError(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM)
}
