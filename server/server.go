// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/u-root/sockshell/session"
	"github.com/u-root/u-root/pkg/ulog"
	"golang.org/x/sync/errgroup"
)

// ErrMode is returned when a server is run in the wrong mode.
var ErrMode = errors.New("wrong mode")

// Logger is where a Server reports errors. ulog.Log, ulog.KernelLog
// and ulogtest.Logger all qualify.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Server bridges three listening endpoints to shells.
type Server struct {
	cfg       *Config
	log       Logger
	v         func(string, ...interface{})
	endpoints [3]*Endpoint
	reg       *session.Registry
	shutdown  atomic.Bool
	// failed is set when Serve stops for a reason other than shutdown.
	failed atomic.Bool

	sigMu sync.Mutex
	sigs  chan os.Signal

	spawn func(*session.Session) error

	// test hooks.
	started  func(*session.Session)
	watching func()
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sends error messages to l instead of ulog.Log.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithVerbose sends debug prints to f, whatever Config.Verbose says.
func WithVerbose(f func(string, ...interface{})) Option {
	return func(s *Server) {
		s.v = f
	}
}

// New returns a Server for c. Nothing is opened until Listen.
func New(c *Config, opts ...Option) *Server {
	s := &Server{cfg: c, log: ulog.Log, reg: session.NewRegistry()}
	for _, o := range opts {
		o(s)
	}
	if s.v == nil {
		s.v = func(string, ...interface{}) {}
		if c.Verbose {
			s.v = s.log.Printf
		}
	}
	s.reg.SetVerbose(s.v)
	s.reg.SetLogger(s.log.Printf)
	s.spawn = s.reg.Start
	return s
}

func (s *Server) verbose(f string, a ...interface{}) {
	s.v(f, a...)
}

// Listen creates the stdin, stdout and stderr endpoints, in that
// order. Either all three are listening when it returns nil, or none
// is.
func (s *Server) Listen() error {
	if err := s.cfg.Validate(); err != nil {
		s.log.Printf("%v", err)
		return err
	}
	for _, r := range Roles {
		e, err := Listen(s.cfg, r)
		if err != nil {
			s.log.Printf("%v", err)
			if cerr := s.Close(); cerr != nil {
				s.log.Printf("closing endpoints after failure: %v", cerr)
			}
			return err
		}
		s.endpoints[r] = e
		s.verbose("%v: %s server listening on %v", r, s.cfg.Network, e.Addr())
	}
	return nil
}

// Addr returns the address of the endpoint for r, or nil before Listen.
func (s *Server) Addr(r Role) net.Addr {
	if e := s.endpoints[r]; e != nil {
		return e.Addr()
	}
	return nil
}

// Ports returns the stdin, stdout and stderr ports as bound, which
// differ from the configured ones where those were 0.
func (s *Server) Ports() ([3]uint16, error) {
	var ports [3]uint16
	for _, r := range Roles {
		e := s.endpoints[r]
		if e == nil {
			return ports, fmt.Errorf("%v endpoint: %w", r, net.ErrClosed)
		}
		p, err := e.BoundPort()
		if err != nil {
			return ports, fmt.Errorf("%v endpoint: %w", r, err)
		}
		ports[r] = p
	}
	return ports, nil
}

// Close closes the endpoints, last created first. It does not remove
// the pid marker; see Shutdown for that.
func (s *Server) Close() error {
	var errs error
	for i := len(s.endpoints) - 1; i >= 0; i-- {
		e := s.endpoints[i]
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing %v endpoint: %w", e.Role, err))
		}
	}
	return errs
}

// Announce tells whoever started us that we are ready: our pid, on a
// line of its own, once every endpoint is listening.
func (s *Server) Announce(w io.Writer) error {
	pid := os.Getpid()
	if _, err := fmt.Fprintf(w, "%d\n", pid); err != nil {
		return fmt.Errorf("announcing pid %d: %w", pid, err)
	}
	if s.cfg.WritePID {
		return writePIDFile(s.cfg.PIDFile, pid)
	}
	return nil
}

// acceptTriple accepts one connection on each endpoint, stdin first.
// If any accept fails, the connections accepted so far are closed.
func (s *Server) acceptTriple() (session.Triple, error) {
	var t session.Triple
	slots := [...]**os.File{&t.Stdin, &t.Stdout, &t.Stderr}
	for _, r := range Roles {
		f, addr, err := s.endpoints[r].Accept()
		if err != nil {
			if cerr := t.Close(); cerr != nil {
				s.log.Printf("closing partial connection triple: %v", cerr)
			}
			return session.Triple{}, fmt.Errorf("%v accept: %w", r, err)
		}
		s.verbose("%v: accepted connection from %v on fd %d", r, addr, f.Fd())
		*slots[r] = f
	}
	return t, nil
}

// Serve runs an interactive server until it is shut down, either by
// SIGINT or SIGTERM, by a call to Shutdown, or by cancelling ctx. Each
// connection triple gets its own shell, which Serve does not wait
// for; finished shells are reaped on SIGCHLD.
//
// If Notify has not been called, Serve catches signals itself while it
// runs; signals delivered before that take their default action.
//
// Serve returns nil after a graceful shutdown. It returns an error if
// the kernel refuses to create processes, since without a worker the
// server has nothing to do with a client. The endpoints are closed
// then but the pid marker is left in place.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.Mode != session.Interactive {
		return fmt.Errorf("Serve: %w: %v", ErrMode, s.cfg.Mode)
	}
	sigs, fresh := s.notify()
	if fresh {
		defer s.StopNotify()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.watch(ctx, sigs)
	})
	g.Go(func() error {
		defer cancel()
		return s.acceptLoop()
	})
	err := g.Wait()
	s.verbose("server finished")
	return err
}

func (s *Server) acceptLoop() error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = time.Second

	s.verbose("Waiting for incoming connection")
	for !s.shutdown.Load() {
		t, err := s.acceptTriple()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				break
			}
			d := b.NextBackOff()
			s.log.Printf("%v; retrying in %v", err, d)
			time.Sleep(d)
			continue
		}
		b.Reset()
		s.verbose("Client connected")

		sess := session.New(s.cfg.Shell, session.Interactive, "", t)
		if err := s.spawn(sess); err != nil {
			if session.IsForkError(err) {
				s.log.Printf("process fork failed: %v", err)
				s.failed.Store(true)
				if cerr := s.Close(); cerr != nil {
					s.log.Printf("%v", cerr)
				}
				return fmt.Errorf("process fork failed: %w", err)
			}
			s.log.Printf("%v", err)
			continue
		}
		if s.started != nil {
			s.started(sess)
		}
	}
	return nil
}

// RunOnce runs a batch server: it accepts a single connection triple,
// runs the command on it, waits for the shell to exit, and closes the
// endpoints. Cancelling ctx closes the endpoints, so a RunOnce still
// waiting for connections fails.
//
// A shell that exits with a non-zero status is not an error; see
// Session.ExitCode.
func (s *Server) RunOnce(ctx context.Context) (*session.Session, error) {
	if s.cfg.Mode != session.Batch {
		return nil, fmt.Errorf("RunOnce: %w: %v", ErrMode, s.cfg.Mode)
	}
	defer func() {
		if err := s.Close(); err != nil {
			s.log.Printf("%v", err)
		}
	}()
	stop := context.AfterFunc(ctx, func() {
		s.Close() //nolint
	})
	defer stop()

	t, err := s.acceptTriple()
	if err != nil {
		s.log.Printf("%v", err)
		return nil, err
	}
	s.verbose("Client connected")
	sess := session.New(s.cfg.Shell, session.Batch, s.cfg.Command, t)
	sess.SetLogger(s.log.Printf)
	if err := sess.Start(); err != nil {
		s.log.Printf("%v", err)
		return nil, err
	}
	s.verbose("session %v: started %q as pid %d", sess.ID, s.cfg.Command, sess.Pid())
	err = sess.Wait()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		err = nil
	}
	if err != nil {
		s.log.Printf("session %v: waiting for pid %d: %v", sess.ID, sess.Pid(), err)
		return sess, err
	}
	s.verbose("session %v: pid %d exited with status %d", sess.ID, sess.Pid(), sess.ExitCode())
	return sess, nil
}
