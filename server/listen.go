// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Endpoint is a listening socket serving one Role. It lives as long
// as the server and serves every connection for that role.
type Endpoint struct {
	Role Role
	Port uint16

	ln   net.Listener
	once sync.Once
}

// Listen creates the endpoint for role as described by c. An Endpoint
// is either fully set up or not created at all; on error nothing is
// left open.
func Listen(c *Config, role Role) (*Endpoint, error) {
	port := c.Ports[role]
	ln, err := listen(c.Network, c.Bind, port, c.Backlog)
	if err != nil {
		return nil, fmt.Errorf("%v endpoint on %s port %d: %w", role, c.Network, port, err)
	}
	return &Endpoint{Role: role, Port: port, ln: ln}, nil
}

// Addr returns the address the endpoint listens on. It carries the
// real port when the configured one was 0.
func (e *Endpoint) Addr() net.Addr {
	return e.ln.Addr()
}

// BoundPort returns the port the endpoint actually listens on.
func (e *Endpoint) BoundPort() (uint16, error) {
	_, p, err := net.SplitHostPort(e.Addr().String())
	if err != nil {
		return 0, err
	}
	return ParsePort(p)
}

// Close shuts the endpoint down, which makes a blocked Accept return.
// Only the first call does anything; later calls return nil.
func (e *Endpoint) Close() error {
	var err error
	e.once.Do(func() { err = e.ln.Close() })
	return err
}

// Accept waits for a peer to connect. It returns the connection as a
// blocking, close-on-exec *os.File, ready to become a standard stream
// of a child, and the peer's address.
func (e *Endpoint) Accept() (*os.File, net.Addr, error) {
	c, err := e.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	defer c.Close()
	f, err := connFile(c)
	if err != nil {
		return nil, nil, fmt.Errorf("%v: connection from %v: %w", e.Role, c.RemoteAddr(), err)
	}
	return f, c.RemoteAddr(), nil
}

// connFile duplicates the descriptor under c. The net package keeps
// its sockets non-blocking, which a shell reading stdin would not
// survive, so the duplicate is put back into blocking mode.
func connFile(c net.Conn) (*os.File, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("%T has no descriptor: %w", c, errors.ErrUnsupported)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var (
		nfd  int
		derr error
	)
	if err := rc.Control(func(fd uintptr) {
		nfd, derr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, err
	}
	if derr != nil {
		return nil, os.NewSyscallError("fcntl(F_DUPFD_CLOEXEC)", derr)
	}
	if err := unix.SetNonblock(nfd, false); err != nil {
		unix.Close(nfd)
		return nil, os.NewSyscallError("fcntl(F_SETFL)", err)
	}
	return os.NewFile(uintptr(nfd), c.RemoteAddr().String()), nil
}
