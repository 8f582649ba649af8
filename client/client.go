// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client connects to a shell bridge. It implements as much of
// exec.Cmd as makes sense for a shell whose standard streams are three
// network connections.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mdlayher/vsock"
	"golang.org/x/sync/errgroup"
)

const defaultTimeOut = 5 * time.Second

// V allows debug printing.
var V = func(string, ...interface{}) {}

var roles = [3]string{"stdin", "stdout", "stderr"}

// Cmd is a shell bridge client. As in exec.Cmd, the fields are exposed
// and can be set directly before Dial.
type Cmd struct {
	Host string
	// Ports holds the stdin, stdout and stderr ports.
	Ports   [3]uint16
	Network string
	Timeout time.Duration
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer

	conns   [3]net.Conn
	mu      sync.Mutex
	closers []func() error
}

// Command returns a Cmd for the bridge at host, wired to our own
// standard streams.
func Command(host string, ports [3]uint16) *Cmd {
	return &Cmd{
		Host:    host,
		Ports:   ports,
		Network: "tcp",
		Timeout: defaultTimeOut,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// WithNetwork sets the network, tcp or vsock. For vsock, Host is a
// context id.
func (c *Cmd) WithNetwork(network string) *Cmd {
	c.Network = network
	return c
}

// WithTimeout sets the timeout for each dial.
func (c *Cmd) WithTimeout(d time.Duration) *Cmd {
	c.Timeout = d
	return c
}

func vsockDial(host string, port uint16) (net.Conn, error) {
	cid, err := strconv.ParseUint(host, 0, 32)
	if err != nil {
		return nil, fmt.Errorf("vsock context id %q: %w", host, err)
	}
	return vsock.Dial(uint32(cid), uint32(port), nil)
}

// dialContext runs a dial that knows nothing of contexts, giving up
// when ctx is done or timeout passes. A connection that turns up after
// we gave up is closed.
func dialContext(ctx context.Context, timeout time.Duration, dial func() (net.Conn, error)) (net.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		conn net.Conn
		err  error
	}
	res := make(chan result, 1)
	go func() {
		conn, err := dial()
		res <- result{conn, err}
	}()
	select {
	case r := <-res:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-res; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (c *Cmd) dial(ctx context.Context, port uint16) (net.Conn, error) {
	switch c.Network {
	case "vsock":
		return dialContext(ctx, c.Timeout, func() (net.Conn, error) {
			conn, err := vsockDial(c.Host, port)
			if err != nil {
				return nil, err
			}
			return conn, nil
		})
	case "tcp", "tcp4", "tcp6":
		d := net.Dialer{Timeout: c.Timeout}
		return d.DialContext(ctx, c.Network, net.JoinHostPort(c.Host, strconv.Itoa(int(port))))
	}
	return nil, fmt.Errorf("network %q: %w", c.Network, errors.ErrUnsupported)
}

// Dial connects to the stdin, stdout and stderr ports, in that order,
// which is the order the bridge accepts them in. If any of them fails
// the others are closed.
func (c *Cmd) Dial(ctx context.Context) error {
	for i, p := range c.Ports {
		conn, err := c.dial(ctx, p)
		V("client: dial %s port %d: (%v, %v)", roles[i], p, conn, err)
		if err != nil {
			if cerr := c.Close(); cerr != nil {
				V("client: closing after failed dial: %v", cerr)
			}
			return fmt.Errorf("dialing %s port %d on %s: %w", roles[i], p, c.Host, err)
		}
		c.conns[i] = conn
		c.mu.Lock()
		c.closers = append(c.closers, conn.Close)
		c.mu.Unlock()
	}
	return nil
}

// closeWrite tells the shell there is no more input.
func closeWrite(c net.Conn) error {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Run copies Stdin to the shell and the shell's output to Stdout and
// Stderr until the shell closes its output. It dials first if Dial has
// not been called. Cancelling ctx drops the connections.
func (c *Cmd) Run(ctx context.Context) error {
	if c.conns[0] == nil {
		if err := c.Dial(ctx); err != nil {
			return err
		}
	}
	defer c.Close() //nolint
	stop := context.AfterFunc(ctx, func() {
		c.Close() //nolint
	})
	defer stop()

	// The shell may well exit before we run out of input, so nobody
	// waits for this one.
	go func() {
		if c.Stdin != nil {
			if _, err := io.Copy(c.conns[0], c.Stdin); err != nil {
				V("client: copying stdin: %v", err)
			}
		}
		if err := closeWrite(c.conns[0]); err != nil {
			V("client: closing stdin: %v", err)
		}
	}()

	var g errgroup.Group
	for i, w := range []io.Writer{c.Stdout, c.Stderr} {
		conn, role := c.conns[i+1], roles[i+1]
		if w == nil {
			w = io.Discard
		}
		g.Go(func() error {
			if _, err := io.Copy(w, conn); err != nil {
				return fmt.Errorf("copying %s: %w", role, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close closes all connections. It is safe to call more than once.
func (c *Cmd) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for _, f := range c.closers {
		if e := f(); e != nil && !errors.Is(e, net.ErrClosed) {
			err = multierror.Append(err, e)
		}
	}
	c.closers = nil
	return err
}
