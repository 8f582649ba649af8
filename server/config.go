// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package server

import (
	"errors"
	"flag"
	"fmt"
	"math"

	"github.com/u-root/sockshell/session"
)

const (
	// DefaultShell is the shell started for every connection triple.
	DefaultShell = "/bin/sh"
	// DefaultPIDFile is where the test harness keeps the server's pid.
	DefaultPIDFile = "/data/local/tmp/process.pid"

	interactiveBacklog = 100
	batchBacklog       = 1

	// vsock context ids.
	vsockLocal = 1
	vsockAny   = math.MaxUint32
)

var (
	// ErrConfig is wrapped by every error from Config.Validate.
	ErrConfig = errors.New("invalid configuration")
	// ErrNetwork is returned for networks other than tcp and vsock.
	ErrNetwork = errors.New("unsupported network")
)

// BindPolicy says which local address the endpoints bind to.
type BindPolicy int

const (
	// Loopback binds 127.0.0.1; only local peers can get a shell.
	Loopback BindPolicy = iota
	// Wildcard binds 0.0.0.0; any peer that can reach the host can.
	Wildcard
)

func (b BindPolicy) String() string {
	switch b {
	case Loopback:
		return "loopback"
	case Wildcard:
		return "any"
	}
	return fmt.Sprintf("BindPolicy(%d)", int(b))
}

// Set implements flag.Value.
func (b *BindPolicy) Set(s string) error {
	switch s {
	case "loopback", "localhost", "127.0.0.1":
		*b = Loopback
	case "any", "wildcard", "0.0.0.0":
		*b = Wildcard
	default:
		return fmt.Errorf("bind policy %q: want loopback or any", s)
	}
	return nil
}

func (b BindPolicy) ip4() [4]byte {
	if b == Wildcard {
		return [4]byte{0, 0, 0, 0}
	}
	return [4]byte{127, 0, 0, 1}
}

func (b BindPolicy) vsockCID() uint32 {
	if b == Wildcard {
		return vsockAny
	}
	return vsockLocal
}

// Config is everything a Server needs to know. There is no other
// state shared between the parts of a server.
type Config struct {
	Mode    session.Mode
	Verbose bool
	// Ports is indexed by Role. Port 0 asks the kernel to pick one.
	Ports [3]uint16
	// Command is what a Batch server runs with sh -c.
	Command string
	// Network is "tcp" or "vsock".
	Network string
	Bind    BindPolicy
	Backlog int
	Shell   string
	// PIDFile is removed on graceful shutdown. If WritePID is set the
	// server writes it too, otherwise whoever reads the pid announced
	// on stdout is expected to.
	PIDFile  string
	WritePID bool
}

// DefaultConfig returns the configuration for a mode. An interactive
// server takes many clients, one after another, on loopback only; a
// batch server takes exactly one, on any address.
func DefaultConfig(mode session.Mode) *Config {
	c := &Config{
		Mode:    mode,
		Network: "tcp",
		Bind:    Loopback,
		Backlog: interactiveBacklog,
		Shell:   DefaultShell,
		PIDFile: DefaultPIDFile,
	}
	if mode == session.Batch {
		c.Bind = Wildcard
		c.Backlog = batchBacklog
	}
	return c
}

// RegisterFlags adds the optional switches that tune c to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Var(&c.Bind, "bind", "address to bind: loopback or any")
	fs.IntVar(&c.Backlog, "backlog", c.Backlog, "pending connection backlog per endpoint")
	fs.StringVar(&c.Shell, "shell", c.Shell, "shell to run")
	fs.StringVar(&c.Network, "net", c.Network, "network to use: tcp or vsock")
	if c.Mode == session.Interactive {
		fs.StringVar(&c.PIDFile, "pidfile", c.PIDFile, "pid marker file removed on graceful shutdown")
		fs.BoolVar(&c.WritePID, "writepid", c.WritePID, "write the pid marker file, not just announce the pid on stdout")
	}
}

// Validate checks c for settings no server can run with.
func (c *Config) Validate() error {
	switch c.Network {
	case "tcp", "vsock":
	default:
		return fmt.Errorf("%w: network %q: %w", ErrConfig, c.Network, ErrNetwork)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("%w: backlog %d < 1", ErrConfig, c.Backlog)
	}
	if c.Shell == "" {
		return fmt.Errorf("%w: no shell", ErrConfig)
	}
	if c.Mode == session.Batch && c.Command == "" {
		return fmt.Errorf("%w: batch mode needs a command", ErrConfig)
	}
	for i, r := range Roles {
		for _, o := range Roles[i+1:] {
			if c.Ports[r] != 0 && c.Ports[r] == c.Ports[o] {
				return fmt.Errorf("%w: %v and %v share port %d", ErrConfig, r, o, c.Ports[r])
			}
		}
	}
	return nil
}
