// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package server

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/u-root/sockshell/session"
)

// ErrUsage is wrapped by errors about the number of arguments.
var ErrUsage = errors.New("usage")

// Usage returns the argument synopsis for a mode.
func Usage(mode session.Mode) string {
	if mode == session.Batch {
		return "<verbose_logs: 0 or 1> <stdin_socket_port> <stdout_socket_port> <stderr_socket_port> <command>"
	}
	return "<verbose_logs: 0 or 1> <stdin_socket_port> <stdout_socket_port> <stderr_socket_port>"
}

// ParsePort parses a port number. Only plain decimal digits are
// accepted: no sign, no spaces, no base prefix, nothing trailing.
func ParsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port number provided: %q: %w", s, err)
	}
	return uint16(p), nil
}

// ParseVerbose parses the verbose logs argument, which is 0 or 1.
func ParseVerbose(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("invalid verbose logs value %q: want 0 or 1", s)
}

// ParseArgs returns the default Config for mode with the positional
// arguments applied.
func ParseArgs(mode session.Mode, args []string) (*Config, error) {
	c := DefaultConfig(mode)
	if err := c.SetArgs(args); err != nil {
		return nil, err
	}
	return c, nil
}

// SetArgs applies the positional arguments to c: verbosity, the
// stdin, stdout and stderr ports, and for Batch the command. c is
// left untouched if any of them is bad.
func (c *Config) SetArgs(args []string) error {
	want := 4
	if c.Mode == session.Batch {
		want = 5
	}
	if len(args) != want {
		return fmt.Errorf("%w: got %d arguments, want %d: %s", ErrUsage, len(args), want, Usage(c.Mode))
	}
	verbose, err := ParseVerbose(args[0])
	if err != nil {
		return err
	}
	var ports [3]uint16
	for i, r := range Roles {
		p, err := ParsePort(args[i+1])
		if err != nil {
			return fmt.Errorf("%v port: %w", r, err)
		}
		ports[r] = p
	}
	c.Verbose, c.Ports = verbose, ports
	if c.Mode == session.Batch {
		c.Command = args[4]
	}
	return nil
}
