// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux && !plan9 && !windows

package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// listen ignores backlog here; the net package picks it.
func listen(network string, bind BindPolicy, port uint16, backlog int) (net.Listener, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("%q: %w", network, ErrNetwork)
	}
	ip := bind.ip4()
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return serr
		},
	}
	addr := net.JoinHostPort(net.IP(ip[:]).String(), strconv.Itoa(int(port)))
	return lc.Listen(context.Background(), "tcp4", addr)
}
