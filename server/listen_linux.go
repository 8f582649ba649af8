// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"fmt"
	"net"
	"os"

	"github.com/mdlayher/vsock"
	"golang.org/x/sys/unix"
)

func listen(network string, bind BindPolicy, port uint16, backlog int) (net.Listener, error) {
	switch network {
	case "tcp":
		return listenTCP(bind.ip4(), port, backlog)
	case "vsock":
		// Sadly, vsock is not in the standard Go net package, and its
		// backlog is not ours to pick.
		ln, err := vsock.ListenContextID(bind.vsockCID(), uint32(port), nil)
		if err != nil {
			return nil, err
		}
		return ln, nil
	}
	return nil, fmt.Errorf("%q: %w", network, ErrNetwork)
}

// listenTCP does by hand what net.Listen would do, since net.Listen
// does not let us choose the backlog.
func listenTCP(ip [4]byte, port uint16, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	// Allow immediate reuse of the port.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt(SO_REUSEADDR)", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(port), Addr: ip}); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}
	// FileListener works on its own dup of fd.
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%d", port))
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("net.FileListener: %w", err)
	}
	return ln, nil
}
