// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package session

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// status describes how a reaped child ended.
func status(ws unix.WaitStatus) string {
	switch {
	case ws.Exited():
		return fmt.Sprintf("exited with status %d", ws.ExitStatus())
	case ws.Signaled():
		if ws.CoreDump() {
			return fmt.Sprintf("killed by %v (core dumped)", ws.Signal())
		}
		return fmt.Sprintf("killed by %v", ws.Signal())
	}
	return fmt.Sprintf("changed state (%#x)", uint32(ws))
}
