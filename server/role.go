// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import "fmt"

// Role names the standard stream a listening endpoint feeds.
type Role int

const (
	Stdin Role = iota
	Stdout
	Stderr
)

// Roles lists every Role in the order connections are accepted.
var Roles = [...]Role{Stdin, Stdout, Stderr}

func (r Role) String() string {
	switch r {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}
