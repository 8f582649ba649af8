// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session runs shells whose standard streams are network
// connections.
//
// New(shell, mode, command, triple) creates a Session. The triple is
// three connected sockets, one each for stdin, stdout and stderr. In
// Interactive mode the shell gets no arguments and reads commands
// from the stdin socket; in Batch mode it runs shell -c command.
// Sessions are very similar to exec.Command: Start creates the
// process, and Wait waits for it. Start always closes the parent's
// copies of the triple, since from then on the only holder of the
// connections is the child.
//
// Servers that do not wait for their shells use a Registry instead.
// Registry.Start starts a Session and remembers it by pid, and
// Registry.Reap, usually called on SIGCHLD, collects every child that
// has terminated without blocking, so no zombies accumulate.
package session
