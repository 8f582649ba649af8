// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is for building shell servers that speak plain TCP.
//
// A server listens on three ports, one for each of stdin, stdout and
// stderr. A client connects to all three, in that order, and the
// server starts a shell whose standard streams are those three
// connections. Bytes go back and forth raw: there is no framing, no
// pty, and no authentication. Anyone who can reach the ports gets a
// shell, which is why an interactive server binds to loopback only.
//
// There are two kinds of server. An interactive server (Serve) starts
// an interactive shell for every connection triple, never waits for
// them, reaps them on SIGCHLD, and runs until SIGINT or SIGTERM, when
// it closes its endpoints and removes its pid marker file. A batch
// server (RunOnce) accepts one triple, runs sh -c command on it, waits
// for that one shell, and is done.
//
// The basic flow of setting up a server is similar to most such
// servers:
//
//	c, err := server.ParseArgs(session.Interactive, os.Args[1:])
//	s := server.New(c)
//	err = s.Listen()
//	err = s.Announce(os.Stdout)
//	err = s.Serve(ctx)
//
// Every endpoint is all-or-nothing: if one of the three can not be
// set up, the others are closed again. Likewise a connection triple is
// either handed to a shell or closed within the same iteration.
package server
