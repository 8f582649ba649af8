// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

// shelld bridges three TCP ports to shells. Every client that connects
// to the stdin, stdout and stderr ports, in that order, gets a fresh
// shell with its standard streams wired to those connections.
//
// Synopsis:
//
//	shelld [OPTIONS] <verbose_logs: 0 or 1> <stdin_port> <stdout_port> <stderr_port>
//
// Once all three ports are listening shelld prints its pid on stdout.
// SIGINT or SIGTERM closes the ports, removes the pid marker file and
// exits 0. With -dnssd the three ports are also advertised with DNS-SD.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/u-root/sockshell/server"
	"github.com/u-root/sockshell/session"
	"github.com/u-root/u-root/pkg/ulog"
)

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("shelld", flag.ContinueOnError)
	c := server.DefaultConfig(session.Interactive)
	c.RegisterFlags(fs)
	klog := fs.Bool("klog", false, "Log shelld messages in kernel log, not stderr")
	dsf := registerDSFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shelld [OPTIONS] %s\n", server.Usage(session.Interactive))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	var l server.Logger = ulog.Log
	if *klog {
		ulog.KernelLog.Reinit()
		l = ulog.KernelLog
	}
	if err := c.SetArgs(fs.Args()); err != nil {
		l.Printf("shelld: %v", err)
		fs.Usage()
		return 1
	}

	s := server.New(c, server.WithLogger(l))
	// Whoever reads our pid may signal us right away.
	s.Notify()
	defer s.StopNotify()
	if err := s.Listen(); err != nil {
		return 1
	}
	if err := s.Announce(stdout); err != nil {
		l.Printf("shelld: %v", err)
		s.Shutdown() //nolint
		return 1
	}
	ctx := context.Background()
	a, err := advertise(ctx, dsf, s, c.Verbose, l)
	if err != nil {
		l.Printf("shelld: %v", err)
	}
	if a != nil {
		defer a.Close()
	}
	if err := s.Serve(ctx); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}
