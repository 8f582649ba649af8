// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

// shellexec runs one command for one client. It listens on three TCP
// ports, waits for a single client to connect to the stdin, stdout and
// stderr ports in that order, runs the command with sh -c on those
// connections, and exits when the command does.
//
// Synopsis:
//
//	shellexec [OPTIONS] <verbose_logs: 0 or 1> <stdin_port> <stdout_port> <stderr_port> <command>
//
// The exit status of the command is logged; shellexec itself exits 0
// unless it could not run the command at all.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/u-root/sockshell/server"
	"github.com/u-root/sockshell/session"
	"github.com/u-root/u-root/pkg/ulog"
)

func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("shellexec", flag.ContinueOnError)
	c := server.DefaultConfig(session.Batch)
	c.RegisterFlags(fs)
	klog := fs.Bool("klog", false, "Log shellexec messages in kernel log, not stderr")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shellexec [OPTIONS] %s\n", server.Usage(session.Batch))
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
		l.Printf("shellexec: %v", err)
		fs.Usage()
		return 1
	}

	s := server.New(c, server.WithLogger(l))
	if err := s.Listen(); err != nil {
		return 1
	}
	sess, err := s.RunOnce(ctx)
	if err != nil {
		return 1
	}
	if code := sess.ExitCode(); code != 0 {
		l.Printf("shellexec: %q exited with status %d", c.Command, code)
	}
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}
