// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

// shellc connects to a shell bridge and wires our stdin, stdout and
// stderr to the shell on the other side.
//
// Synopsis:
//
//	shellc [OPTIONS] host stdin_port stdout_port stderr_port
//	shellc [OPTIONS] dnssd:[//domain/_service._tcp][?key=value...]
//
// The second form finds a bridge advertised with shelld -dnssd.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/u-root/sockshell/client"
	"github.com/u-root/sockshell/ds"
	"github.com/u-root/sockshell/server"
)

// target works out where to connect from the arguments.
func target(ctx context.Context, args []string) (string, [3]uint16, error) {
	var ports [3]uint16
	if len(args) == 1 {
		q, err := ds.Parse(args[0])
		if err != nil {
			return "", ports, err
		}
		e, err := ds.Lookup(ctx, q)
		if err != nil {
			return "", ports, err
		}
		return e.Host, e.Ports, nil
	}
	if len(args) != 4 {
		return "", ports, fmt.Errorf("%w: got %d arguments, want a dnssd URI or host and 3 ports", server.ErrUsage, len(args))
	}
	for i := range ports {
		p, err := server.ParsePort(args[i+1])
		if err != nil {
			return "", ports, err
		}
		ports[i] = p
	}
	return args[0], ports, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shellc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	debug := fs.Bool("d", false, "enable debug prints")
	network := fs.String("net", "tcp", "network to use: tcp or vsock")
	timeout := fs.Duration("timeout", 5*time.Second, "time to wait for each connection")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shellc [OPTIONS] host stdin_port stdout_port stderr_port\n")
		fmt.Fprintf(fs.Output(), "       shellc [OPTIONS] dnssd:[//domain/_service._tcp][?key=value...]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	l := log.New(stderr, "", log.LstdFlags)
	if *debug {
		client.V = l.Printf
		ds.Verbose(l.Printf)
	}

	host, ports, err := target(ctx, fs.Args())
	if err != nil {
		l.Printf("shellc: %v", err)
		return 1
	}
	c := client.Command(host, ports).WithNetwork(*network).WithTimeout(*timeout)
	c.Stdin, c.Stdout, c.Stderr = stdin, stdout, stderr
	if err := c.Run(ctx); err != nil {
		l.Printf("shellc: %v", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
