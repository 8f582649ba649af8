// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/u-root/sockshell/server"
	"github.com/u-root/sockshell/session"
)

func TestTarget(t *testing.T) {
	var tests = []struct {
		args  []string
		host  string
		ports [3]uint16
		err   error
	}{
		{args: []string{"h", "1", "2", "3"}, host: "h", ports: [3]uint16{1, 2, 3}},
		{args: []string{"h", "1", "2"}, err: server.ErrUsage},
		{args: []string{"h", "1", "2", "x"}, err: strconv.ErrSyntax},
		{args: []string{"h", "1", "2", "65536"}, err: strconv.ErrRange},
	}
	for _, tt := range tests {
		host, ports, err := target(context.Background(), tt.args)
		if !errors.Is(err, tt.err) {
			t.Errorf("target(%q): got %v, want %v", tt.args, err, tt.err)
			continue
		}
		if tt.err == nil && (host != tt.host || ports != tt.ports) {
			t.Errorf("target(%q): got (%q, %v), want (%q, %v)", tt.args, host, ports, tt.host, tt.ports)
		}
	}
	if _, _, err := target(context.Background(), []string{"notauri"}); err == nil {
		t.Errorf("target(%q): nil != an error", "notauri")
	}
}

func TestRun(t *testing.T) {
	c := server.DefaultConfig(session.Batch)
	c.Bind = server.Loopback
	c.Command = "cat; echo bye >&2"
	c.PIDFile = filepath.Join(t.TempDir(), "pid")
	s := server.New(c)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v != nil", err)
	}
	defer s.Close()
	ports, err := s.Ports()
	if err != nil {
		t.Fatalf("Ports: %v != nil", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()

	args := []string{"-timeout", "2s", "127.0.0.1"}
	for _, p := range ports {
		args = append(args, strconv.Itoa(int(p)))
	}
	var stdout, stderr bytes.Buffer
	if got := run(context.Background(), args, strings.NewReader("ping\n"), &stdout, &stderr); got != 0 {
		t.Fatalf("run(%q): got %d, want 0; stderr %q", args, got, stderr.String())
	}
	if err := <-done; err != nil {
		t.Fatalf("RunOnce: %v != nil", err)
	}
	if stdout.String() != "ping\n" {
		t.Errorf("stdout: got %q, want %q", stdout.String(), "ping\n")
	}
	if stderr.String() != "bye\n" {
		t.Errorf("stderr: got %q, want %q", stderr.String(), "bye\n")
	}
}

func TestRunBadArgs(t *testing.T) {
	var stderr bytes.Buffer
	if got := run(context.Background(), []string{"-nosuchflag"}, nil, nil, &stderr); got != 1 {
		t.Errorf("run with a bad flag: got %d, want 1", got)
	}
	if got := run(context.Background(), []string{"h", "1"}, nil, nil, &stderr); got != 1 {
		t.Errorf("run with too few arguments: got %d, want 1", got)
	}
}
