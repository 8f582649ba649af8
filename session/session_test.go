// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package session

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"testing"

	"golang.org/x/sys/unix"
)

// pipeTriple returns a Triple made of pipes, and the far ends of them.
func pipeTriple(t *testing.T) (Triple, *os.File, *os.File, *os.File) {
	t.Helper()
	inr, inw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe(): %v != nil", err)
	}
	outr, outw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe(): %v != nil", err)
	}
	errr, errw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe(): %v != nil", err)
	}
	t.Cleanup(func() {
		inw.Close()
		outr.Close()
		errr.Close()
	})
	return Triple{Stdin: inr, Stdout: outw, Stderr: errw}, inw, outr, errr
}

func TestMode(t *testing.T) {
	for _, tt := range []struct {
		m    Mode
		want string
	}{
		{Interactive, "interactive"},
		{Batch, "batch"},
		{Mode(7), "Mode(7)"},
	} {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Mode(%d).String(): got %q, want %q", int(tt.m), got, tt.want)
		}
	}
}

func TestBatch(t *testing.T) {
	var tests = []struct {
		cmd    string
		in     string
		stdout string
		stderr string
		code   int
	}{
		{cmd: "echo hi", stdout: "hi\n"},
		{cmd: "echo oops >&2", stderr: "oops\n"},
		{cmd: "cat", in: "ping", stdout: "ping"},
		{cmd: "exit 3", code: 3},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			tr, in, out, errs := pipeTriple(t)
			s := New("/bin/sh", Batch, tt.cmd, tr)
			if err := s.Start(); err != nil {
				t.Fatalf("Start(): %v != nil", err)
			}
			if _, err := io.WriteString(in, tt.in); err != nil {
				t.Fatalf("writing stdin: %v != nil", err)
			}
			in.Close()
			o, err := io.ReadAll(out)
			if err != nil {
				t.Fatalf("reading stdout: %v != nil", err)
			}
			e, err := io.ReadAll(errs)
			if err != nil {
				t.Fatalf("reading stderr: %v != nil", err)
			}
			err = s.Wait()
			var ee *exec.ExitError
			if err != nil && !errors.As(err, &ee) {
				t.Fatalf("Wait(): %v, want nil or an *exec.ExitError", err)
			}
			if string(o) != tt.stdout {
				t.Errorf("stdout: got %q, want %q", o, tt.stdout)
			}
			if string(e) != tt.stderr {
				t.Errorf("stderr: got %q, want %q", e, tt.stderr)
			}
			if got := s.ExitCode(); got != tt.code {
				t.Errorf("ExitCode(): got %d, want %d", got, tt.code)
			}
		})
	}
}

func TestInteractive(t *testing.T) {
	tr, in, out, _ := pipeTriple(t)
	s := New("/bin/sh", Interactive, "", tr)
	if err := s.Start(); err != nil {
		t.Fatalf("Start(): %v != nil", err)
	}
	if _, err := io.WriteString(in, "echo hi\nexit\n"); err != nil {
		t.Fatalf("writing stdin: %v != nil", err)
	}
	o, err := io.ReadAll(out)
	if err != nil {
		t.Fatalf("reading stdout: %v != nil", err)
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait(): %v != nil", err)
	}
	if string(o) != "hi\n" {
		t.Errorf("stdout: got %q, want %q", o, "hi\n")
	}
}

// The parent must not keep the triple open: once the child is gone,
// the reader has to see EOF.
func TestStartClosesTriple(t *testing.T) {
	tr, _, _, _ := pipeTriple(t)
	files := []*os.File{tr.Stdin, tr.Stdout, tr.Stderr}
	s := New("/bin/sh", Batch, "true", tr)
	if err := s.Start(); err != nil {
		t.Fatalf("Start(): %v != nil", err)
	}
	defer s.Wait() //nolint
	for i, f := range files {
		if _, err := f.Stat(); !errors.Is(err, os.ErrClosed) {
			t.Errorf("file %d after Start: got %v, want %v", i, err, os.ErrClosed)
		}
	}
}

func TestStartNoShell(t *testing.T) {
	tr, _, out, _ := pipeTriple(t)
	s := New("/does/not/exist/sh", Interactive, "", tr)
	err := s.Start()
	if err == nil {
		t.Fatalf("Start(): nil != an error")
	}
	if IsForkError(err) {
		t.Errorf("IsForkError(%v): got true, want false", err)
	}
	if s.Pid() != -1 {
		t.Errorf("Pid(): got %d, want -1", s.Pid())
	}
	if err := s.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Wait(): got %v, want %v", err, ErrNotStarted)
	}
	// All copies of the write side are gone, so this must be EOF.
	if b, err := io.ReadAll(out); err != nil || len(b) != 0 {
		t.Errorf("reading stdout: got (%q, %v), want (\"\", nil)", b, err)
	}
}

func TestIsForkError(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want bool
	}{
		{&os.PathError{Op: "fork/exec", Path: "/bin/sh", Err: unix.EAGAIN}, true},
		{&os.PathError{Op: "fork/exec", Path: "/bin/sh", Err: unix.ENOMEM}, true},
		{&os.PathError{Op: "fork/exec", Path: "/bin/sh", Err: unix.ENOENT}, false},
		{&os.PathError{Op: "fork/exec", Path: "/bin/sh", Err: unix.EACCES}, false},
		{nil, false},
	} {
		if got := IsForkError(tt.err); got != tt.want {
			t.Errorf("IsForkError(%v): got %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestTripleCloseTwice(t *testing.T) {
	tr, _, _, _ := pipeTriple(t)
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close(): %v != nil", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close(): %v != nil", err)
	}
}
