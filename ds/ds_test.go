// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ds

import (
	"context"
	"net"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/brutella/dnssd"
)

func TestParseKv(t *testing.T) {
	var tests = []struct {
		in  string
		out map[string]string
	}{
		{"", map[string]string{}},
		{"a=b", map[string]string{"a": "b"}},
		{"a=b,c", map[string]string{"a": "b", "c": "true"}},
		{"a=b=c", map[string]string{"a": "b=c"}},
	}
	for _, tt := range tests {
		if got := ParseKv(tt.in); !reflect.DeepEqual(got, tt.out) {
			t.Errorf("ParseKv(%q): got %v, want %v", tt.in, got, tt.out)
		}
	}
}

func TestParse(t *testing.T) {
	q, err := Parse(DsDefault)
	if err != nil {
		t.Fatalf("Parse(%q): %v != nil", DsDefault, err)
	}
	if q.Type != DefaultService || q.Domain != DefaultDomain {
		t.Errorf("Parse(%q): got %s.%s, want %s.%s", DsDefault, q.Type, q.Domain, DefaultService, DefaultDomain)
	}
	if !reflect.DeepEqual(q.Text["arch"], []string{runtime.GOARCH}) {
		t.Errorf("Parse(%q): arch got %v, want %v", DsDefault, q.Text["arch"], runtime.GOARCH)
	}

	uri := "dnssd://lab/_other._tcp?arch=arm64&arch=riscv64"
	q, err = Parse(uri)
	if err != nil {
		t.Fatalf("Parse(%q): %v != nil", uri, err)
	}
	if q.Type != "_other._tcp" || q.Domain != "lab" {
		t.Errorf("Parse(%q): got %s.%s, want _other._tcp.lab", uri, q.Type, q.Domain)
	}
	if !reflect.DeepEqual(q.Text["arch"], []string{"arm64", "riscv64"}) {
		t.Errorf("Parse(%q): arch got %v, want [arm64 riscv64]", uri, q.Text["arch"])
	}

	if _, err := Parse("tcp://host:1"); err == nil {
		t.Errorf("Parse(%q): nil != an error", "tcp://host:1")
	}
}

func TestTxt(t *testing.T) {
	c := Config{
		Ports:    [3]uint16{1, 2, 3},
		Text:     map[string]string{"stdin": "9", "site": "lab"},
		Sessions: func() int { return 4 },
	}
	txt := c.Txt()
	want := map[string]string{
		"stdin":    "1",
		"stdout":   "2",
		"stderr":   "3",
		"site":     "lab",
		"sessions": "4",
		"arch":     runtime.GOARCH,
		"os":       runtime.GOOS,
	}
	for k, w := range want {
		if txt[k] != w {
			t.Errorf("Txt()[%q]: got %q, want %q", k, txt[k], w)
		}
	}
	if c.Text["stdin"] != "9" {
		t.Errorf("Txt() modified Config.Text: stdin got %q, want 9", c.Text["stdin"])
	}
}

func TestEntry(t *testing.T) {
	e := dnssd.BrowseEntry{
		Name: "box",
		IPs:  []net.IP{net.IPv4(10, 0, 0, 1)},
		Text: map[string]string{"stdin": "1", "stdout": "2", "stderr": "3"},
	}
	got, err := entry(e)
	if err != nil {
		t.Fatalf("entry(%v): %v != nil", e, err)
	}
	if got.Host != "10.0.0.1" || got.Ports != [3]uint16{1, 2, 3} {
		t.Errorf("entry(%v): got %s %v, want 10.0.0.1 [1 2 3]", e, got.Host, got.Ports)
	}

	e.Text["stderr"] = "70000"
	if _, err := entry(e); err == nil {
		t.Errorf("entry with stderr port 70000: nil != an error")
	}
	e.IPs = nil
	if _, err := entry(e); err == nil {
		t.Errorf("entry with no address: nil != an error")
	}
}

func TestLookupNone(t *testing.T) {
	v = t.Logf
	q := Query{
		Type:   "_nobody._tcp",
		Domain: "local",
	}

	// simple lookup with no server and bad service, it better fail
	if _, err := Lookup(context.Background(), q); err == nil {
		t.Fatalf("Lookup of bad service: nil != an error")
	}
}

func TestAdvertise(t *testing.T) {
	if testing.Short() {
		t.Skipf("multicast DNS round trip skipped in short mode")
	}
	v = t.Logf
	c := Config{
		Instance: "sockshell-test",
		Service:  "_sockshelltest._tcp",
		Ports:    [3]uint16{17011, 17012, 17013},
		Sessions: func() int { return 0 },
		Refresh:  100 * time.Millisecond,
	}
	a, err := Advertise(context.Background(), c)
	if err != nil {
		t.Skipf("Advertise: %v; no multicast here?", err)
	}
	defer a.Close()

	q, err := Parse("dnssd:///_sockshelltest._tcp")
	if err != nil {
		t.Fatalf("Parse: %v != nil", err)
	}
	var e *Entry
	for i := 0; i < 10; i++ {
		if e, err = Lookup(context.Background(), q); err == nil {
			break
		}
	}
	if err != nil {
		t.Skipf("Lookup: %v; multicast does not loop back here?", err)
	}
	if e.Ports != c.Ports {
		t.Errorf("Lookup: ports got %v, want %v", e.Ports, c.Ports)
	}
}
