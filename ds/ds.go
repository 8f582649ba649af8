// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ds

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/brutella/dnssd"
)

const (
	// DsDefault is the URI that matches any bridge on the local domain.
	DsDefault = "dnssd:"
	// DefaultService is the DNS-SD service type of a bridge.
	DefaultService = "_sockshell._tcp"
	// DefaultDomain is the DNS-SD domain bridges advertise in.
	DefaultDomain = "local"

	dsTimeout = 1 * time.Second  // query-timeout
	dsUpdate  = 60 * time.Second // server meta-data refresh
)

// PortKeys are the TXT keys holding the stdin, stdout and stderr ports.
var PortKeys = [3]string{"stdin", "stdout", "stderr"}

// v allows debug printing.
var v = func(string, ...interface{}) {}

// Verbose sets the debug print function.
func Verbose(f func(string, ...interface{})) {
	v = f
}

// client relative code

// Query is a simple form dns-sd query.
type Query struct {
	Type   string
	Domain string
	Text   map[string][]string
}

// Entry is a bridge found by Lookup.
type Entry struct {
	Name  string
	Host  string
	Ports [3]uint16
	Text  map[string]string
}

// check that dns-sd response has all required attributes
func required(src map[string]string, req map[string][]string) bool {
	for k := range req {
		if !slices.Contains(req[k], src[k]) {
			return false
		}
	}
	return true
}

// Parse parses a DNS-SD URI of the form
// dnssd://domain/_service._network?reqkey=reqvalue. The domain
// defaults to local and the service to _sockshell._tcp. Unless the
// query says otherwise only bridges for our arch and os match.
func Parse(uri string) (Query, error) {
	result := Query{
		Type:   DefaultService,
		Domain: DefaultDomain,
	}

	u, err := url.Parse(uri)
	if err != nil {
		return result, fmt.Errorf("trouble parsing url %s: %w", uri, err)
	}

	if u.Scheme != "dnssd" {
		return result, fmt.Errorf("%q is not a dns-sd URI", uri)
	}

	// following dns-sd URI conventions from CUPS
	if u.Host != "" {
		result.Domain = u.Host
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		result.Type = p
	}

	result.Text = u.Query()

	if len(result.Text["arch"]) == 0 {
		result.Text["arch"] = []string{runtime.GOARCH}
	}

	if len(result.Text["os"]) == 0 {
		result.Text["os"] = []string{runtime.GOOS}
	}

	return result, nil
}

// entry turns a browse result into an Entry. Entries without an
// address or with missing or bad ports are rejected.
func entry(e dnssd.BrowseEntry) (*Entry, error) {
	if len(e.IPs) == 0 {
		return nil, fmt.Errorf("%s has no address", e.Name)
	}
	if len(e.IPs) > 1 {
		v("WARNING: there was more than one option for address")
	}
	res := &Entry{Name: e.Name, Host: e.IPs[0].String(), Text: e.Text}
	for i, k := range PortKeys {
		p, err := strconv.ParseUint(e.Text[k], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%s: %s port %q: %w", e.Name, k, e.Text[k], err)
		}
		res.Ports[i] = uint16(p)
	}
	return res, nil
}

// Lookup returns the first bridge that satisfies query.
func Lookup(ctx context.Context, query Query) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, dsTimeout)
	defer cancel()

	service := fmt.Sprintf("%s.%s.", strings.Trim(query.Type, "."), strings.Trim(query.Domain, "."))

	v("Browsing for %s", service)

	respCh := make(chan *Entry, 1)

	addFn := func(e dnssd.BrowseEntry) {
		v("%s	Add	%s	%s	%s	%s (%s)", time.Now().Format(time.StampMilli), e.IfaceName, e.Domain, e.Type, e.Name, e.IPs)
		if !required(e.Text, query.Text) {
			return
		}
		res, err := entry(e)
		if err != nil {
			v("%v", err)
			return
		}
		select {
		case respCh <- res:
			cancel()
		default:
		}
	}

	rmvFn := func(e dnssd.BrowseEntry) {
		v("%s	Rmv	%s	%s	%s	%s", time.Now().Format(time.StampMilli), e.IfaceName, e.Domain, e.Type, e.Name)
	}

	err := dnssd.LookupType(ctx, service, addFn, rmvFn)
	select {
	case res := <-respCh:
		return res, nil
	default:
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("browsing for %s: %w", service, err)
	}
	return nil, fmt.Errorf("dnssd found no suitable %s", service)
}

// Server components

// ParseKv parses a DNS-SD key value string, k1=v1,k2=v2, into a map.
// A key with no value is set to "true".
func ParseKv(arg string) map[string]string {
	txt := make(map[string]string)
	if len(arg) == 0 {
		return txt
	}
	ss := strings.Split(arg, ",")
	for _, pair := range ss {
		z := strings.SplitN(pair, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else {
			txt[z[0]] = "true"
		}
	}

	return txt
}

// DefaultInstance is the instance name used when none is given.
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err == nil {
		hostname += "-shelld"
	} else {
		hostname = "shelld"
	}

	return hostname
}

// DefaultTxt fills in arch, os and cores unless already set.
func DefaultTxt(txtFlag map[string]string) {
	if len(txtFlag["arch"]) == 0 {
		txtFlag["arch"] = runtime.GOARCH
	}

	if len(txtFlag["os"]) == 0 {
		txtFlag["os"] = runtime.GOOS
	}

	if len(txtFlag["cores"]) == 0 {
		txtFlag["cores"] = strconv.Itoa(runtime.NumCPU())
	}
}

// Config describes an advertisement.
type Config struct {
	Instance  string
	Domain    string
	Service   string
	Interface string
	// Ports holds the stdin, stdout and stderr ports.
	Ports [3]uint16
	Text  map[string]string
	// Sessions, if set, reports the number of live shells. It is
	// published as "sessions" and refreshed every Refresh.
	Sessions func() int
	Refresh  time.Duration
}

// Txt returns the TXT record for c. The ports always win over
// anything of the same name in c.Text.
func (c *Config) Txt() map[string]string {
	txt := maps.Clone(c.Text)
	if txt == nil {
		txt = make(map[string]string)
	}
	DefaultTxt(txt)
	for i, k := range PortKeys {
		txt[k] = strconv.Itoa(int(c.Ports[i]))
	}
	if c.Sessions != nil {
		txt["sessions"] = strconv.Itoa(c.Sessions())
	}
	return txt
}

// Advertisement is a running DNS-SD responder.
type Advertisement struct {
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Advertise starts answering DNS-SD queries for c until Close is
// called or ctx is done.
func Advertise(ctx context.Context, c Config) (*Advertisement, error) {
	if len(c.Instance) == 0 {
		c.Instance = DefaultInstance()
	}
	if len(c.Domain) == 0 {
		c.Domain = DefaultDomain
	}
	if len(c.Service) == 0 {
		c.Service = DefaultService
	}
	if c.Refresh <= 0 {
		c.Refresh = dsUpdate
	}
	v("Advertising: %s.%s.%s.", strings.Trim(c.Instance, "."), strings.Trim(c.Service, "."), strings.Trim(c.Domain, "."))

	resp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("dnssd newresponder fail: %w", err)
	}

	var ifaces []string
	if len(c.Interface) > 0 {
		ifaces = append(ifaces, c.Interface)
	}

	txt := c.Txt()
	srv, err := dnssd.NewService(dnssd.Config{
		Name:   c.Instance,
		Type:   c.Service,
		Domain: c.Domain,
		Port:   int(c.Ports[0]),
		Ifaces: ifaces,
		Text:   txt,
	})
	if err != nil {
		return nil, fmt.Errorf("advertise: new service fail: %w", err)
	}
	handle, err := resp.Add(srv)
	if err != nil {
		return nil, fmt.Errorf("advertise: adding %s: %w", c.Instance, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &Advertisement{
		Name:   handle.Service().ServiceInstanceName(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		if err := resp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
			v("dns-sd responder for %s: %v", a.Name, err)
			return
		}
		v("dns-sd responder for %s exited", a.Name)
	}()

	if c.Sessions != nil {
		go func() {
			t := time.NewTicker(c.Refresh)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					handle.UpdateText(c.Txt(), resp)
				}
			}
		}()
	}
	return a, nil
}

// Close stops the responder and waits for it to exit.
func (a *Advertisement) Close() {
	v("stopping dns-sd server")
	a.cancel()
	<-a.done
}
