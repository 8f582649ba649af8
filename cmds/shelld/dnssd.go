// Copyright 2018-2025 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9 && !windows

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/u-root/sockshell/ds"
	"github.com/u-root/sockshell/server"
)

type dsFlags struct {
	enabled  *bool
	instance *string
	domain   *string
	service  *string
	iface    *string
	txt      *string
}

func registerDSFlags(fs *flag.FlagSet) *dsFlags {
	return &dsFlags{
		enabled:  fs.Bool("dnssd", false, "advertise the ports using DNSSD"),
		instance: fs.String("dsInstance", "", "DNSSD instance name"),
		domain:   fs.String("dsDomain", ds.DefaultDomain, "DNSSD domain"),
		service:  fs.String("dsService", ds.DefaultService, "DNSSD Service Type"),
		iface:    fs.String("dsInterface", "", "DNSSD Interface"),
		txt:      fs.String("dsTxt", "", "DNSSD key-value pair string parameterizing advertisement"),
	}
}

// advertise publishes the ports s listens on. A failure here does not
// stop the server; it only means nobody can find it by name.
func advertise(ctx context.Context, f *dsFlags, s *server.Server, verbose bool, l server.Logger) (*ds.Advertisement, error) {
	if !*f.enabled {
		return nil, nil
	}
	if verbose {
		ds.Verbose(l.Printf)
	}
	ports, err := s.Ports()
	if err != nil {
		return nil, fmt.Errorf("advertising: %w", err)
	}
	return ds.Advertise(ctx, ds.Config{
		Instance:  *f.instance,
		Domain:    *f.domain,
		Service:   *f.service,
		Interface: *f.iface,
		Ports:     ports,
		Text:      ds.ParseKv(*f.txt),
		Sessions: func() int {
			_, live := s.Children()
			return live
		},
	})
}
