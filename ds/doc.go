// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Decentralized Services (aka ds)
// Inspired by http://man.cat-v.org/inferno/8/cs
//
// This package advertises shell bridges with DNS-SD and finds them
// again. A bridge has three ports, one per standard stream; the SRV
// record carries the stdin port and the TXT record carries all three,
// along with the usual meta-data about the host (arch, os, cores) and
// the number of live shells.
package ds
