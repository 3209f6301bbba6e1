// SPDX-License-Identifier: GPL-3.0-or-later

package htun

import "github.com/dce-msrpc/transport"

const protseqName = "ncacn_http"

// Register wires ncacn_http into cfg's transport registry, using cfg and
// logger for every connection this package allocates from then on.
// ncacn_http has no server-side listener (spec §4.1, §9): NewListener is
// left nil, and [transport.NewListener] already reports
// [transport.KindProtseqNotSupported] for that case. See
// [github.com/dce-msrpc/transport/pipe.Register] for why registration is a
// function rather than an init.
func Register(cfg *transport.Config, logger transport.SLogger) {
	transport.Register(&transport.TransportDescriptor{
		Name:          protseqName,
		ProtIDs:       transport.ProtocolIDs{Floor1: transport.ProtIDHTTP, Floor2: transport.ProtIDIP},
		NewConnection: NewConnectionFactory(cfg, logger),
		NewListener:   nil,
	})
}
