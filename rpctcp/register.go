// SPDX-License-Identifier: GPL-3.0-or-later

package rpctcp

import "github.com/dce-msrpc/transport"

// Register wires ncacn_ip_tcp into cfg's transport registry, using cfg
// and logger for every connection and listener this package allocates
// from then on. See [github.com/dce-msrpc/transport/pipe.Register] for
// why this can't be done from an init function.
func Register(cfg *transport.Config, logger transport.SLogger) {
	transport.Register(&transport.TransportDescriptor{
		Name:          protseqName,
		ProtIDs:       transport.ProtocolIDs{Floor1: transport.ProtIDTCP, Floor2: transport.ProtIDIP},
		NewConnection: NewConnectionFactory(cfg, logger),
		NewListener:   NewListenerFactory(cfg, logger),
	})
}
