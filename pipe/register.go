// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import "github.com/dce-msrpc/transport"

// Register wires ncacn_np and ncalrpc into cfg's transport registry,
// using cfg and logger for every connection and listener this package
// allocates from then on.
//
// Unlike database/sql drivers, this package cannot self-register from an
// init function: connections need a [*transport.Config] and
// [transport.SLogger] supplied by the caller, not a zero value. Call
// Register once from the program's composition root.
func Register(cfg *transport.Config, logger transport.SLogger) {
	for _, variant := range []Variant{VariantNCALRPC, VariantNCACNNP} {
		transport.Register(&transport.TransportDescriptor{
			Name:          variant.protseqName(),
			ProtIDs:       protIDs(variant),
			NewConnection: NewConnectionFactory(variant, cfg, logger),
			NewListener:   NewListenerFactory(variant, cfg, logger),
		})
	}
}

func protIDs(variant Variant) transport.ProtocolIDs {
	if variant == VariantNCACNNP {
		return transport.ProtocolIDs{Floor1: transport.ProtIDSMB, Floor2: transport.ProtIDNetBIOS}
	}
	return transport.ProtocolIDs{Floor1: transport.ProtIDPIPE}
}
