// SPDX-License-Identifier: GPL-3.0-or-later

// Package protocols is the composition root that wires every protocol
// sequence this module implements into a [*transport.Config]'s registry
// in one call, rather than requiring each caller to remember the full
// set (spec §9).
package protocols

import (
	"github.com/dce-msrpc/transport"
	"github.com/dce-msrpc/transport/htun"
	"github.com/dce-msrpc/transport/pipe"
	"github.com/dce-msrpc/transport/rpctcp"
)

// RegisterAll registers ncacn_np, ncalrpc, ncacn_ip_tcp, and ncacn_http,
// in that order, against cfg's registry. See [pipe.Register] for why
// this can't be an init function.
func RegisterAll(cfg *transport.Config, logger transport.SLogger) {
	pipe.Register(cfg, logger)
	rpctcp.Register(cfg, logger)
	htun.Register(cfg, logger)
}
