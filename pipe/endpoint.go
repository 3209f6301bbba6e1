//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: rpcrt4_protseq_ncalrpc_open_endpoint / rpcrt4_protseq_np_open_endpoint
// in Wine's dlls/rpcrt4/rpc_transport.c.
//

// Package pipe implements the local-pipe connection variants shared by the
// ncacn_np and ncalrpc protocol sequences (spec §4.2.1): endpoint naming,
// a per-process anonymous-endpoint counter, and the platform split between
// a Unix-domain-socket backend and a Windows named-pipe backend.
package pipe

import (
	"fmt"
	"os"
	"sync/atomic"
)

var (
	lrpcNamelessID uint32
	npNamelessID   uint32
)

// NewAnonymousNCALRPCEndpoint synthesizes an anonymous ncalrpc endpoint
// name unique within this process (spec §4.2.1: "LRPC<pid:08x>.<counter:08x>").
func NewAnonymousNCALRPCEndpoint() string {
	id := atomic.AddUint32(&lrpcNamelessID, 1)
	return fmt.Sprintf("LRPC%08x.%08x", os.Getpid(), id)
}

// NewAnonymousNCACNNPEndpoint synthesizes an anonymous ncacn_np endpoint
// name unique within this process (spec §4.2.1). The doubled backslash is
// literal, matching Wine's `"\\\\pipe\\\\%08lx.%03lx"` format string.
func NewAnonymousNCACNNPEndpoint() string {
	id := atomic.AddUint32(&npNamelessID, 1)
	return fmt.Sprintf("\\\\pipe\\\\%08x.%03x", os.Getpid(), id&0xfff)
}

// NCALRPCPipeName returns the OS pipe name an ncalrpc endpoint maps to:
// `\\.\pipe\lrpc\<endpoint>` (spec §4.2.1).
func NCALRPCPipeName(endpoint string) string {
	return `\\.\pipe\lrpc\` + endpoint
}

// NCACNNPPipeName returns the OS pipe name an ncacn_np endpoint maps to:
// `\\.<endpoint>`, where the endpoint itself begins with `\pipe\…`
// (spec §4.2.1).
func NCACNNPPipeName(endpoint string) string {
	return `\\.` + endpoint
}
