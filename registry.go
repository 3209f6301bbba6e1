// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"sync"

	"github.com/dce-msrpc/transport/tower"
)

// ProtocolIDs holds the two endpoint-mapper protocol identifiers used to
// build protocol-tower floors for a transport (spec §6). The second ID is
// zero when the transport's tower has only one floor (ncalrpc). Values are
// drawn from [tower.ProtIDSMB] and friends.
type ProtocolIDs struct {
	Floor1 byte
	Floor2 byte
}

// Well-known EPM floor protocol identifiers (spec §6), re-exported from
// [tower] for callers that only need the registry and not the codec.
const (
	ProtIDSMB     = tower.ProtIDSMB
	ProtIDNetBIOS = tower.ProtIDNetBIOS
	ProtIDPIPE    = tower.ProtIDPIPE
	ProtIDTCP     = tower.ProtIDTCP
	ProtIDIP      = tower.ProtIDIP
	ProtIDHTTP    = tower.ProtIDHTTP
)

// TransportDescriptor is the vtable entry for one protocol sequence: the
// name, its tower protocol identifiers, and the factory used to allocate
// connections for it. Sub-packages register one descriptor per transport
// by calling [Register] from a package-level Register(cfg, logger) function
// (unlike database/sql drivers, connections need a [*Config] and [SLogger]
// supplied by the caller, so registration can't happen from an init), which
// keeps the root package free of import-cycle-inducing references to
// transport-specific sub-packages.
type TransportDescriptor struct {
	// Name is the protocol-sequence string, e.g. "ncacn_ip_tcp".
	Name string

	// ProtIDs are the EPM floor protocol identifiers for this transport.
	ProtIDs ProtocolIDs

	// NewConnection allocates a fresh, unopened [Connection] for the given
	// role. isServer selects server-side (listening/accepting) behavior.
	NewConnection func(isServer bool) Connection

	// NewListener allocates a [ProtseqListener] for this transport, or nil
	// if the transport has no server-side listener (ncacn_http per §4.1).
	NewListener func() ProtseqListener
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*TransportDescriptor{}
)

// Register adds desc to the transport registry. Calling Register twice
// with the same [TransportDescriptor.Name] panics: this indicates a
// programming error (two packages claiming the same protocol sequence),
// not a runtime condition a caller can recover from.
func Register(desc *TransportDescriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[desc.Name]; exists {
		panic(fmt.Sprintf("transport: protocol sequence %q registered twice", desc.Name))
	}
	registry[desc.Name] = desc
}

// Lookup resolves a protocol-sequence name to its [*TransportDescriptor].
// Lookups are case-sensitive, matching spec §4.1. Unknown names return a
// [*Error] of [KindProtseqNotSupported].
func Lookup(name string) (*TransportDescriptor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	desc, ok := registry[name]
	if !ok {
		return nil, NewError(KindProtseqNotSupported, name, nil)
	}
	return desc, nil
}

// ProtocolSequences returns the names of every registered transport, in no
// particular order.
func ProtocolSequences() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
