// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	desc := &TransportDescriptor{
		Name:    "test_protseq_lookup",
		ProtIDs: ProtocolIDs{Floor1: ProtIDPIPE},
		NewConnection: func(isServer bool) Connection {
			return newFakeConn(isServer, "", "")
		},
	}
	Register(desc)

	got, err := Lookup("test_protseq_lookup")
	require.NoError(t, err)
	assert.Same(t, desc, got)
}

func TestLookupUnknownProtseq(t *testing.T) {
	_, err := Lookup("test_protseq_does_not_exist")
	kind, ok := AsKind(err)
	require.True(t, ok)
	assert.Equal(t, KindProtseqNotSupported, kind)
}

func TestRegisterTwicePanics(t *testing.T) {
	Register(&TransportDescriptor{Name: "test_protseq_dup"})
	assert.Panics(t, func() {
		Register(&TransportDescriptor{Name: "test_protseq_dup"})
	})
}

func TestProtocolSequencesIncludesRegistered(t *testing.T) {
	Register(&TransportDescriptor{Name: "test_protseq_enum"})
	assert.Contains(t, ProtocolSequences(), "test_protseq_enum")
}
