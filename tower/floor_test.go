// SPDX-License-Identifier: GPL-3.0-or-later

package tower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorEncodeDecodeRoundTrip(t *testing.T) {
	f := Floor{ProtID: ProtIDSMB, RHS: []byte("\\pipe\\demo\x00")}
	encoded := f.Encode(nil)
	assert.Equal(t, f.Size(), len(encoded))

	decoded, n, err := DecodeFloor(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, f, decoded)
}

func TestDecodeFloorTruncated(t *testing.T) {
	_, _, err := DecodeFloor([]byte{0x01})
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = DecodeFloor([]byte{0x01, 0x00, ProtIDSMB, 0x05, 0x00})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeFloorMalformedCountLHS(t *testing.T) {
	_, _, err := DecodeFloor([]byte{0x02, 0x00})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeFloorsSequence(t *testing.T) {
	a := Floor{ProtID: ProtIDTCP, RHS: []byte{0x00, 0x89}}
	b := Floor{ProtID: ProtIDIP, RHS: []byte{127, 0, 0, 1}}
	buf := EncodeFloors(nil, a, b)

	floors, err := DecodeFloors(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, []Floor{a, b}, floors)
}
