//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/ffi/binary.go
//

// Package tower implements the bit-exact protocol-tower floor codec the
// DCE/MSRPC endpoint mapper uses to describe a binding (spec §6). A tower
// is a sequence of floors; each floor is a length-prefixed (lhs, rhs) byte
// pair. This package only handles the "top" floors specific to each
// protocol sequence — the bottom floors (RPC interface UUID/version) are
// the caller's concern and out of scope here.
package tower

import (
	"encoding/binary"
	"errors"
)

// Well-known EPM floor protocol identifiers (spec §6).
const (
	ProtIDSMB     byte = 0x0f
	ProtIDNetBIOS byte = 0x0c
	ProtIDPIPE    byte = 0x2f
	ProtIDTCP     byte = 0x07
	ProtIDIP      byte = 0x09
	ProtIDHTTP    byte = 0x1f
)

// ErrTruncated is returned when a byte slice ends before a length-prefixed
// field it announced.
var ErrTruncated = errors.New("tower: truncated floor")

// ErrMalformed is returned when a floor's count_lhs is not 1 (every floor
// this package produces and consumes carries a single protocol-identifier
// byte on the left-hand side).
var ErrMalformed = errors.New("tower: malformed floor")

// Floor is one `{count_lhs, lhs, count_rhs, rhs}` record of a protocol
// tower (spec §3). Every floor this package handles has count_lhs == 1
// and a single protocol-identifier byte as its lhs.
type Floor struct {
	ProtID byte
	RHS    []byte
}

// Encode appends the bit-exact wire representation of f to buf and
// returns the extended slice.
func (f Floor) Encode(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = append(buf, f.ProtID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.RHS)))
	buf = append(buf, f.RHS...)
	return buf
}

// Size returns the number of bytes [Floor.Encode] would append.
func (f Floor) Size() int {
	return 2 + 1 + 2 + len(f.RHS)
}

// DecodeFloor decodes the floor at the start of b, returning it along with
// the number of bytes consumed.
func DecodeFloor(b []byte) (Floor, int, error) {
	if len(b) < 2 {
		return Floor{}, 0, ErrTruncated
	}
	countLHS := binary.LittleEndian.Uint16(b)
	off := 2
	if countLHS != 1 {
		return Floor{}, 0, ErrMalformed
	}
	if len(b) < off+1 {
		return Floor{}, 0, ErrTruncated
	}
	protID := b[off]
	off++

	if len(b) < off+2 {
		return Floor{}, 0, ErrTruncated
	}
	countRHS := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2

	if len(b) < off+countRHS {
		return Floor{}, 0, ErrTruncated
	}
	rhs := make([]byte, countRHS)
	copy(rhs, b[off:off+countRHS])
	off += countRHS

	return Floor{ProtID: protID, RHS: rhs}, off, nil
}

// EncodeFloors appends every floor in floors to buf in order.
func EncodeFloors(buf []byte, floors ...Floor) []byte {
	for _, f := range floors {
		buf = f.Encode(buf)
	}
	return buf
}

// SizeFloors returns the total encoded size of floors.
func SizeFloors(floors ...Floor) int {
	n := 0
	for _, f := range floors {
		n += f.Size()
	}
	return n
}

// DecodeFloors decodes exactly count floors from the start of b.
func DecodeFloors(b []byte, count int) ([]Floor, error) {
	floors := make([]Floor, 0, count)
	for i := 0; i < count; i++ {
		f, n, err := DecodeFloor(b)
		if err != nil {
			return nil, err
		}
		floors = append(floors, f)
		b = b[n:]
	}
	return floors, nil
}
