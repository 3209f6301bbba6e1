//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the connect-header/flow-control packet shapes described
// in Wine's dlls/rpcrt4/rpc_transport.c HTTP_Authorize/send_echo_request
// code paths (see original_source), re-expressed as Go structs.
//

// Package htun implements the ncacn_http protocol sequence: RPC tunnelled
// over two long-lived HTTP requests (spec §4.4).
package htun

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// headerSize is the on-wire size of the common RPC packet header: version,
// version-minor, packet type, flags, a 4-byte data representation, the
// fragment length, the auth length, and a call ID (spec §4.4 "reads the
// common header ... reads the rest of the header, then the payload sized
// by frag_len").
const headerSize = 16

const (
	rpcVersionMajor = 5
	rpcVersionMinor = 0
)

// packetTypeHTTP marks an HTTP-tunnel control packet (idle keepalive or
// flow-control report) as opposed to an ordinary RPC PDU (spec §4.4).
const packetTypeHTTP = 0x12

// HTTP control-packet flags (spec §4.4).
const (
	flagIdle        = 0x0001
	flagFlowControl = 0x0002
)

var (
	errNotHTTPStatusLine = errors.New("htun: unexpected raw HTTP status line")
	errShortHeader       = errors.New("htun: packet shorter than the common header")
	errShortPayload      = errors.New("htun: packet shorter than frag_len")
)

// header is the common RPC packet header every fragment starts with.
type header struct {
	packetType uint8
	flags      uint8
	dataRep    [4]byte
	fragLen    uint16
	authLen    uint16
	callID     uint32
}

func decodeHeader(b []byte) (header, error) {
	var h header
	if len(b) < headerSize {
		return h, errShortHeader
	}
	if b[0] == 'H' && b[1] == 'T' && b[2] == 'T' && b[3] == 'P' {
		// A raw "HTTP/1.1 ..." status line where a PDU was expected means
		// the tunnel desynchronized (spec §4.4: "recognises and refuses a
		// raw HTTP status-line response").
		return h, errNotHTTPStatusLine
	}
	h.packetType = b[2]
	h.flags = b[3]
	copy(h.dataRep[:], b[4:8])
	h.fragLen = binary.LittleEndian.Uint16(b[8:10])
	h.authLen = binary.LittleEndian.Uint16(b[10:12])
	h.callID = binary.LittleEndian.Uint32(b[12:16])
	return h, nil
}

func (h header) encode() []byte {
	b := make([]byte, headerSize)
	b[0] = rpcVersionMajor
	b[1] = rpcVersionMinor
	b[2] = h.packetType
	b[3] = h.flags
	copy(b[4:8], h.dataRep[:])
	binary.LittleEndian.PutUint16(b[8:10], h.fragLen)
	binary.LittleEndian.PutUint16(b[10:12], h.authLen)
	binary.LittleEndian.PutUint32(b[12:16], h.callID)
	return b
}

// isControlPacket reports whether h marks an HTTP-tunnel control packet
// rather than an ordinary RPC PDU.
func (h header) isControlPacket() bool {
	return h.packetType == packetTypeHTTP
}

// uuidBytes encodes id as its 16-byte wire representation.
func uuidBytes(id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return b
}

// connectHeaderPacket builds the RPC_IN_DATA connect-header control
// packet: the connection UUID, the in-pipe UUID, and the association UUID
// back to back (spec §4.4 "Virtual-pipe preparation").
func connectHeaderPacket(connectionUUID, inPipeUUID, associationUUID uuid.UUID) []byte {
	body := make([]byte, 0, 48)
	body = append(body, uuidBytes(connectionUUID)...)
	body = append(body, uuidBytes(inPipeUUID)...)
	body = append(body, uuidBytes(associationUUID)...)

	h := header{packetType: packetTypeHTTP, fragLen: uint16(headerSize + len(body))}
	return append(h.encode(), body...)
}

// flowControlPacket builds an outgoing flow-control report: the number of
// bytes received so far, the available window, and the pipe this report
// concerns (spec §4.4 "synthesise an outgoing flow-control packet").
func flowControlPacket(bytesReceived, availableWindow uint32, pipeUUID uuid.UUID) []byte {
	body := make([]byte, 0, 24)
	body = binary.LittleEndian.AppendUint32(body, bytesReceived)
	body = binary.LittleEndian.AppendUint32(body, availableWindow)
	body = append(body, uuidBytes(pipeUUID)...)

	h := header{packetType: packetTypeHTTP, flags: flagFlowControl, fragLen: uint16(headerSize + len(body))}
	return append(h.encode(), body...)
}

// idlePacket builds the idle-keepalive control packet sent on the IN pipe
// when no application write has occurred for [github.com/dce-msrpc/transport.Config.HTTPIdleInterval]
// (spec §4.4 "Idle keepalive").
func idlePacket() []byte {
	h := header{packetType: packetTypeHTTP, flags: flagIdle, fragLen: headerSize}
	return h.encode()
}

// decodeFlowControlReport parses the body of a flag==flagFlowControl
// control packet into (bytesTransmitted, increment, pipeUUID) (spec §4.4).
func decodeFlowControlReport(body []byte) (bytesTransmitted, increment uint32, pipeUUID uuid.UUID, err error) {
	if len(body) < 24 {
		return 0, 0, uuid.Nil, errShortPayload
	}
	bytesTransmitted = binary.LittleEndian.Uint32(body[0:4])
	increment = binary.LittleEndian.Uint32(body[4:8])
	pipeUUID, err = uuid.FromBytes(body[8:24])
	return bytesTransmitted, increment, pipeUUID, err
}
