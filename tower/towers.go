// SPDX-License-Identifier: GPL-3.0-or-later

package tower

import (
	"encoding/binary"
	"errors"
	"net"
	"strconv"
)

// ErrNotRegistered is returned when tower bytes do not match the expected
// floors for the transport being parsed (spec §4.2, §7 Kind NotRegistered).
var ErrNotRegistered = errors.New("tower: bytes do not match expected floors")

func nulTerminated(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func parseNulTerminated(rhs []byte) (string, error) {
	if len(rhs) == 0 || rhs[len(rhs)-1] != 0 {
		return "", ErrNotRegistered
	}
	return string(rhs[:len(rhs)-1]), nil
}

// GetTopOfTowerNCACNNP returns the SMB+NetBIOS floors for ncacn_np (spec §6).
func GetTopOfTowerNCACNNP(networkAddr, endpoint string) []byte {
	floors := []Floor{
		{ProtID: ProtIDSMB, RHS: nulTerminated(endpoint)},
		{ProtID: ProtIDNetBIOS, RHS: nulTerminated(networkAddr)},
	}
	return EncodeFloors(make([]byte, 0, SizeFloors(floors...)), floors...)
}

// SizeTopOfTowerNCACNNP returns the exact byte size [GetTopOfTowerNCACNNP]
// would produce, without allocating the floors (spec §4.2 precomputation
// invariant).
func SizeTopOfTowerNCACNNP(networkAddr, endpoint string) int {
	return SizeFloors(
		Floor{ProtID: ProtIDSMB, RHS: nulTerminated(endpoint)},
		Floor{ProtID: ProtIDNetBIOS, RHS: nulTerminated(networkAddr)},
	)
}

// ParseTopOfTowerNCACNNP is the inverse of [GetTopOfTowerNCACNNP].
func ParseTopOfTowerNCACNNP(b []byte) (networkAddr, endpoint string, err error) {
	floors, err := DecodeFloors(b, 2)
	if err != nil {
		return "", "", ErrNotRegistered
	}
	if floors[0].ProtID != ProtIDSMB || floors[1].ProtID != ProtIDNetBIOS {
		return "", "", ErrNotRegistered
	}
	endpoint, err = parseNulTerminated(floors[0].RHS)
	if err != nil {
		return "", "", err
	}
	networkAddr, err = parseNulTerminated(floors[1].RHS)
	if err != nil {
		return "", "", err
	}
	return networkAddr, endpoint, nil
}

// GetTopOfTowerNCALRPC returns the single PIPE floor for ncalrpc (spec §6).
func GetTopOfTowerNCALRPC(endpoint string) []byte {
	f := Floor{ProtID: ProtIDPIPE, RHS: nulTerminated(endpoint)}
	return f.Encode(nil)
}

// SizeTopOfTowerNCALRPC mirrors [GetTopOfTowerNCALRPC]'s size.
func SizeTopOfTowerNCALRPC(endpoint string) int {
	return (Floor{ProtID: ProtIDPIPE, RHS: nulTerminated(endpoint)}).Size()
}

// ParseTopOfTowerNCALRPC is the inverse of [GetTopOfTowerNCALRPC]. ncalrpc
// has no network-address floor, so the returned address is always empty
// (spec §8 invariant 1: "for ncalrpc, network' == null").
func ParseTopOfTowerNCALRPC(b []byte) (endpoint string, err error) {
	floors, err := DecodeFloors(b, 1)
	if err != nil {
		return "", ErrNotRegistered
	}
	if floors[0].ProtID != ProtIDPIPE {
		return "", ErrNotRegistered
	}
	return parseNulTerminated(floors[0].RHS)
}

func encodeIPv4(addr string) ([]byte, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, ErrNotRegistered
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, ErrNotRegistered
	}
	return []byte(ip4), nil
}

func encodePort(endpoint string) ([]byte, error) {
	port, err := strconv.ParseUint(endpoint, 10, 16)
	if err != nil {
		return nil, ErrNotRegistered
	}
	rhs := make([]byte, 2)
	binary.BigEndian.PutUint16(rhs, uint16(port))
	return rhs, nil
}

// GetTopOfTowerNCACNIPTCP returns the TCP+IP floors for ncacn_ip_tcp (spec
// §6): the port is 2 bytes network order, the address is a bare IPv4.
func GetTopOfTowerNCACNIPTCP(networkAddr, endpoint string) ([]byte, error) {
	return getTopOfTowerTCPLike(ProtIDTCP, networkAddr, endpoint)
}

// ParseTopOfTowerNCACNIPTCP is the inverse of [GetTopOfTowerNCACNIPTCP].
func ParseTopOfTowerNCACNIPTCP(b []byte) (networkAddr, endpoint string, err error) {
	return parseTopOfTowerTCPLike(ProtIDTCP, b)
}

// GetTopOfTowerNCACNHTTP returns the HTTP+IP floors for ncacn_http (spec §6).
func GetTopOfTowerNCACNHTTP(networkAddr, endpoint string) ([]byte, error) {
	return getTopOfTowerTCPLike(ProtIDHTTP, networkAddr, endpoint)
}

// ParseTopOfTowerNCACNHTTP is the inverse of [GetTopOfTowerNCACNHTTP].
func ParseTopOfTowerNCACNHTTP(b []byte) (networkAddr, endpoint string, err error) {
	return parseTopOfTowerTCPLike(ProtIDHTTP, b)
}

func getTopOfTowerTCPLike(portProtID byte, networkAddr, endpoint string) ([]byte, error) {
	portRHS, err := encodePort(endpoint)
	if err != nil {
		return nil, err
	}
	ipRHS, err := encodeIPv4(networkAddr)
	if err != nil {
		return nil, err
	}
	floors := []Floor{
		{ProtID: portProtID, RHS: portRHS},
		{ProtID: ProtIDIP, RHS: ipRHS},
	}
	return EncodeFloors(make([]byte, 0, SizeFloors(floors...)), floors...), nil
}

func parseTopOfTowerTCPLike(portProtID byte, b []byte) (networkAddr, endpoint string, err error) {
	floors, err := DecodeFloors(b, 2)
	if err != nil {
		return "", "", ErrNotRegistered
	}
	if floors[0].ProtID != portProtID || floors[1].ProtID != ProtIDIP {
		return "", "", ErrNotRegistered
	}
	if len(floors[0].RHS) != 2 || len(floors[1].RHS) != 4 {
		return "", "", ErrNotRegistered
	}
	port := binary.BigEndian.Uint16(floors[0].RHS)
	ip := net.IP(floors[1].RHS)
	return ip.String(), strconv.FormatUint(uint64(port), 10), nil
}
