//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: rpcrt4_conn_tcp_handoff / rpcrt4_conn_tcp_read / write in
// Wine's dlls/rpcrt4/rpc_transport.c.
//

// Package rpctcp implements the ncacn_ip_tcp protocol sequence: RPC
// directly over a TCP byte stream (spec §4.2.2).
package rpctcp

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/dce-msrpc/transport"
	"github.com/dce-msrpc/transport/tower"
)

const protseqName = "ncacn_ip_tcp"

// aLongTimeAgo is an already-elapsed deadline, used by CancelCall
// to abort a blocked Read/Write without tearing down the socket, the same
// trick the pipe variant uses in place of the source's FD_READ/FD_CLOSE
// event-mask wait (spec §4.2.2, §9).
var aLongTimeAgo = time.Unix(0, 1)

// Conn implements [transport.Connection] for ncacn_ip_tcp.
type Conn struct {
	transport.BaseConn

	cfg    *transport.Config
	logger transport.SLogger

	mu         sync.Mutex
	raw        *net.TCPConn
	io         net.Conn
	br         *bufio.Reader
	readClosed bool
}

// NewConnectionFactory returns a [transport.TransportDescriptor.NewConnection]
// factory for ncacn_ip_tcp.
func NewConnectionFactory(cfg *transport.Config, logger transport.SLogger) func(isServer bool) transport.Connection {
	return func(isServer bool) transport.Connection {
		c := &Conn{cfg: cfg, logger: logger}
		c.BaseConn = transport.NewBaseConn(isServer, "", "", cfg.MaxTransmissionSize, transport.QoS{}, transport.AuthInfo{}, c.closeImpl)
		return c
	}
}

// adoptAccepted wires an already-accepted socket into a freshly spawned
// [*Conn] (spec §4.3 "Spawning").
func adoptAccepted(cfg *transport.Config, logger transport.SLogger, peerAddr, endpoint string, raw *net.TCPConn) *Conn {
	c := &Conn{cfg: cfg, logger: logger, raw: raw, io: raw, br: bufio.NewReader(raw)}
	c.BaseConn = transport.NewBaseConn(true, peerAddr, endpoint, cfg.MaxTransmissionSize, transport.QoS{}, transport.AuthInfo{}, c.closeImpl)
	return c
}

// Open implements [transport.Connection.Open]. Resolution across candidate
// addresses and address-family filtering is delegated to [net.Dialer],
// which already performs exactly the "resolve, iterate candidates, skip
// unusable families, connect" sequence spec §4.2.2 describes.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.io != nil {
		c.mu.Unlock()
		return nil // idempotent
	}
	c.mu.Unlock()

	address := net.JoinHostPort(c.NetworkAddr(), c.Endpoint())
	connect := transport.NewConnectFunc(c.cfg, "tcp", c.logger)
	raw, err := connect.Call(ctx, address)
	if err != nil {
		return transport.NewError(transport.KindServerUnavailable, protseqName, err)
	}

	tcpConn, _ := raw.(*net.TCPConn)
	if tcpConn != nil {
		tcpConn.SetNoDelay(true) // disable Nagle, per spec §4.2.2
	}

	observed, _ := transport.NewObserveConnFunc(c.cfg, c.logger).Call(ctx, raw)
	watched, _ := transport.NewCancelWatchFunc().Call(ctx, observed)

	c.mu.Lock()
	c.raw = tcpConn
	c.io = watched
	c.br = bufio.NewReader(watched)
	c.mu.Unlock()
	return nil
}

// Read implements [transport.Connection.Read].
func (c *Conn) Read(ctx context.Context, buf []byte) (int, error) {
	c.mu.Lock()
	br := c.br
	closed := c.readClosed
	c.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	if br == nil {
		return 0, transport.NewError(transport.KindServerUnavailable, protseqName, errors.New("not open"))
	}
	n, err := br.Read(buf)
	if err == nil && n == 0 {
		// recv returning zero is EOF, treated as failure (spec §4.2.2).
		return 0, net.ErrClosed
	}
	return n, err
}

// Write implements [transport.Connection.Write].
func (c *Conn) Write(ctx context.Context, buf []byte) (int, error) {
	c.mu.Lock()
	io := c.io
	c.mu.Unlock()
	if io == nil {
		return 0, transport.NewError(transport.KindServerUnavailable, protseqName, errors.New("not open"))
	}
	return io.Write(buf)
}

func (c *Conn) closeImpl() error {
	c.mu.Lock()
	io := c.io
	c.mu.Unlock()
	if io == nil {
		return nil
	}
	return io.Close()
}

// Close implements [transport.Connection.Close].
func (c *Conn) Close() error {
	return c.closeImpl()
}

// CloseRead implements [transport.Connection.CloseRead] via
// [*net.TCPConn.CloseRead], a receive-direction-only shutdown (spec §4.2.2).
func (c *Conn) CloseRead() error {
	c.mu.Lock()
	c.readClosed = true
	raw := c.raw
	c.mu.Unlock()
	if raw == nil {
		return nil
	}
	return raw.CloseRead()
}

// CancelCall implements [transport.Connection.CancelCall] by forcing an
// already-elapsed deadline, unblocking any in-flight Read/Write/
// WaitForIncomingData without closing the socket (spec §4.2.2: cancel
// aborts both directions without tearing down the handle).
func (c *Conn) CancelCall() {
	c.mu.Lock()
	io := c.io
	c.mu.Unlock()
	if io == nil {
		return
	}
	io.SetDeadline(aLongTimeAgo)
}

// WaitForIncomingData implements [transport.Connection.WaitForIncomingData]
// with [*bufio.Reader.Peek], blocking until at least one byte is available
// without consuming it.
func (c *Conn) WaitForIncomingData(ctx context.Context) error {
	c.mu.Lock()
	io := c.io
	br := c.br
	c.mu.Unlock()
	if br == nil {
		return transport.NewError(transport.KindServerUnavailable, protseqName, errors.New("not open"))
	}
	deadline, ok := ctx.Deadline()
	if ok {
		io.SetReadDeadline(deadline)
		defer io.SetReadDeadline(time.Time{})
	}
	_, err := br.Peek(1)
	return err
}

// Impersonate implements [transport.Connection.Impersonate]. TCP uses the
// default auth-negotiation-context-based impersonation (spec §4.2), which
// this package does not implement (no-op; see DESIGN.md).
func (c *Conn) Impersonate() error {
	return nil
}

// Revert implements [transport.Connection.Revert].
func (c *Conn) Revert() error {
	return nil
}

// GetTopOfTower implements [transport.Connection.GetTopOfTower].
func (c *Conn) GetTopOfTower(networkAddr, endpoint string) ([]byte, error) {
	return tower.GetTopOfTowerNCACNIPTCP(networkAddr, endpoint)
}

// ParseTopOfTower implements [transport.Connection.ParseTopOfTower].
func (c *Conn) ParseTopOfTower(b []byte) (networkAddr, endpoint string, err error) {
	networkAddr, endpoint, err = tower.ParseTopOfTowerNCACNIPTCP(b)
	if err != nil {
		return "", "", transport.NewError(transport.KindNotRegistered, protseqName, err)
	}
	return networkAddr, endpoint, nil
}

// IsServerListening implements [transport.Connection.IsServerListening] via
// a connect-and-close probe.
func (c *Conn) IsServerListening(ctx context.Context, networkAddr, endpoint string) (bool, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(networkAddr, endpoint))
	if err != nil {
		return false, nil
	}
	conn.Close()
	return true, nil
}

// IsAuthorized implements [transport.Connection.IsAuthorized]. Higher-level
// authentication negotiation is out of scope (spec §1 Non-goals): a plain
// TCP connection reports itself authorized once open, matching the
// transport's "no built-in auth" default.
func (c *Conn) IsAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.io != nil
}

// Authorize implements [transport.Connection.Authorize]. A no-op: TCP has
// no transport-level authentication step of its own.
func (c *Conn) Authorize(ctx context.Context) error {
	return nil
}

// SecurePacket implements [transport.Connection.SecurePacket]. A no-op.
func (c *Conn) SecurePacket(buf []byte) ([]byte, error) {
	return buf, nil
}

// InquireAuthClient implements [transport.Connection.InquireAuthClient].
func (c *Conn) InquireAuthClient() (level string, service string, err error) {
	return "none", "", nil
}

// InquireClientPID implements [transport.Connection.InquireClientPID]. TCP
// peers are not local processes in general, so this transport has no such
// capability (spec §4.1: "inquire-client-pid (optional)").
func (c *Conn) InquireClientPID() (int, bool) {
	return 0, false
}
