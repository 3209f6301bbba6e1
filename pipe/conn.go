//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: rpcrt4_conn_open_pipe, rpcrt4_conn_np_*, in Wine's
// dlls/rpcrt4/rpc_transport.c.
//

package pipe

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dce-msrpc/transport"
	"github.com/dce-msrpc/transport/tower"
)

// Variant distinguishes the two local-pipe protocol sequences this
// package serves; they share everything but endpoint naming, tower
// encoding, and component name used in error/log records.
type Variant int

const (
	VariantNCALRPC Variant = iota
	VariantNCACNNP
)

func (v Variant) protseqName() string {
	if v == VariantNCACNNP {
		return "ncacn_np"
	}
	return "ncalrpc"
}

func (v Variant) pipeName(endpoint string) string {
	if v == VariantNCACNNP {
		return NCACNNPPipeName(endpoint)
	}
	return NCALRPCPipeName(endpoint)
}

// Conn implements [transport.Connection] for ncacn_np and ncalrpc.
type Conn struct {
	transport.BaseConn

	variant Variant
	cfg     *transport.Config
	logger  transport.SLogger

	mu         sync.Mutex
	raw        net.Conn      // unwrapped OS connection, used for CloseRead/peerPID
	io         net.Conn      // raw wrapped with observability + cancel-watch
	br         *bufio.Reader // buffers io so WaitForIncomingData can Peek without consuming
	readClosed bool
}

// NewConnectionFactory returns a [transport.TransportDescriptor.NewConnection]
// factory for variant.
func NewConnectionFactory(variant Variant, cfg *transport.Config, logger transport.SLogger) func(isServer bool) transport.Connection {
	return func(isServer bool) transport.Connection {
		c := &Conn{variant: variant, cfg: cfg, logger: logger}
		c.BaseConn = transport.NewBaseConn(isServer, "", "", cfg.MaxTransmissionSize, transport.QoS{}, transport.AuthInfo{}, c.closeImpl)
		return c
	}
}

// adoptAccepted wires an already-accepted OS connection into a freshly
// spawned [*Conn], used by [*Listener] on handoff (spec §4.3 "Spawning").
func adoptAccepted(variant Variant, cfg *transport.Config, logger transport.SLogger, localName, endpoint string, raw net.Conn) *Conn {
	c := &Conn{variant: variant, cfg: cfg, logger: logger, raw: raw, io: raw, br: bufio.NewReader(raw)}
	c.BaseConn = transport.NewBaseConn(true, localName, endpoint, cfg.MaxTransmissionSize, transport.QoS{}, transport.AuthInfo{}, c.closeImpl)
	return c
}

// Open implements [transport.Connection.Open].
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.io != nil {
		c.mu.Unlock()
		return nil // idempotent
	}
	c.mu.Unlock()

	pname := c.variant.pipeName(c.Endpoint())
	qos := c.QoS()
	busyRetried := false

	for {
		raw, err := dialPipe(ctx, pname)
		if err == nil {
			observed, _ := transport.NewObserveConnFunc(c.cfg, c.logger).Call(ctx, raw)
			watched, _ := transport.NewCancelWatchFunc().Call(ctx, observed)
			c.mu.Lock()
			c.raw = raw
			c.io = watched
			c.br = bufio.NewReader(watched)
			c.mu.Unlock()
			return nil
		}

		if errors.Is(err, errPipeBusy) {
			if busyRetried {
				return transport.NewError(transport.KindServerTooBusy, c.variant.protseqName(), err)
			}
			busyRetried = true
			continue
		}

		if !qos.Wait {
			return transport.NewError(transport.KindServerUnavailable, c.variant.protseqName(), err)
		}

		select {
		case <-ctx.Done():
			return transport.NewError(transport.KindServerUnavailable, c.variant.protseqName(), ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
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
		return 0, transport.NewError(transport.KindServerUnavailable, c.variant.protseqName(), errors.New("not open"))
	}
	n, err := br.Read(buf)
	if err == nil && n == 0 {
		// A message-mode pipe returning zero bytes with no error is a
		// graceful EOF, surfaced as failure (spec §4.2).
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
		return 0, transport.NewError(transport.KindServerUnavailable, c.variant.protseqName(), errors.New("not open"))
	}
	return io.Write(buf)
}

// closeImpl closes the wrapped connection; it backs both Close and the
// final Release of the refcount.
func (c *Conn) closeImpl() error {
	c.mu.Lock()
	io := c.io
	c.mu.Unlock()
	if io == nil {
		return nil
	}
	return io.Close()
}

// Close is exposed directly too, for callers that bypass the refcount
// and want to force-close (e.g. test teardown); normal use goes through
// [transport.Connection.Release].
func (c *Conn) Close() error {
	return c.closeImpl()
}

// CloseRead implements [transport.Connection.CloseRead].
func (c *Conn) CloseRead() error {
	c.mu.Lock()
	c.readClosed = true
	raw := c.raw
	c.mu.Unlock()
	if raw == nil {
		return nil
	}
	return closeRead(raw)
}

// CancelCall implements [transport.Connection.CancelCall]. Aborting a pipe
// read/write without tearing down the handle is re-expressed, like the TCP
// variant, as an elapsed deadline rather than the source's I/O-cancel API
// (spec §9 design note on the per-connection event cache).
func (c *Conn) CancelCall() {
	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()
	if raw == nil {
		return
	}
	raw.SetDeadline(aLongTimeAgo)
}

// WaitForIncomingData implements [transport.Connection.WaitForIncomingData]
// with [*bufio.Reader.Peek], which blocks until at least one byte is
// available without consuming it, so a subsequent Read still observes the
// same bytes.
func (c *Conn) WaitForIncomingData(ctx context.Context) error {
	c.mu.Lock()
	io := c.io
	br := c.br
	c.mu.Unlock()
	if br == nil {
		return transport.NewError(transport.KindServerUnavailable, c.variant.protseqName(), errors.New("not open"))
	}
	deadline, ok := ctx.Deadline()
	if ok {
		io.SetReadDeadline(deadline)
		defer io.SetReadDeadline(time.Time{})
	}
	_, err := br.Peek(1)
	return err
}

// Impersonate implements [transport.Connection.Impersonate]. POSIX has no
// named-pipe impersonation primitive analogous to
// ImpersonateNamedPipeClient, so this is a no-op on the Unix backend; on
// Windows it would call ImpersonateNamedPipeClient (not wired: go-winio
// does not expose this call either). See DESIGN.md.
func (c *Conn) Impersonate() error {
	return nil
}

// Revert implements [transport.Connection.Revert].
func (c *Conn) Revert() error {
	return nil
}

// GetTopOfTower implements [transport.Connection.GetTopOfTower].
func (c *Conn) GetTopOfTower(networkAddr, endpoint string) ([]byte, error) {
	if c.variant == VariantNCACNNP {
		return tower.GetTopOfTowerNCACNNP(networkAddr, endpoint), nil
	}
	return tower.GetTopOfTowerNCALRPC(endpoint), nil
}

// ParseTopOfTower implements [transport.Connection.ParseTopOfTower].
func (c *Conn) ParseTopOfTower(b []byte) (networkAddr, endpoint string, err error) {
	if c.variant == VariantNCACNNP {
		networkAddr, endpoint, err = tower.ParseTopOfTowerNCACNNP(b)
	} else {
		endpoint, err = tower.ParseTopOfTowerNCALRPC(b)
	}
	if err != nil {
		return "", "", transport.NewError(transport.KindNotRegistered, c.variant.protseqName(), err)
	}
	return networkAddr, endpoint, nil
}

// IsServerListening implements [transport.Connection.IsServerListening] by
// attempting a connect-and-close probe.
func (c *Conn) IsServerListening(ctx context.Context, networkAddr, endpoint string) (bool, error) {
	raw, err := dialPipe(ctx, c.variant.pipeName(endpoint))
	if err != nil {
		return false, nil
	}
	raw.Close()
	return true, nil
}

// IsAuthorized implements [transport.Connection.IsAuthorized]. ncalrpc
// declares itself unauthenticated but trustworthy (spec §4.2.1): it always
// reports authorized.
func (c *Conn) IsAuthorized() bool {
	return true
}

// Authorize implements [transport.Connection.Authorize]. A no-op: local
// pipes authorize implicitly by filesystem/ACL access to the pipe (spec
// §4.2.1 "authorise returns empty with success").
func (c *Conn) Authorize(ctx context.Context) error {
	return nil
}

// SecurePacket implements [transport.Connection.SecurePacket]. A no-op per
// spec §4.2.1 ("secure-packet is a no-op").
func (c *Conn) SecurePacket(buf []byte) ([]byte, error) {
	return buf, nil
}

// InquireAuthClient implements [transport.Connection.InquireAuthClient].
// Reports packet-privacy with NT authentication (spec §4.2.1).
func (c *Conn) InquireAuthClient() (level string, service string, err error) {
	return "packet-privacy", "NT", nil
}

// InquireClientPID implements [transport.Connection.InquireClientPID] via
// SO_PEERCRED on Unix; unsupported on Windows (see backend_windows.go).
func (c *Conn) InquireClientPID() (int, bool) {
	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()
	if raw == nil {
		return 0, false
	}
	return peerPID(raw)
}

func (c *Conn) logAccept(localName string) {
	c.logger.Info("acceptDone",
		slog.String("protseq", c.variant.protseqName()),
		slog.Int("pid", os.Getpid()),
		slog.String("localAddr", localName),
	)
}
