//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: rpcrt4_ncacn_http_open / ncacn_http_{read,write} in Wine's
// dlls/rpcrt4/rpc_transport.c (see original_source), and from rpctcp.Conn's
// deadline-based CancelCall/WaitForIncomingData idioms.
//

package htun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dce-msrpc/transport"
	"github.com/dce-msrpc/transport/tower"
)

// aLongTimeAgo is an already-elapsed deadline, the same trick rpctcp.Conn
// uses to unblock a pending Read/Write without tearing down the socket.
var aLongTimeAgo = time.Unix(0, 1)

// Conn implements [transport.Connection] and [transport.FragmentReader] for
// ncacn_http: RPC tunnelled over an IN and an OUT long-lived HTTP request
// (spec §4.4).
type Conn struct {
	transport.BaseConn

	cfg    *transport.Config
	logger transport.SLogger

	mu     sync.Mutex
	opened bool

	inConn    *transport.HTTPConn
	inWriter  *io.PipeWriter
	inWriteMu sync.Mutex

	outConn   *transport.HTTPConn
	outReader *bufio.Reader
	outResp   *http.Response
	pending   []byte

	connectionUUID  uuid.UUID
	inPipeUUID      uuid.UUID
	outPipeUUID     uuid.UUID
	associationUUID uuid.UUID

	receivedBytes   uint32
	flowControlMark uint32
	flowIncrement   uint32

	lastSend     time.Time
	idleCancel   context.CancelFunc
	idleStopped  chan struct{}
}

// NewConnectionFactory returns a [transport.TransportDescriptor.NewConnection]
// factory for ncacn_http. ncacn_http has no server side (spec §4.1, §9): the
// returned [*Conn] fails [*Conn.Open] if isServer is true.
func NewConnectionFactory(cfg *transport.Config, logger transport.SLogger) func(isServer bool) transport.Connection {
	return func(isServer bool) transport.Connection {
		c := &Conn{cfg: cfg, logger: logger}
		c.BaseConn = transport.NewBaseConn(isServer, "", "", cfg.MaxTransmissionSize, transport.QoS{}, transport.AuthInfo{}, c.closeImpl)
		return c
	}
}

func newWireUUID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// entropy-source failure; treated the same as
		// transport.NewSpanID's panic-on-urandom-failure contract.
		panic(err)
	}
	return id
}

// Open implements [transport.Connection.Open]: it parses NetworkOptions
// (spec §6), opens the IN pipe (RPC_IN_DATA) and the OUT pipe
// (RPC_OUT_DATA), each running the auth loop (spec §4.4) independently, then
// performs the virtual-pipe connect handshake.
func (c *Conn) Open(ctx context.Context) error {
	if c.IsServer() {
		return transport.NewError(transport.KindProtseqNotSupported, protseqName, errors.New("ncacn_http has no server-side listener"))
	}

	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	opts := ParseOptions(c.QoS().NetworkOptions)
	opts.CookieAuth = c.QoS().CookieAuth
	useSSL := c.QoS().UseSSL

	c.connectionUUID = newWireUUID()
	c.inPipeUUID = newWireUUID()
	c.outPipeUUID = newWireUUID()
	// Association management belongs to a higher layer this package does
	// not model (spec §1 Non-goals); a private UUID stands in for it.
	c.associationUUID = newWireUUID()

	if err := c.openOutPipe(ctx, opts, useSSL); err != nil {
		return err
	}
	if err := c.openInPipe(ctx, opts, useSSL); err != nil {
		c.outConn.Close()
		return err
	}

	idleCtx, idleCancel := context.WithCancel(context.Background())
	c.idleCancel = idleCancel
	c.idleStopped = make(chan struct{})
	go c.runIdleKeepalive(idleCtx)

	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	return nil
}

// openInPipe opens the RPC_IN_DATA request: a single very long-lived
// streaming upload whose body is fed by Write (spec §4.4 "initiate a
// request with method RPC_IN_DATA ... Content-Length set to a
// pseudo-infinite value").
func (c *Conn) openInPipe(ctx context.Context, opts Options, useSSL bool) error {
	target := TargetURL(opts.RpcProxy, useSSL, c.NetworkAddr(), c.Endpoint())
	pr, pw := io.Pipe()

	auth := c.AuthInfo()
	authorizer := &Authorizer{Scheme: auth.Scheme, Username: auth.Username, Password: auth.Password, StepTimeout: c.cfg.HTTPRequestTimeout}

	// Only the leg that is actually accepted carries the streaming body:
	// an NTLM negotiate probe must not block forever on an unwritten pipe.
	final := strings.EqualFold(auth.Scheme, "") || strings.EqualFold(auth.Scheme, "basic")
	newRequest := func() (*http.Request, error) {
		var body io.Reader
		var contentLength int64
		if final {
			body = pr
			contentLength = 1 << 30 // spec §4.4 pseudo-infinite length
		}
		final = true // the next leg, if any, is the accepted one
		req, err := http.NewRequestWithContext(ctx, "RPC_IN_DATA", target.String(), body)
		if err != nil {
			return nil, err
		}
		req.ContentLength = contentLength
		req.Header.Set("Accept", "application/rpc")
		ApplyCookieAuth(req, opts.CookieAuth)
		return req, nil
	}

	// Each auth leg dials its own [transport.HTTPConn]: its transport
	// disables keep-alives and wraps a single-use dialer per connection, so
	// a leg cannot be replayed over a prior leg's socket; only the accepted
	// leg's connection is kept as the pipe's transport.
	var lastConn *transport.HTTPConn
	do := func(req *http.Request) (*http.Response, error) {
		hc, err := dialPipe(ctx, c.cfg, c.logger, opts, useSSL)
		if err != nil {
			return nil, err
		}
		resp, err := hc.RoundTrip(req)
		if err != nil {
			hc.Close()
			return nil, err
		}
		if lastConn != nil {
			lastConn.Close()
		}
		lastConn = hc
		return resp, nil
	}

	resp, err := authorizer.Authorize(newRequest, do)
	if err != nil {
		if lastConn != nil {
			lastConn.Close()
		}
		return transport.NewError(transport.KindAccessDenied, protseqName, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		lastConn.Close()
		return transport.NewError(transport.KindAccessDenied, protseqName, errors.New("rpcproxy rejected RPC_IN_DATA: "+resp.Status))
	}

	c.mu.Lock()
	c.inConn = lastConn
	c.inWriter = pw
	c.mu.Unlock()

	_, err = pw.Write(connectHeaderPacket(c.connectionUUID, c.inPipeUUID, c.associationUUID))
	return err
}

// openOutPipe opens the RPC_OUT_DATA request, sends the connect-header
// packet as its (bounded) body, and reads back the two setup control
// packets that establish the flow-control window (spec §4.4 "Virtual-pipe
// preparation").
func (c *Conn) openOutPipe(ctx context.Context, opts Options, useSSL bool) error {
	target := TargetURL(opts.RpcProxy, useSSL, c.NetworkAddr(), c.Endpoint())
	connectBody := connectHeaderPacket(c.connectionUUID, c.outPipeUUID, c.associationUUID)

	auth := c.AuthInfo()
	authorizer := &Authorizer{Scheme: auth.Scheme, Username: auth.Username, Password: auth.Password, StepTimeout: c.cfg.HTTPRequestTimeout}

	final := strings.EqualFold(auth.Scheme, "") || strings.EqualFold(auth.Scheme, "basic")
	newRequest := func() (*http.Request, error) {
		var body io.Reader
		var contentLength int64
		if final {
			body = bytes.NewReader(connectBody)
			contentLength = int64(len(connectBody))
		}
		final = true
		req, err := http.NewRequestWithContext(ctx, "RPC_OUT_DATA", target.String(), body)
		if err != nil {
			return nil, err
		}
		req.ContentLength = contentLength
		req.Header.Set("Accept", "application/rpc")
		ApplyCookieAuth(req, opts.CookieAuth)
		return req, nil
	}

	var lastConn *transport.HTTPConn
	do := func(req *http.Request) (*http.Response, error) {
		hc, err := dialPipe(ctx, c.cfg, c.logger, opts, useSSL)
		if err != nil {
			return nil, err
		}
		resp, err := hc.RoundTrip(req)
		if err != nil {
			hc.Close()
			return nil, err
		}
		if lastConn != nil {
			lastConn.Close()
		}
		lastConn = hc
		return resp, nil
	}

	resp, err := authorizer.Authorize(newRequest, do)
	if err != nil {
		if lastConn != nil {
			lastConn.Close()
		}
		return transport.NewError(transport.KindAccessDenied, protseqName, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		lastConn.Close()
		return transport.NewError(transport.KindAccessDenied, protseqName, errors.New("rpcproxy rejected RPC_OUT_DATA: "+resp.Status))
	}

	c.mu.Lock()
	c.outConn = lastConn
	c.outResp = resp
	c.outReader = bufio.NewReaderSize(resp.Body, c.MaxTransmissionSize())
	c.mu.Unlock()

	if _, _, err := c.readNextControlPacket(ctx); err != nil {
		return transport.NewError(transport.KindProtocolError, protseqName, err)
	}
	_, body, err := c.readNextControlPacket(ctx)
	if err != nil {
		return transport.NewError(transport.KindProtocolError, protseqName, err)
	}
	_, increment, _, err := decodeFlowControlReport(body)
	if err != nil {
		return transport.NewError(transport.KindProtocolError, protseqName, err)
	}
	c.flowIncrement = increment
	c.flowControlMark = increment / 2
	return nil
}

// readPacket reads one full wire packet (header and payload) from the OUT
// pipe response body.
func (c *Conn) readPacket(ctx context.Context) (header, []byte, error) {
	c.mu.Lock()
	outConn := c.outConn
	br := c.outReader
	c.mu.Unlock()
	if br == nil {
		return header{}, nil, transport.NewError(transport.KindServerUnavailable, protseqName, errors.New("not open"))
	}

	if deadline, ok := ctx.Deadline(); ok && outConn != nil {
		outConn.Conn().SetReadDeadline(deadline)
		defer outConn.Conn().SetReadDeadline(time.Time{})
	}

	hdrBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(br, hdrBuf); err != nil {
		return header{}, nil, err
	}
	h, err := decodeHeader(hdrBuf)
	if err != nil {
		return header{}, nil, err
	}
	if int(h.fragLen) < headerSize {
		return header{}, nil, errShortPayload
	}
	body := make([]byte, int(h.fragLen)-headerSize)
	if len(body) > 0 {
		if _, err := io.ReadFull(br, body); err != nil {
			return header{}, nil, err
		}
	}
	return h, body, nil
}

// readNextControlPacket reads packets until a non-idle one arrives,
// silently discarding idle keepalives (spec §4.4 "Idle keepalive").
func (c *Conn) readNextControlPacket(ctx context.Context) (header, []byte, error) {
	for {
		h, body, err := c.readPacket(ctx)
		if err != nil {
			return header{}, nil, err
		}
		if h.isControlPacket() && h.flags == flagIdle {
			continue
		}
		return h, body, nil
	}
}

// ReceiveFragment implements [transport.FragmentReader]: it demultiplexes
// the OUT pipe's byte stream, transparently discarding idle keepalives and
// flow-control reports, returning the next ordinary RPC packet
// (header and payload, concatenated) to the caller (spec §4.4).
func (c *Conn) ReceiveFragment(ctx context.Context) ([]byte, error) {
	for {
		h, body, err := c.readPacket(ctx)
		if err != nil {
			return nil, err
		}
		if h.isControlPacket() {
			switch h.flags {
			case flagIdle:
				continue
			case flagFlowControl:
				continue // trace-only; spec §4.4 reports are advisory
			default:
				return nil, transport.NewError(transport.KindProtocolError, protseqName, errors.New("unrecognized HTTP control packet"))
			}
		}

		if err := c.maybeAckFlowControl(h); err != nil {
			return nil, err
		}
		return append(h.encode(), body...), nil
	}
}

// maybeAckFlowControl sends a flow-control report on the IN pipe once the
// number of bytes received on the OUT pipe crosses the current window mark
// (spec §4.4 "when it exceeds the flow-control mark, synthesise an outgoing
// flow-control packet ... and bump the mark by half the increment").
func (c *Conn) maybeAckFlowControl(h header) error {
	c.mu.Lock()
	c.receivedBytes += uint32(h.fragLen)
	total := c.receivedBytes
	mark := c.flowControlMark
	increment := c.flowIncrement
	pipeUUID := c.outPipeUUID
	c.mu.Unlock()
	if total <= mark || increment == 0 {
		return nil
	}

	c.mu.Lock()
	c.flowControlMark += increment / 2
	c.mu.Unlock()

	return c.writeIn(flowControlPacket(total, increment, pipeUUID))
}

// writeIn serializes a write onto the IN pipe, since idle keepalives,
// flow-control acks, and application Writes may originate from different
// goroutines (spec §5: writes must be serialized).
func (c *Conn) writeIn(b []byte) error {
	c.inWriteMu.Lock()
	defer c.inWriteMu.Unlock()
	c.mu.Lock()
	pw := c.inWriter
	c.mu.Unlock()
	if pw == nil {
		return transport.NewError(transport.KindServerUnavailable, protseqName, errors.New("not open"))
	}
	_, err := pw.Write(b)
	return err
}

// runIdleKeepalive sends an idle control packet on the IN pipe whenever no
// application Write has occurred for cfg.HTTPIdleInterval (spec §4.4 "Idle
// keepalive").
func (c *Conn) runIdleKeepalive(ctx context.Context) {
	defer close(c.idleStopped)

	interval := c.cfg.HTTPIdleInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastSend) >= interval
			c.mu.Unlock()
			if idle {
				c.writeIn(idlePacket())
			}
		}
	}
}

// Read implements [transport.Connection.Read], demultiplexing via
// [*Conn.ReceiveFragment] and buffering any excess for the next call.
func (c *Conn) Read(ctx context.Context, buf []byte) (int, error) {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	if len(pending) == 0 {
		frag, err := c.ReceiveFragment(ctx)
		if err != nil {
			return 0, err
		}
		pending = frag
	}

	n := copy(buf, pending)
	c.mu.Lock()
	c.pending = pending[n:]
	c.mu.Unlock()
	return n, nil
}

// Write implements [transport.Connection.Write] by feeding buf into the IN
// pipe's streaming body.
func (c *Conn) Write(ctx context.Context, buf []byte) (int, error) {
	c.inWriteMu.Lock()
	defer c.inWriteMu.Unlock()

	c.mu.Lock()
	pw := c.inWriter
	c.mu.Unlock()
	if pw == nil {
		return 0, transport.NewError(transport.KindServerUnavailable, protseqName, errors.New("not open"))
	}

	n, err := pw.Write(buf)
	c.mu.Lock()
	c.lastSend = time.Now()
	c.mu.Unlock()
	return n, err
}

func (c *Conn) closeImpl() error {
	c.mu.Lock()
	idleCancel := c.idleCancel
	idleStopped := c.idleStopped
	inWriter := c.inWriter
	inConn := c.inConn
	outConn := c.outConn
	outResp := c.outResp
	c.mu.Unlock()

	if idleCancel != nil {
		idleCancel()
		<-idleStopped
	}
	if inWriter != nil {
		inWriter.Close()
	}
	if outResp != nil {
		outResp.Body.Close()
	}
	var err error
	if inConn != nil {
		err = inConn.Close()
	}
	if outConn != nil {
		if cerr := outConn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Close implements [transport.Connection.Close].
func (c *Conn) Close() error {
	return c.closeImpl()
}

// CloseRead implements [transport.Connection.CloseRead]. The OUT pipe is a
// wholly separate HTTP connection from the IN pipe, so tearing it down
// shuts down only the receive direction; Write continues to work (spec
// §4.4's split IN/OUT design satisfies this for free).
func (c *Conn) CloseRead() error {
	c.mu.Lock()
	outConn := c.outConn
	c.mu.Unlock()
	if outConn == nil {
		return nil
	}
	return outConn.Close()
}

// CancelCall implements [transport.Connection.CancelCall] by forcing
// already-elapsed deadlines on both pipes' underlying connections, the same
// trick rpctcp.Conn uses.
func (c *Conn) CancelCall() {
	c.mu.Lock()
	inConn := c.inConn
	outConn := c.outConn
	c.mu.Unlock()
	if inConn != nil {
		inConn.Conn().SetWriteDeadline(aLongTimeAgo)
	}
	if outConn != nil {
		outConn.Conn().SetReadDeadline(aLongTimeAgo)
	}
}

// WaitForIncomingData implements [transport.Connection.WaitForIncomingData]
// via [*bufio.Reader.Peek] on the OUT pipe, mirroring rpctcp.Conn.
func (c *Conn) WaitForIncomingData(ctx context.Context) error {
	c.mu.Lock()
	if len(c.pending) > 0 {
		c.mu.Unlock()
		return nil
	}
	outConn := c.outConn
	br := c.outReader
	c.mu.Unlock()
	if br == nil {
		return transport.NewError(transport.KindServerUnavailable, protseqName, errors.New("not open"))
	}
	if deadline, ok := ctx.Deadline(); ok && outConn != nil {
		outConn.Conn().SetReadDeadline(deadline)
		defer outConn.Conn().SetReadDeadline(time.Time{})
	}
	_, err := br.Peek(1)
	return err
}

// Impersonate implements [transport.Connection.Impersonate]. Defaulted for
// HTTP (spec §4.2: "For HTTP, defaulted").
func (c *Conn) Impersonate() error {
	return nil
}

// Revert implements [transport.Connection.Revert].
func (c *Conn) Revert() error {
	return nil
}

// GetTopOfTower implements [transport.Connection.GetTopOfTower].
func (c *Conn) GetTopOfTower(networkAddr, endpoint string) ([]byte, error) {
	return tower.GetTopOfTowerNCACNHTTP(networkAddr, endpoint)
}

// ParseTopOfTower implements [transport.Connection.ParseTopOfTower].
func (c *Conn) ParseTopOfTower(b []byte) (networkAddr, endpoint string, err error) {
	networkAddr, endpoint, err = tower.ParseTopOfTowerNCACNHTTP(b)
	if err != nil {
		return "", "", transport.NewError(transport.KindNotRegistered, protseqName, err)
	}
	return networkAddr, endpoint, nil
}

// IsServerListening implements [transport.Connection.IsServerListening] by
// attempting (and immediately tearing down) the same OUT-pipe dial Open
// performs.
func (c *Conn) IsServerListening(ctx context.Context, networkAddr, endpoint string) (bool, error) {
	opts := ParseOptions(c.QoS().NetworkOptions)
	hc, err := dialPipe(ctx, c.cfg, c.logger, opts, c.QoS().UseSSL)
	if err != nil {
		return false, nil
	}
	hc.Close()
	return true, nil
}

// IsAuthorized implements [transport.Connection.IsAuthorized]. Both pipes'
// auth loops already ran as part of Open, so the connection is authorized
// once it is open.
func (c *Conn) IsAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// Authorize implements [transport.Connection.Authorize]. A no-op: the auth
// loop already ran inline during Open (spec §4.4).
func (c *Conn) Authorize(ctx context.Context) error {
	return nil
}

// SecurePacket implements [transport.Connection.SecurePacket]. A no-op.
func (c *Conn) SecurePacket(buf []byte) ([]byte, error) {
	return buf, nil
}

// InquireAuthClient implements [transport.Connection.InquireAuthClient].
func (c *Conn) InquireAuthClient() (level string, service string, err error) {
	auth := c.AuthInfo()
	if auth.Scheme == "" {
		return "none", "", nil
	}
	return auth.Scheme, auth.ServicePrincipalName, nil
}

// InquireClientPID implements [transport.Connection.InquireClientPID]. An
// HTTP peer is remote, never a local process (spec §4.1: "inquire-client-pid
// (optional)").
func (c *Conn) InquireClientPID() (int, bool) {
	return 0, false
}
