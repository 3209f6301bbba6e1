// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

// ImpersonationLevel selects how much of the caller's security identity a
// server-side connection adopts while servicing a call (spec §4.2, §4.2.1).
type ImpersonationLevel int

const (
	ImpersonationAnonymous ImpersonationLevel = iota
	ImpersonationIdentify
	ImpersonationImpersonate
	ImpersonationDelegate
)

// IdentityTracking selects whether a server-side connection tracks the
// caller's identity statically (once, at open) or dynamically (re-checked
// per call).
type IdentityTracking int

const (
	IdentityStatic IdentityTracking = iota
	IdentityDynamic
)

// QoS carries the security-quality-of-service parameters a client supplies
// when opening a connection (spec §4.2.1). UseSSL only applies to
// ncacn_http, where it selects the https scheme (spec §4.4).
type QoS struct {
	ImpersonationLevel ImpersonationLevel
	IdentityTracking   IdentityTracking
	UseSSL             bool

	// NetworkOptions is the comma-separated RpcProxy=/HttpProxy= string
	// (spec §6); it only applies to ncacn_http, which parses it via
	// [github.com/dce-msrpc/transport/htun.ParseOptions].
	NetworkOptions string

	// CookieAuth is an opaque cookie-based authentication token, distinct
	// from NetworkOptions and from AuthInfo (spec §3: "optional
	// network-options string (for HTTP) and cookie-auth string"). It only
	// applies to ncacn_http, where it is sent as the Cookie header of every
	// IN/OUT pipe request, the first one included (spec §6 "HTTP wire").
	CookieAuth string

	// Wait selects the local-pipe open behavior when the server endpoint
	// does not exist yet: true waits indefinitely (bounded only by ctx),
	// false fails immediately with [KindServerUnavailable] (spec §4.2.1).
	Wait bool
}

// AuthInfo carries the per-connection authentication material a caller
// supplies when opening a connection. Higher-level authentication
// negotiation is out of scope (spec §1 Non-goals): this struct only
// threads the material the transport needs to drive the ncacn_http auth
// loop (spec §4.4) or to answer InquireAuthClient.
type AuthInfo struct {
	// Username and Password authenticate Basic and NTLM/Negotiate legs of
	// the ncacn_http auth loop.
	Username string
	Password string

	// Scheme names the preferred authentication scheme ("Basic", "NTLM",
	// "Negotiate"); left empty, the connection is unauthenticated.
	Scheme string

	// ServicePrincipalName is reported by InquireAuthClient; it is opaque
	// to the transport.
	ServicePrincipalName string
}

// FragmentReader is the optional capability a [Connection] exposes when it
// must translate its wire framing into RPC fragments before handing bytes
// to the caller. Only the ncacn_http variant implements this (spec §4.4,
// §9): local pipes and TCP connections hand raw bytes straight through
// Read, so type-asserting a [Connection] to [FragmentReader] fails for
// them by design — the "non-null only for HTTP" vtable slot of §9.
type FragmentReader interface {
	// ReceiveFragment reads and returns the next RPC fragment, transparently
	// discarding ncacn_http control packets (idle keepalives, flow-control
	// reports) (spec §4.4).
	ReceiveFragment(ctx context.Context) ([]byte, error)
}

// Connection is the uniform capability set every protocol sequence
// implements (spec §4.2, re-expressed per §9 as a tagged-variant interface
// in place of the source's function-pointer vtable).
//
// Implementations are not safe for concurrent writers (spec §5: "concurrent
// writes to a single connection are not safe and must be serialised by the
// caller"); a single concurrent reader and a single concurrent writer,
// plus concurrent calls to CancelCall/CloseRead/Close, are always safe.
type Connection interface {
	// Open performs the transport-specific handshake (dial, pipe connect,
	// HTTP auth loop) to make the connection ready for Read/Write. Open is
	// idempotent once the connection is ready.
	Open(ctx context.Context) error

	// Read blocks until data is available, returning the bytes placed into
	// buf. A concurrent CloseRead unblocks an in-flight Read with failure.
	Read(ctx context.Context, buf []byte) (int, error)

	// Write blocks until all of buf has been accepted by the transport, or
	// returns a short count with a non-nil error.
	Write(ctx context.Context, buf []byte) (int, error)

	// Close releases all owned OS resources. After Close, Read/Write/
	// WaitForIncomingData must fail.
	Close() error

	// CloseRead shuts down the receive side only; Write continues to work.
	CloseRead() error

	// CancelCall asynchronously aborts any in-flight Read/Write/
	// WaitForIncomingData without tearing down the underlying handle.
	CancelCall()

	// WaitForIncomingData blocks until a subsequent Read would not block,
	// or until CancelCall fires.
	WaitForIncomingData(ctx context.Context) error

	// Impersonate adopts the peer's security identity for the duration of
	// one call (pipes only; a no-op elsewhere per spec §4.2).
	Impersonate() error

	// Revert undoes a prior Impersonate.
	Revert() error

	// GetTopOfTower returns the bit-exact floor bytes for (networkAddr,
	// endpoint) per spec §6.
	GetTopOfTower(networkAddr, endpoint string) ([]byte, error)

	// ParseTopOfTower is the inverse of GetTopOfTower. It returns
	// [KindNotRegistered] when towerBytes does not match this transport's
	// expected floors.
	ParseTopOfTower(towerBytes []byte) (networkAddr, endpoint string, err error)

	// IsServerListening probes whether a server is reachable at
	// (networkAddr, endpoint) without establishing a full connection.
	IsServerListening(ctx context.Context, networkAddr, endpoint string) (bool, error)

	// IsAuthorized reports whether the connection carries authentication
	// material the peer has accepted.
	IsAuthorized() bool

	// Authorize drives the transport's authentication handshake, if any.
	Authorize(ctx context.Context) error

	// SecurePacket applies or verifies the transport's packet-level
	// security (signing/sealing), a no-op for every transport this
	// package implements (spec §4.2.1: "secure-packet is a no-op").
	SecurePacket(buf []byte) ([]byte, error)

	// InquireAuthClient reports the authentication level and service
	// negotiated for the connection.
	InquireAuthClient() (level string, service string, err error)

	// InquireClientPID reports the OS process ID of the peer, when the
	// transport can determine it. ok is false when the transport has no
	// such capability (spec §4.1: "inquire-client-pid (optional)").
	InquireClientPID() (pid int, ok bool)

	// NetworkAddr returns the caller-supplied (client) or peer-observed
	// (server, post-accept) network address. Immutable after Open.
	NetworkAddr() string

	// Endpoint returns the transport-specific endpoint string. Immutable
	// after Open.
	Endpoint() string

	// IsServer reports whether this connection was allocated for
	// server-side use.
	IsServer() bool

	// Configure installs the caller-supplied address, endpoint, QoS, and
	// authentication material before Open is called, matching the
	// allocate-then-configure lifecycle of spec §3. Not safe to call
	// concurrently with any other method.
	Configure(networkAddr, endpoint string, qos QoS, auth AuthInfo)

	// Grab increments the reference count.
	Grab()

	// Release decrements the reference count, closing the connection when
	// it reaches zero.
	Release() error

	// ReleaseAndWait releases and then blocks until no other holder of a
	// reference is still performing I/O on the connection (spec §4.5).
	ReleaseAndWait() error
}

// BaseConn implements the reference-counting and immutable-metadata
// portion of [Connection] (spec §3, §4.5) shared by every transport
// variant. Transport-specific types embed BaseConn and implement the
// remaining capability methods.
type BaseConn struct {
	refcount int32 // atomic

	isServer     bool
	networkAddr  atomic.Value // string
	endpoint     atomic.Value // string
	nextCallID   atomic.Uint32
	maxXmitSize  int
	qos          QoS
	auth         AuthInfo

	releaseMu   sync.Mutex
	releaseWait chan struct{}

	// closeFunc performs the transport-specific teardown. Set once by the
	// embedding type before the connection becomes reachable.
	closeFunc func() error
}

// NewBaseConn returns a [BaseConn] with an initial reference count of one,
// matching spec §3's "reference count ≥ 1 while reachable" invariant.
func NewBaseConn(isServer bool, networkAddr, endpoint string, maxXmitSize int, qos QoS, auth AuthInfo, closeFunc func() error) BaseConn {
	b := BaseConn{
		refcount:    1,
		isServer:    isServer,
		maxXmitSize: maxXmitSize,
		qos:         qos,
		auth:        auth,
		closeFunc:   closeFunc,
	}
	b.networkAddr.Store(networkAddr)
	b.endpoint.Store(endpoint)
	return b
}

func (b *BaseConn) NetworkAddr() string {
	return b.networkAddr.Load().(string)
}

func (b *BaseConn) Endpoint() string {
	return b.endpoint.Load().(string)
}

// SetNetworkAddr updates the network address once the peer is known, e.g.
// after a server-side accept fills in the client's numeric address (spec
// §4.2.2 "fill its NetworkAddr with the peer's numeric address").
func (b *BaseConn) SetNetworkAddr(addr string) {
	b.networkAddr.Store(addr)
}

func (b *BaseConn) IsServer() bool {
	return b.isServer
}

func (b *BaseConn) NextCall() uint32 {
	return b.nextCallID.Add(1)
}

// QoS returns the security-quality-of-service descriptor the connection
// was configured with.
func (b *BaseConn) QoS() QoS {
	return b.qos
}

// AuthInfo returns the authentication material the connection was
// configured with.
func (b *BaseConn) AuthInfo() AuthInfo {
	return b.auth
}

// Configure implements [Connection.Configure].
func (b *BaseConn) Configure(networkAddr, endpoint string, qos QoS, auth AuthInfo) {
	b.networkAddr.Store(networkAddr)
	b.endpoint.Store(endpoint)
	b.qos = qos
	b.auth = auth
}

// MaxTransmissionSize returns the maximum fragment size this connection
// accepts (spec §3, Config.MaxTransmissionSize).
func (b *BaseConn) MaxTransmissionSize() int {
	return b.maxXmitSize
}

// Grab implements [Connection.Grab].
func (b *BaseConn) Grab() {
	atomic.AddInt32(&b.refcount, 1)
}

// Release implements [Connection.Release].
func (b *BaseConn) Release() error {
	if atomic.AddInt32(&b.refcount, -1) > 0 {
		return nil
	}
	err := b.closeFunc()
	b.releaseMu.Lock()
	wait := b.releaseWait
	b.releaseMu.Unlock()
	if wait != nil {
		close(wait)
	}
	return err
}

// ReleaseAndWait implements [Connection.ReleaseAndWait].
func (b *BaseConn) ReleaseAndWait() error {
	b.releaseMu.Lock()
	if atomic.LoadInt32(&b.refcount) > 1 && b.releaseWait == nil {
		b.releaseWait = make(chan struct{})
	}
	wait := b.releaseWait
	b.releaseMu.Unlock()

	err := b.Release()
	if wait != nil {
		<-wait
	}
	return err
}
