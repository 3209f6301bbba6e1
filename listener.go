// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrListenerStateChanged is returned by [Listener.WaitForNewConnection]
// when the set of bound endpoints changed (an endpoint was added) while
// the caller was waiting; re-expresses the source's "0 = state changed"
// wait-array outcome (spec §4.3) as a sentinel error instead of a numeric
// code, since a channel select naturally distinguishes the two cases.
var ErrListenerStateChanged = errors.New("transport: listener state changed")

// ProtseqListener is the transport-specific accept primitive a
// [TransportDescriptor.NewListener] factory returns. Implementations own
// one or more bound OS endpoints (pipe instances, a TCP listen socket) and
// pump accepted connections through Accept; [Listener] layers the
// wait-array protocol of spec §4.3 on top using channels in place of the
// source's OS handle array.
type ProtseqListener interface {
	// OpenEndpoint binds a new endpoint (creating one if endpoint is ""),
	// returning the resolved endpoint string (e.g. the ephemeral TCP port
	// actually bound).
	OpenEndpoint(ctx context.Context, endpoint string, maxCalls int) (string, error)

	// Accept blocks until a client connects to any bound endpoint, or ctx
	// is done. On success, the original endpoint remains bound and ready
	// to accept the next client (spec §4.3 "re-arms the original listener").
	Accept(ctx context.Context) (Connection, error)

	// Close tears down every bound endpoint.
	Close() error
}

type acceptResult struct {
	conn Connection
	err  error
}

// Listener holds the set of bound endpoints for one transport and lets an
// external acceptor drive them with a wait/signal protocol (spec §4.3),
// re-expressed with channels per the redesign note in §9: each bound
// endpoint's accept loop runs inside the transport-specific
// [ProtseqListener]; Listener multiplexes its results with a
// state-changed channel so a caller waiting across many listeners (one
// per transport) can be woken either by a new client or by a topology
// change (a new endpoint bound while the wait was in progress).
type Listener struct {
	desc *TransportDescriptor
	impl ProtseqListener

	mu          sync.Mutex
	endpoints   []string
	connections []Connection
	closed      bool
	stateChanged chan struct{}

	accepted chan acceptResult

	shutdownOnce sync.Once
	shutdown     chan struct{}
	pumpOnce     sync.Once
}

// NewListener allocates a [*Listener] for protseq. Returns
// [KindProtseqNotSupported] if the name is unknown, and the same kind
// (wrapping a descriptive cause) if the transport has no server-side
// listener, matching ncacn_http's stubbed server side (spec §4.1, §9).
func NewListener(protseq string) (*Listener, error) {
	desc, err := Lookup(protseq)
	if err != nil {
		return nil, err
	}
	if desc.NewListener == nil {
		return nil, NewError(KindProtseqNotSupported, protseq,
			errors.New("transport has no server-side listener"))
	}
	return &Listener{
		desc:         desc,
		impl:         desc.NewListener(),
		accepted:     make(chan acceptResult),
		stateChanged: make(chan struct{}),
		shutdown:     make(chan struct{}),
	}, nil
}

// OpenEndpoint binds a new endpoint on this listener's transport and joins
// it to the wait set, signalling any in-progress [Listener.WaitForNewConnection].
func (l *Listener) OpenEndpoint(ctx context.Context, endpoint string, maxCalls int) (string, error) {
	bound, err := l.impl.OpenEndpoint(ctx, endpoint, maxCalls)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	l.endpoints = append(l.endpoints, bound)
	l.mu.Unlock()

	l.pumpOnce.Do(func() { go l.pump() })
	l.signalStateChanged()
	return bound, nil
}

// Endpoints returns the currently bound endpoint strings.
func (l *Listener) Endpoints() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.endpoints))
	copy(out, l.endpoints)
	return out
}

func (l *Listener) pump() {
	for {
		conn, err := l.impl.Accept(context.Background())
		select {
		case <-l.shutdown:
			if conn != nil {
				conn.Release()
			}
			return
		default:
		}
		select {
		case l.accepted <- acceptResult{conn: conn, err: err}:
		case <-l.shutdown:
			if conn != nil {
				conn.Release()
			}
			return
		}
	}
}

func (l *Listener) signalStateChanged() {
	l.mu.Lock()
	old := l.stateChanged
	l.stateChanged = make(chan struct{})
	l.mu.Unlock()
	close(old)
}

// WaitForNewConnection blocks until a client connects to any bound
// endpoint, the bound-endpoint set changes ([ErrListenerStateChanged]),
// ctx is done, or the listener is closed ([net.ErrClosed]). On success,
// the spawned [Connection] has already been appended to the listener's
// connections list under its lock (spec §4.3 "appends it to the
// connections list under the listener's lock").
func (l *Listener) WaitForNewConnection(ctx context.Context) (Connection, error) {
	l.mu.Lock()
	sc := l.stateChanged
	l.mu.Unlock()

	select {
	case res := <-l.accepted:
		if res.err != nil {
			return nil, res.err
		}
		l.mu.Lock()
		l.connections = append(l.connections, res.conn)
		l.mu.Unlock()
		return res.conn, nil
	case <-sc:
		return nil, ErrListenerStateChanged
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.shutdown:
		return nil, net.ErrClosed
	}
}

// Close tears down every bound endpoint and releases every still-tracked
// accepted connection.
func (l *Listener) Close() error {
	l.shutdownOnce.Do(func() { close(l.shutdown) })

	l.mu.Lock()
	l.closed = true
	conns := l.connections
	l.connections = nil
	l.mu.Unlock()

	for _, c := range conns {
		c.Release()
	}
	return l.impl.Close()
}
