//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: rpcrt4_protseq_np_open_endpoint / the listeners list in
// Wine's dlls/rpcrt4/rpc_transport.c, re-expressed with goroutines and
// channels per the redesign note in spec §9.
//

package pipe

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"github.com/dce-msrpc/transport"
)

type acceptItem struct {
	conn transport.Connection
	err  error
}

// Listener implements [transport.ProtseqListener] for ncacn_np and
// ncalrpc, which share one listener implementation (spec §4.1).
type Listener struct {
	variant Variant
	cfg     *transport.Config
	logger  transport.SLogger

	mu        sync.Mutex
	endpoints map[string]*pipeListener

	accepted chan acceptItem
	closed   chan struct{}
}

// NewListenerFactory returns a [transport.TransportDescriptor.NewListener]
// factory for variant.
func NewListenerFactory(variant Variant, cfg *transport.Config, logger transport.SLogger) func() transport.ProtseqListener {
	return func() transport.ProtseqListener {
		return &Listener{
			variant:   variant,
			cfg:       cfg,
			logger:    logger,
			endpoints: map[string]*pipeListener{},
			accepted:  make(chan acceptItem),
			closed:    make(chan struct{}),
		}
	}
}

// OpenEndpoint implements [transport.ProtseqListener.OpenEndpoint]. An
// empty endpoint synthesizes an anonymous per-process name (spec §4.2.1).
func (l *Listener) OpenEndpoint(ctx context.Context, endpoint string, maxCalls int) (string, error) {
	if endpoint == "" {
		if l.variant == VariantNCACNNP {
			endpoint = NewAnonymousNCACNNPEndpoint()
		} else {
			endpoint = NewAnonymousNCALRPCEndpoint()
		}
	}

	ln, err := listenPipe(l.variant.pipeName(endpoint))
	if err != nil {
		if errors.Is(err, errDuplicateEndpoint) {
			return "", transport.NewError(transport.KindDuplicateEndpoint, l.variant.protseqName(), err)
		}
		return "", transport.NewError(transport.KindCantCreateEndpoint, l.variant.protseqName(), err)
	}

	l.mu.Lock()
	l.endpoints[endpoint] = ln
	l.mu.Unlock()

	go l.acceptLoop(endpoint, ln)
	return endpoint, nil
}

func (l *Listener) acceptLoop(endpoint string, ln *pipeListener) {
	hostname, _ := os.Hostname()
	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-l.closed:
				return
			case l.accepted <- acceptItem{err: err}:
			}
			return
		}

		conn := adoptAccepted(l.variant, l.cfg, l.logger, hostname, endpoint, raw)
		select {
		case l.accepted <- acceptItem{conn: conn}:
		case <-l.closed:
			conn.Close()
			return
		}
	}
}

// Accept implements [transport.ProtseqListener.Accept].
func (l *Listener) Accept(ctx context.Context) (transport.Connection, error) {
	select {
	case item := <-l.accepted:
		return item.conn, item.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

// Close implements [transport.ProtseqListener.Close].
func (l *Listener) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
		close(l.closed)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, ln := range l.endpoints {
		if err := ln.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
