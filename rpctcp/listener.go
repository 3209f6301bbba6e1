//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: rpcrt4_protseq_tcp_open_endpoint / _accept in Wine's
// dlls/rpcrt4/rpc_transport.c, re-expressed with goroutines and channels
// per the redesign note in spec §9.
//

package rpctcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"

	"github.com/dce-msrpc/transport"
)

type acceptItem struct {
	conn transport.Connection
	err  error
}

// Listener implements [transport.ProtseqListener] for ncacn_ip_tcp.
//
// Spec §4.2.2 describes binding both address families from a single
// listener when the platform supports it; [net.Listen] with network "tcp"
// already does this (it picks a dual-stack IPv6 socket when available and
// falls back to IPv4), so there is nothing further to implement here.
type Listener struct {
	cfg    *transport.Config
	logger transport.SLogger

	mu sync.Mutex
	ln *net.TCPListener

	accepted chan acceptItem
	closed   chan struct{}
}

// NewListenerFactory returns a [transport.TransportDescriptor.NewListener]
// factory for ncacn_ip_tcp.
func NewListenerFactory(cfg *transport.Config, logger transport.SLogger) func() transport.ProtseqListener {
	return func() transport.ProtseqListener {
		return &Listener{
			cfg:      cfg,
			logger:   logger,
			accepted: make(chan acceptItem),
			closed:   make(chan struct{}),
		}
	}
}

// OpenEndpoint implements [transport.ProtseqListener.OpenEndpoint]. An
// empty endpoint resolves to an ephemeral port (spec §4.2.2: `"0"`), and
// the bound port is reported back as the actual endpoint string.
func (l *Listener) OpenEndpoint(ctx context.Context, endpoint string, maxCalls int) (string, error) {
	if endpoint == "" {
		endpoint = "0"
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("", endpoint))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return "", transport.NewError(transport.KindDuplicateEndpoint, protseqName, err)
		}
		return "", transport.NewError(transport.KindCantCreateEndpoint, protseqName, err)
	}
	tcpLn := ln.(*net.TCPListener)

	_, port, err := net.SplitHostPort(tcpLn.Addr().String())
	if err != nil {
		tcpLn.Close()
		return "", transport.NewError(transport.KindCantCreateEndpoint, protseqName, err)
	}

	l.mu.Lock()
	l.ln = tcpLn
	l.mu.Unlock()

	go l.acceptLoop(port)
	return port, nil
}

func (l *Listener) acceptLoop(endpoint string) {
	for {
		raw, err := l.ln.AcceptTCP()
		if err != nil {
			select {
			case <-l.closed:
				return
			case l.accepted <- acceptItem{err: err}:
			}
			return
		}
		raw.SetNoDelay(true)

		peerAddr, _, _ := net.SplitHostPort(raw.RemoteAddr().String())
		conn := adoptAccepted(l.cfg, l.logger, peerAddr, endpoint, raw)

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
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}
