//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: bassosimone-nop's ConnectFunc/ObserveConnFunc/
// TLSHandshakeFunc/HTTPConnFunc pipeline (connect.go, observeconn.go,
// tls.go, httpconn.go), generalized here to thread an optional forward
// HTTP proxy.
//

package htun

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/dce-msrpc/transport"
)

// dialPipe dials one virtual pipe's underlying HTTP connection: through
// opts.HttpProxy via CONNECT when set, directly to opts.RpcProxy
// otherwise, then a TLS handshake when useSSL, finishing with
// [transport.HTTPConn] so every request/response this pipe performs is
// logged the same way.
func dialPipe(ctx context.Context, cfg *transport.Config, logger transport.SLogger, opts Options, useSSL bool) (*transport.HTTPConn, error) {
	target := proxyHostPort(opts.RpcProxy, useSSL)
	dialAddr := target
	if opts.HttpProxy != "" {
		dialAddr = proxyHostPort(opts.HttpProxy, false)
	}

	connect := transport.NewConnectFunc(cfg, "tcp", logger)
	raw, err := connect.Call(ctx, dialAddr)
	if err != nil {
		return nil, transport.NewError(transport.KindServerUnavailable, protseqName, err)
	}

	if opts.HttpProxy != "" {
		if err := connectTunnel(raw, target); err != nil {
			raw.Close()
			return nil, transport.NewError(transport.KindServerUnavailable, protseqName, err)
		}
	}

	observed, _ := transport.NewObserveConnFunc(cfg, logger).Call(ctx, raw)

	if useSSL {
		tlsFn := transport.NewTLSHandshakeFunc(cfg, &tls.Config{ServerName: hostOnly(target)}, logger)
		tconn, err := tlsFn.Call(ctx, observed)
		if err != nil {
			return nil, transport.NewError(transport.KindServerUnavailable, protseqName, err)
		}
		return transport.NewHTTPConnFuncTLS(cfg, logger).Call(ctx, tconn)
	}

	return transport.NewHTTPConnFuncPlain(cfg, logger).Call(ctx, observed)
}

// connectTunnel issues an HTTP CONNECT request over conn to establish a
// tunnel to target through an outbound HTTP proxy (spec §6 "HttpProxy=").
func connectTunnel(conn net.Conn, target string) error {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: target},
		Host:   target,
		Header: make(http.Header),
	}
	if err := req.Write(conn); err != nil {
		return err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("htun: proxy CONNECT to %s failed: %s", target, resp.Status)
	}
	return nil
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
