//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: rpcrt4_ncacn_http_open's RpcProxy=/HttpProxy= option
// parsing in Wine's dlls/rpcrt4/rpc_transport.c (see original_source).
//

package htun

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Options carries the per-pipe settings ncacn_http needs to dial and
// authenticate: the parsed form of a connection's NetworkOptions string,
// plus its CookieAuth, which travels separately since it is not part of
// the NetworkOptions string (spec §3, §6).
type Options struct {
	// RpcProxy is the host[:port] of the RPC-in-HTTP proxy (rpcproxy.dll).
	RpcProxy string

	// HttpProxy is the host[:port] of an outbound HTTP proxy used to reach
	// RpcProxy, or empty when connecting directly.
	HttpProxy string

	// CookieAuth is [transport.QoS.CookieAuth], carried alongside the
	// parsed NetworkOptions so every request built for this pipe can apply
	// it via [ApplyCookieAuth].
	CookieAuth string
}

// ParseOptions parses a NetworkOptions string (spec §6). Unrecognized keys
// are ignored (spec: "any other key: traced as unhandled, ignored").
func ParseOptions(networkOptions string) Options {
	var opts Options
	for _, field := range strings.Split(networkOptions, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "rpcproxy":
			opts.RpcProxy = strings.TrimSpace(value)
		case "httpproxy":
			opts.HttpProxy = strings.TrimSpace(value)
		}
	}
	return opts
}

// proxyHostPort returns host:port for a RpcProxy/HttpProxy value, adding
// the transport's default port (80 or 443) when the value omits one.
func proxyHostPort(hostport string, useSSL bool) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	port := "80"
	if useSSL {
		port = "443"
	}
	return net.JoinHostPort(hostport, port)
}

// TargetURL builds the RPC-in-HTTP request URL for one virtual pipe: the
// tunnel runs against the proxy's host but names the true (targetHost,
// targetEndpoint) destination in the query string (spec §6 "HTTP wire").
func TargetURL(rpcProxy string, useSSL bool, targetHost, targetEndpoint string) *url.URL {
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return &url.URL{
		Scheme:   scheme,
		Host:     proxyHostPort(rpcProxy, useSSL),
		Path:     "/rpc/rpcproxy.dll",
		RawQuery: targetHost + ":" + targetEndpoint,
	}
}

// ApplyCookieAuth sets cookieAuth as req's Cookie header, when non-empty,
// before req is ever sent — the Go equivalent of InternetSetCookieW'ing
// the target URL prior to the first request (spec §6 "Cookie-based
// authentication, when supplied, is set on the URL prior to the first
// request"). Each virtual pipe dials a fresh connection per auth leg
// (see [dialPipe]), so there is no persistent cookie jar to set once and
// forget; the header is applied to every request built for the pipe
// instead.
func ApplyCookieAuth(req *http.Request, cookieAuth string) {
	if cookieAuth != "" {
		req.Header.Set("Cookie", cookieAuth)
	}
}
