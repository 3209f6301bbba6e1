// SPDX-License-Identifier: GPL-3.0-or-later

package htun

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOptions(t *testing.T) {
	opts := ParseOptions("RpcProxy=proxy.example.com,HttpProxy=gw.example.com:8080")
	assert.Equal(t, "proxy.example.com", opts.RpcProxy)
	assert.Equal(t, "gw.example.com:8080", opts.HttpProxy)
}

func TestParseOptionsCaseInsensitiveKeys(t *testing.T) {
	opts := ParseOptions("rpcPROXY=proxy.example.com")
	assert.Equal(t, "proxy.example.com", opts.RpcProxy)
}

func TestParseOptionsIgnoresUnknownKeys(t *testing.T) {
	opts := ParseOptions("RpcProxy=proxy.example.com,SomethingElse=ignored")
	assert.Equal(t, "proxy.example.com", opts.RpcProxy)
	assert.Empty(t, opts.HttpProxy)
}

func TestParseOptionsEmptyString(t *testing.T) {
	opts := ParseOptions("")
	assert.Empty(t, opts.RpcProxy)
	assert.Empty(t, opts.HttpProxy)
}

func TestProxyHostPortAddsDefaultPort(t *testing.T) {
	assert.Equal(t, "proxy.example.com:80", proxyHostPort("proxy.example.com", false))
	assert.Equal(t, "proxy.example.com:443", proxyHostPort("proxy.example.com", true))
	assert.Equal(t, "proxy.example.com:8080", proxyHostPort("proxy.example.com:8080", false))
}

func TestTargetURL(t *testing.T) {
	u := TargetURL("proxy.example.com", false, "dc01.example.com", "135")
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "proxy.example.com:80", u.Host)
	assert.Equal(t, "/rpc/rpcproxy.dll", u.Path)
	assert.Equal(t, "dc01.example.com:135", u.RawQuery)
}

func TestTargetURLUsesSSLScheme(t *testing.T) {
	u := TargetURL("proxy.example.com", true, "dc01.example.com", "135")
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "proxy.example.com:443", u.Host)
}

func TestApplyCookieAuthSetsHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://proxy.example.com/rpc/rpcproxy.dll", nil)
	assert.NoError(t, err)
	ApplyCookieAuth(req, "RpcProxyCookie=abc123")
	assert.Equal(t, "RpcProxyCookie=abc123", req.Header.Get("Cookie"))
}

func TestApplyCookieAuthLeavesHeaderUnsetWhenEmpty(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://proxy.example.com/rpc/rpcproxy.dll", nil)
	assert.NoError(t, err)
	ApplyCookieAuth(req, "")
	assert.Empty(t, req.Header.Get("Cookie"))
}
