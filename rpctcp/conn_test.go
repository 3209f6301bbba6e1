// SPDX-License-Identifier: GPL-3.0-or-later

package rpctcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dce-msrpc/transport"
)

func dialEchoPair(t *testing.T) (client, server transport.Connection, ln transport.ProtseqListener) {
	t.Helper()
	cfg := transport.NewConfig()
	logger := transport.DefaultSLogger()

	ln = NewListenerFactory(cfg, logger)()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	port, err := ln.OpenEndpoint(ctx, "", 5)
	require.NoError(t, err)

	client = NewConnectionFactory(cfg, logger)(false)
	client.Configure("127.0.0.1", port, transport.QoS{}, transport.AuthInfo{})
	require.NoError(t, client.Open(ctx))

	server, err = ln.Accept(ctx)
	require.NoError(t, err)
	return client, server, ln
}

func TestConnOpenWriteReadRoundTrip(t *testing.T) {
	client, server, ln := dialEchoPair(t)
	defer ln.Close()
	defer client.Close()
	defer server.Close()

	ctx := context.Background()
	n, err := client.Write(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, server.WaitForIncomingData(ctx))

	buf := make([]byte, 16)
	n, err = server.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestConnServerObservesPeerAddr(t *testing.T) {
	client, server, ln := dialEchoPair(t)
	defer ln.Close()
	defer client.Close()
	defer server.Close()

	assert.Equal(t, "127.0.0.1", server.NetworkAddr())
	assert.True(t, server.IsServer())
	assert.False(t, client.IsServer())
}

func TestConnCancelCallUnblocksRead(t *testing.T) {
	client, server, ln := dialEchoPair(t)
	defer ln.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := server.Read(context.Background(), buf)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	server.CancelCall()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("CancelCall did not unblock Read")
	}
}

func TestConnCloseReadLeavesWriteOpen(t *testing.T) {
	client, server, ln := dialEchoPair(t)
	defer ln.Close()
	defer client.Close()
	defer server.Close()

	require.NoError(t, server.CloseRead())

	_, err := server.Read(context.Background(), make([]byte, 1))
	assert.Error(t, err)

	_, err = server.Write(context.Background(), []byte("still writable"))
	assert.NoError(t, err)
}

func TestConnTopOfTowerRoundTrip(t *testing.T) {
	client, server, ln := dialEchoPair(t)
	defer ln.Close()
	defer client.Close()
	defer server.Close()

	b, err := client.GetTopOfTower("127.0.0.1", client.Endpoint())
	require.NoError(t, err)

	addr, endpoint, err := client.ParseTopOfTower(b)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr)
	assert.Equal(t, client.Endpoint(), endpoint)
}

func TestConnIsServerListening(t *testing.T) {
	client, server, ln := dialEchoPair(t)
	defer ln.Close()
	defer client.Close()
	defer server.Close()

	up, err := client.IsServerListening(context.Background(), "127.0.0.1", client.Endpoint())
	require.NoError(t, err)
	assert.True(t, up)

	down, err := client.IsServerListening(context.Background(), "127.0.0.1", "1")
	require.NoError(t, err)
	assert.False(t, down)
}
