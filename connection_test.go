// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseConnRefcount(t *testing.T) {
	var closed atomic.Bool
	b := NewBaseConn(false, "127.0.0.1", "135", DefaultMaxTransmissionSize, QoS{}, AuthInfo{}, func() error {
		closed.Store(true)
		return nil
	})

	b.Grab()
	require.NoError(t, b.Release())
	assert.False(t, closed.Load(), "connection must not close while refcount > 0")

	require.NoError(t, b.Release())
	assert.True(t, closed.Load(), "connection must close when refcount reaches 0")
}

func TestBaseConnReleaseAndWait(t *testing.T) {
	var closed atomic.Bool
	b := NewBaseConn(false, "127.0.0.1", "135", DefaultMaxTransmissionSize, QoS{}, AuthInfo{}, func() error {
		closed.Store(true)
		return nil
	})
	b.Grab()

	done := make(chan struct{})
	go func() {
		require.NoError(t, b.ReleaseAndWait())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.False(t, closed.Load())

	require.NoError(t, b.Release())
	<-done
	assert.True(t, closed.Load())
}

func TestBaseConnMetadataAndSetNetworkAddr(t *testing.T) {
	b := NewBaseConn(true, "10.0.0.1", "\\pipe\\demo", DefaultMaxTransmissionSize, QoS{}, AuthInfo{}, func() error { return nil })
	assert.Equal(t, "10.0.0.1", b.NetworkAddr())
	assert.Equal(t, "\\pipe\\demo", b.Endpoint())
	assert.True(t, b.IsServer())

	b.SetNetworkAddr("192.168.1.1")
	assert.Equal(t, "192.168.1.1", b.NetworkAddr())
}

func TestBaseConnNextCall(t *testing.T) {
	b := NewBaseConn(false, "", "", DefaultMaxTransmissionSize, QoS{}, AuthInfo{}, func() error { return nil })
	assert.Equal(t, uint32(1), b.NextCall())
	assert.Equal(t, uint32(2), b.NextCall())
}
