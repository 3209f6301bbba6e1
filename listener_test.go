// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a minimal [Connection] double used to exercise [Listener]
// without any real transport.
type fakeConn struct {
	BaseConn
}

func newFakeConn(isServer bool, addr, endpoint string) *fakeConn {
	return &fakeConn{BaseConn: NewBaseConn(isServer, addr, endpoint, DefaultMaxTransmissionSize, QoS{}, AuthInfo{}, func() error { return nil })}
}

func (c *fakeConn) Open(ctx context.Context) error                      { return nil }
func (c *fakeConn) Read(ctx context.Context, buf []byte) (int, error)   { return 0, nil }
func (c *fakeConn) Write(ctx context.Context, buf []byte) (int, error)  { return len(buf), nil }
func (c *fakeConn) Close() error                                        { return nil }
func (c *fakeConn) CloseRead() error                                    { return nil }
func (c *fakeConn) CancelCall()                                         {}
func (c *fakeConn) WaitForIncomingData(ctx context.Context) error       { return nil }
func (c *fakeConn) Impersonate() error                                  { return nil }
func (c *fakeConn) Revert() error                                       { return nil }
func (c *fakeConn) GetTopOfTower(addr, ep string) ([]byte, error)       { return nil, nil }
func (c *fakeConn) ParseTopOfTower(b []byte) (string, string, error)    { return "", "", nil }
func (c *fakeConn) IsServerListening(ctx context.Context, a, e string) (bool, error) {
	return false, nil
}
func (c *fakeConn) IsAuthorized() bool                          { return true }
func (c *fakeConn) Authorize(ctx context.Context) error          { return nil }
func (c *fakeConn) SecurePacket(buf []byte) ([]byte, error)      { return buf, nil }
func (c *fakeConn) InquireAuthClient() (string, string, error)   { return "", "", nil }
func (c *fakeConn) InquireClientPID() (int, bool)                { return 0, false }
func (c *fakeConn) Configure(addr, ep string, qos QoS, auth AuthInfo) { c.BaseConn.Configure(addr, ep, qos, auth) }

var _ Connection = &fakeConn{}

// fakeProtseqListener is a [ProtseqListener] double whose Accept channel is
// driven manually by tests.
type fakeProtseqListener struct {
	accept  chan Connection
	acceptErr chan error
	closed  chan struct{}
}

func newFakeProtseqListener() *fakeProtseqListener {
	return &fakeProtseqListener{
		accept:    make(chan Connection, 4),
		acceptErr: make(chan error, 4),
		closed:    make(chan struct{}),
	}
}

func (f *fakeProtseqListener) OpenEndpoint(ctx context.Context, endpoint string, maxCalls int) (string, error) {
	if endpoint == "" {
		return "135", nil
	}
	return endpoint, nil
}

func (f *fakeProtseqListener) Accept(ctx context.Context) (Connection, error) {
	select {
	case c := <-f.accept:
		return c, nil
	case err := <-f.acceptErr:
		return nil, err
	case <-f.closed:
		return nil, errors.New("listener closed")
	}
}

func (f *fakeProtseqListener) Close() error {
	close(f.closed)
	return nil
}

func TestListenerAcceptAndWait(t *testing.T) {
	impl := newFakeProtseqListener()
	l := &Listener{
		impl:         impl,
		accepted:     make(chan acceptResult),
		stateChanged: make(chan struct{}),
		shutdown:     make(chan struct{}),
	}

	bound, err := l.OpenEndpoint(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Equal(t, "135", bound)
	assert.Equal(t, []string{"135"}, l.Endpoints())

	spawned := newFakeConn(true, "127.0.0.1", "135")
	impl.accept <- spawned

	got, err := l.WaitForNewConnection(context.Background())
	require.NoError(t, err)
	assert.Same(t, spawned, got)

	l.mu.Lock()
	assert.Contains(t, l.connections, Connection(spawned))
	l.mu.Unlock()

	require.NoError(t, l.Close())
}

func TestListenerWaitForNewConnectionContextDone(t *testing.T) {
	impl := newFakeProtseqListener()
	l := &Listener{
		impl:         impl,
		accepted:     make(chan acceptResult),
		stateChanged: make(chan struct{}),
		shutdown:     make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.WaitForNewConnection(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, l.Close())
}

func TestListenerStateChanged(t *testing.T) {
	impl := newFakeProtseqListener()
	l := &Listener{
		impl:         impl,
		accepted:     make(chan acceptResult),
		stateChanged: make(chan struct{}),
		shutdown:     make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := l.WaitForNewConnection(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	_, err := l.OpenEndpoint(context.Background(), "136", 5)
	require.NoError(t, err)

	assert.ErrorIs(t, <-done, ErrListenerStateChanged)
	require.NoError(t, l.Close())
}

func TestNewListenerUnknownProtseq(t *testing.T) {
	_, err := NewListener("ncacn_bogus")
	kind, ok := AsKind(err)
	require.True(t, ok)
	assert.Equal(t, KindProtseqNotSupported, kind)
}
