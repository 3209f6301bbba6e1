//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: kryptco-kr/src/common/socket/socket_windows.go
//

package pipe

import (
	"context"
	"errors"
	"net"

	winio "github.com/Microsoft/go-winio"
)

// dialPipe connects to the Windows named pipe at pipeName.
func dialPipe(ctx context.Context, pipeName string) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, pipeName)
	if err != nil && errors.Is(err, winio.ErrPipeBusy) {
		return nil, errPipeBusy
	}
	return conn, err
}

// pipeListener wraps the [net.Listener] go-winio returns for a named pipe.
type pipeListener struct {
	ln net.Listener
}

// listenPipe creates a duplex, message-mode named pipe with
// PIPE_UNLIMITED_INSTANCES (spec §4.2.1 "Server creation binds an
// overlapped, message-mode, duplex pipe with PIPE_UNLIMITED_INSTANCES").
func listenPipe(pipeName string) (*pipeListener, error) {
	cfg := &winio.PipeConfig{
		MessageMode:      true,
		InputBufferSize:  int32(maxPipeBufferSize),
		OutputBufferSize: int32(maxPipeBufferSize),
	}
	ln, err := winio.ListenPipe(pipeName, cfg)
	if err != nil {
		if errors.Is(err, winio.ErrPipeBusy) {
			return nil, errDuplicateEndpoint
		}
		return nil, err
	}
	return &pipeListener{ln: ln}, nil
}

func (l *pipeListener) Accept() (net.Conn, error) {
	return l.ln.Accept()
}

func (l *pipeListener) Close() error {
	return l.ln.Close()
}

// closeRead has no half-close primitive on Windows named pipes; the
// transport falls back to a deadline-based read abort identical to
// cancel_call (spec §4.2.1's close-read contract is preserved: the next
// read fails, write continues to work, because only SetReadDeadline is
// touched).
func closeRead(conn net.Conn) error {
	return conn.SetReadDeadline(aLongTimeAgo)
}

// peerPID: go-winio does not expose GetNamedPipeClientProcessId through
// its public API, so this transport cannot answer InquireClientPID on
// Windows. See DESIGN.md for this platform asymmetry.
func peerPID(conn net.Conn) (int, bool) {
	return 0, false
}
