//go:build !windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package pipe

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// socketPath maps a Windows-style named-pipe path (e.g.
// `\\.\pipe\lrpc\LRPC00001234.00000001`) onto a filesystem path for the
// Unix-domain-socket backend, grounded on kryptco-kr's
// src/common/socket/socket_unix.go convention of dialing/listening plain
// filesystem paths.
func socketPath(pipeName string) string {
	sanitized := strings.NewReplacer(`\`, "_", `/`, "_", ":", "_").Replace(pipeName)
	return filepath.Join(os.TempDir(), "dce-msrpc-"+sanitized+".sock")
}

// dialPipe connects to the Unix-domain socket backing pipeName.
func dialPipe(ctx context.Context, pipeName string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", socketPath(pipeName))
}

// pipeListener wraps a [*net.UnixListener] bound to the socket path backing
// a named pipe.
type pipeListener struct {
	ln *net.UnixListener
}

// listenPipe binds a fresh Unix-domain socket for pipeName, removing any
// stale socket file left behind by a previous process.
func listenPipe(pipeName string) (*pipeListener, error) {
	path := socketPath(pipeName)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	if _, err := net.DialUnix("unix", nil, addr); err == nil {
		return nil, errDuplicateEndpoint
	}
	os.Remove(path)
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	return &pipeListener{ln: ln}, nil
}

func (l *pipeListener) Accept() (net.Conn, error) {
	return l.ln.AcceptUnix()
}

func (l *pipeListener) Close() error {
	err := l.ln.Close()
	os.Remove(l.ln.Addr().String())
	return err
}

// closeRead performs a receive-direction-only shutdown, matching
// (*net.TCPConn).CloseRead's semantics for the ncacn_ip_tcp variant (spec
// §4.2.1).
func closeRead(conn net.Conn) error {
	if uc, ok := conn.(*net.UnixConn); ok {
		return uc.CloseRead()
	}
	return conn.Close()
}
