//go:build !windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: GetNamedPipeClientProcessId call sites in Wine's
// dlls/rpcrt4/rpc_transport.c, re-expressed with the POSIX equivalent
// SO_PEERCRED credential.
//

package pipe

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerPID reads the PID of the process on the other end of a Unix-domain
// socket via SO_PEERCRED, the POSIX analog of
// GetNamedPipeClientProcessId (spec §4.2.1 InquireClientPID).
func peerPID(conn net.Conn) (int, bool) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, false
	}
	var pid int
	var credErr error
	err = raw.Control(func(fd uintptr) {
		ucred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err != nil {
			credErr = err
			return
		}
		pid = int(ucred.Pid)
	})
	if err != nil || credErr != nil {
		return 0, false
	}
	return pid, true
}
