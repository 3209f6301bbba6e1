//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/windows.go
//

package errclass

import (
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	errEADDRNOTAVAIL   = syscall.Errno(windows.WSAEADDRNOTAVAIL)
	errEADDRINUSE      = syscall.Errno(windows.WSAEADDRINUSE)
	errECONNABORTED    = syscall.Errno(windows.WSAECONNABORTED)
	errECONNREFUSED    = syscall.Errno(windows.WSAECONNREFUSED)
	errECONNRESET      = syscall.Errno(windows.WSAECONNRESET)
	errEHOSTUNREACH    = syscall.Errno(windows.WSAEHOSTUNREACH)
	errEINVAL          = syscall.Errno(windows.WSAEINVAL)
	errEINTR           = syscall.Errno(windows.WSAEINTR)
	errENETDOWN        = syscall.Errno(windows.WSAENETDOWN)
	errENETUNREACH     = syscall.Errno(windows.WSAENETUNREACH)
	errENOBUFS         = syscall.Errno(windows.WSAENOBUFS)
	errENOTCONN        = syscall.Errno(windows.WSAENOTCONN)
	errEPROTONOSUPPORT = syscall.Errno(windows.WSAEPROTONOSUPPORT)
	errETIMEDOUT       = syscall.Errno(windows.WSAETIMEDOUT)
)
