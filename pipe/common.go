// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import (
	"errors"
	"time"
)

// maxPipeBufferSize bounds the in/out buffer size requested from the OS
// when creating a server-side pipe instance (spec §4.2.1: "the
// transport's maximum packet size as both in and out buffer sizes").
const maxPipeBufferSize = 5840

// aLongTimeAgo is an already-elapsed deadline used to abort a blocked
// Read without tearing down the underlying handle, mirroring the
// ncacn_ip_tcp cancel_call trick (spec §4.2.2) for the pipe variant's
// CloseRead where no half-close primitive exists (Windows named pipes).
var aLongTimeAgo = time.Unix(0, 1)

// errPipeBusy signals that a client dial found the named pipe busy
// (Windows: winio.ErrPipeBusy; spec §4.2.1 "If the pipe is busy the
// client waits … and retries").
var errPipeBusy = errors.New("pipe: busy")

// errDuplicateEndpoint signals that a server-side bind found the endpoint
// name already in use (spec §4.2.1, §7 Kind DuplicateEndpoint).
var errDuplicateEndpoint = errors.New("pipe: endpoint already in use")
