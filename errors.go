// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a transport-level failure into one of the abstract error
// kinds a DCE/MSRPC runtime needs to distinguish, independent of which
// protocol sequence produced it. The outer runtime (out of scope here)
// assigns concrete status codes to each kind; this package only carries
// the classification.
type Kind int

const (
	// KindServerUnavailable means the transport could not reach the peer.
	KindServerUnavailable Kind = iota + 1

	// KindServerTooBusy means the peer was reachable but refused, e.g. a
	// named pipe that stayed busy beyond the retry budget.
	KindServerTooBusy

	// KindCantCreateEndpoint means bind/create failed for local reasons.
	KindCantCreateEndpoint

	// KindDuplicateEndpoint means the requested endpoint name is already
	// bound by another listener.
	KindDuplicateEndpoint

	// KindInvalidEndpointFormat means the endpoint string did not parse.
	KindInvalidEndpointFormat

	// KindProtseqNotSupported means the protocol-sequence name is not in
	// the registry.
	KindProtseqNotSupported

	// KindNotRegistered means tower bytes did not match the expected
	// floors for a transport.
	KindNotRegistered

	// KindProtocolError means a wire-format violation occurred mid-session,
	// e.g. an unrecognized ncacn_http control-packet flag.
	KindProtocolError

	// KindCallCancelled means a cancellation event fired while a call was
	// blocked in a wait.
	KindCallCancelled

	// KindOutOfResources means allocation or handle exhaustion prevented
	// the operation from completing.
	KindOutOfResources

	// KindNoContextAvailable means security impersonation was refused.
	KindNoContextAvailable

	// KindAccessDenied means authentication was rejected by the server.
	KindAccessDenied
)

// String returns the canonical name of the [Kind], matching the table in
// spec §7.
func (k Kind) String() string {
	switch k {
	case KindServerUnavailable:
		return "ServerUnavailable"
	case KindServerTooBusy:
		return "ServerTooBusy"
	case KindCantCreateEndpoint:
		return "CantCreateEndpoint"
	case KindDuplicateEndpoint:
		return "DuplicateEndpoint"
	case KindInvalidEndpointFormat:
		return "InvalidEndpointFormat"
	case KindProtseqNotSupported:
		return "ProtseqNotSupported"
	case KindNotRegistered:
		return "NotRegistered"
	case KindProtocolError:
		return "ProtocolError"
	case KindCallCancelled:
		return "CallCancelled"
	case KindOutOfResources:
		return "OutOfResources"
	case KindNoContextAvailable:
		return "NoContextAvailable"
	case KindAccessDenied:
		return "AccessDenied"
	default:
		return "Unknown"
	}
}

// Error wraps a transport failure with its abstract [Kind] and the
// component that raised it (e.g. "ncacn_ip_tcp", "ncacn_http").
//
// Use [errors.Is] against a bare [Kind]-carrying sentinel, or [AsKind] to
// extract the [Kind] of any error in a chain.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Component names the transport or sub-component that raised the error
	// (e.g. "ncalrpc", "ncacn_http").
	Component string

	// Cause is the underlying error, if any.
	Cause error
}

// NewError constructs an [*Error] with the given kind, component, and
// underlying cause. The cause may be nil.
func NewError(kind Kind, component string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Kind)
}

// Unwrap returns the underlying cause, if any, supporting [errors.Is] and
// [errors.As] across the wrapped chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an [*Error] with the same [Kind]. This lets
// callers write errors.Is(err, transport.NewError(transport.KindServerTooBusy, "", nil)).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// AsKind extracts the [Kind] from err, returning ok == false when neither err
// nor anything in its chain is an [*Error].
func AsKind(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// ErrUnsupportedAuthScheme is returned by the ncacn_http authentication
// loop when the server requests a scheme this package recognizes in
// WWW-Authenticate headers but does not drive: Digest and Passport.
var ErrUnsupportedAuthScheme = errors.New("transport: unsupported HTTP authentication scheme")
