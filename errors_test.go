// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want string
	}{
		{"server unavailable", KindServerUnavailable, "ServerUnavailable"},
		{"server too busy", KindServerTooBusy, "ServerTooBusy"},
		{"cant create endpoint", KindCantCreateEndpoint, "CantCreateEndpoint"},
		{"duplicate endpoint", KindDuplicateEndpoint, "DuplicateEndpoint"},
		{"invalid endpoint format", KindInvalidEndpointFormat, "InvalidEndpointFormat"},
		{"protseq not supported", KindProtseqNotSupported, "ProtseqNotSupported"},
		{"not registered", KindNotRegistered, "NotRegistered"},
		{"protocol error", KindProtocolError, "ProtocolError"},
		{"call cancelled", KindCallCancelled, "CallCancelled"},
		{"out of resources", KindOutOfResources, "OutOfResources"},
		{"no context available", KindNoContextAvailable, "NoContextAvailable"},
		{"access denied", KindAccessDenied, "AccessDenied"},
		{"unknown", Kind(999), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindServerUnavailable, "ncacn_ip_tcp", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "ncacn_ip_tcp")
	assert.Contains(t, err.Error(), "ServerUnavailable")
	assert.Contains(t, err.Error(), "connection refused")

	assert.True(t, errors.Is(err, NewError(KindServerUnavailable, "", nil)))
	assert.False(t, errors.Is(err, NewError(KindServerTooBusy, "", nil)))
}

func TestAsKind(t *testing.T) {
	err := NewError(KindDuplicateEndpoint, "ncalrpc", nil)
	kind, ok := AsKind(err)
	assert.True(t, ok)
	assert.Equal(t, KindDuplicateEndpoint, kind)

	_, ok = AsKind(errors.New("plain error"))
	assert.False(t, ok)
}

func TestErrorWithoutCause(t *testing.T) {
	err := NewError(KindAccessDenied, "ncacn_http", nil)
	assert.Equal(t, "ncacn_http: AccessDenied", err.Error())
	assert.Nil(t, err.Unwrap())
}
