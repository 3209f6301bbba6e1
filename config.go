// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"net"
	"time"
)

// DefaultMaxTransmissionSize is the default maximum fragment size, in
// bytes, for connections created by this package (Wine's RPC_MAX_PACKET_SIZE).
const DefaultMaxTransmissionSize = 5840

// DefaultHTTPIdleInterval is the default interval between ncacn_http idle
// keepalive packets (§4.4, HTTP_IDLE_TIME).
const DefaultHTTPIdleInterval = 60 * time.Second

// DefaultHTTPRequestTimeout is the default per-request timeout for each
// asynchronous step of the ncacn_http authentication and virtual-pipe setup
// (§4.4, DEFAULT_NCACN_HTTP_TIMEOUT).
const DefaultHTTPRequestTimeout = 60 * time.Second

// Config holds common configuration for transport operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc] for ncacn_ip_tcp and ncacn_http.
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// MaxTransmissionSize bounds the size of a single fragment accepted by
	// local-pipe and HTTP connections.
	//
	// Set by [NewConfig] to [DefaultMaxTransmissionSize].
	MaxTransmissionSize int

	// HTTPIdleInterval is the period of the ncacn_http idle-keepalive timer.
	//
	// Set by [NewConfig] to [DefaultHTTPIdleInterval].
	HTTPIdleInterval time.Duration

	// HTTPRequestTimeout bounds each asynchronous HTTP step (auth leg,
	// virtual-pipe setup) in the ncacn_http tunnel engine.
	//
	// Set by [NewConfig] to [DefaultHTTPRequestTimeout].
	HTTPRequestTimeout time.Duration
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:              &net.Dialer{},
		ErrClassifier:       DefaultErrClassifier,
		TimeNow:             time.Now,
		MaxTransmissionSize: DefaultMaxTransmissionSize,
		HTTPIdleInterval:    DefaultHTTPIdleInterval,
		HTTPRequestTimeout:  DefaultHTTPRequestTimeout,
	}
}
