// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport is the transport layer of a DCE/MSRPC runtime.
//
// It mediates between higher-level RPC binding/association logic (out of
// scope for this package) and the underlying OS byte channels, hiding four
// protocol sequences behind one [Connection] contract:
//
//   - ncacn_np:     network named pipe, see package [github.com/dce-msrpc/transport/pipe]
//   - ncalrpc:      local RPC over a local pipe, also package pipe
//   - ncacn_ip_tcp: RPC over TCP, see package [github.com/dce-msrpc/transport/rpctcp]
//   - ncacn_http:   RPC-in-HTTP via a proxy, see package [github.com/dce-msrpc/transport/htun]
//
// Callers never construct a transport directly. They look one up by
// protocol-sequence name via [Lookup] and drive the result through
// [Connection]'s open/read/write/close/cancel surface.
//
// # Core Abstraction
//
// Beneath the per-protocol connections, this package keeps one core
// abstraction throughout: a single generic interface
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// representing an atomic operation with one success mode and one failure
// mode, composable via [Compose2]..[Compose8]. The transport variants build
// their Open on top of this: [ConnectFunc] dials, [ObserveConnFunc] wraps
// the result with structured I/O logging, and [CancelWatchFunc] ties the
// connection's lifetime to a context so that cancellation always has a
// single, uniform effect regardless of which protocol sequence is in play.
//
// # Connection Lifecycle
//
// [Connection] is reference counted: [Connection.Grab] and
// [Connection.Release] pair around every reachable reference, and
// [Connection.ReleaseAndWait] is for a caller that must be sure no I/O
// is still in flight before proceeding. Reaching a zero refcount closes the
// connection.
//
// # Observability
//
// Every connection variant supports structured logging via [SLogger]
// (compatible with [log/slog]); by default logging is a no-op. Lifecycle
// spans (connect, TLS handshake, close) log at Info; per-I/O spans (read,
// write, set deadline) log at Debug. Accepts are not logged. [ErrClassifier]
// tags errors with a short class string (e.g. "ECONNRESET") drawn from the
// package errclass.
//
// # Error Kinds
//
// [Kind] enumerates the abstract error taxonomy of the runtime
// (ServerUnavailable, ServerTooBusy, DuplicateEndpoint, ...). Every
// transport-level failure is wrapped in an [*Error] carrying one of these
// kinds, recoverable with [AsKind] and comparable with [errors.Is] against a
// bare [*Error] of the same [Kind] (e.g. [NewError] with
// [KindServerUnavailable]).
//
// # Design Boundaries
//
// Marshalling, interface registration, dispatch threading, higher-level
// authentication negotiation, name-service lookup, and the endpoint-mapper
// database are all out of scope: this package exposes byte I/O, packet
// framing (ncacn_http only), listener lifecycle, and tower codecs, and
// consumes authentication material, QoS descriptors, and an accept
// callback from its caller.
package transport
