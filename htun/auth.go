//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the HTTP_Authorize leg-iteration loop in Wine's
// dlls/rpcrt4/rpc_transport.c (see original_source), re-expressed against
// net/http and github.com/Azure/go-ntlmssp's NTLM message builders.
//

package htun

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/dce-msrpc/transport"
)

// Authorizer drives the ncacn_http authentication loop (spec §4.4) for one
// virtual pipe's connect request.
type Authorizer struct {
	// Scheme names the preferred authentication scheme: "Basic", "NTLM",
	// "Negotiate", "Digest", or "Passport". Empty means no authentication.
	Scheme   string
	Username string
	Password string

	// StepTimeout bounds the NTLM/Negotiate negotiate probe leg, which
	// carries no application body and so can be timed independently of
	// the caller's overall Open deadline (spec §4.4: "each asynchronous
	// step... a 60s default").
	StepTimeout time.Duration
}

// Authorize prepares and sends req (built fresh by newRequest for each
// leg, since a consumed request body cannot be replayed) via do, iterating
// extra legs for multi-step schemes. It returns the final response once
// the scheme reports completion or the server accepts.
//
// Every leg gets its own *http.Request with its own Header map (newRequest
// is called again rather than the prior leg's request being mutated and
// resent), and the virtual pipe's subsequent traffic is the accepted leg's
// already-open request/response body stream, not a further HTTP request —
// so there is no later request for an Authorization header to leak onto
// (spec §4.4: the header "must not leak into subsequent virtual-pipe
// traffic").
//
// Basic and NTLM/Negotiate are fully implemented (spec §4.4); Digest and
// Passport are recognized but rejected with [transport.ErrUnsupportedAuthScheme].
func (a *Authorizer) Authorize(
	newRequest func() (*http.Request, error),
	do func(*http.Request) (*http.Response, error),
) (*http.Response, error) {
	switch strings.ToLower(a.Scheme) {
	case "":
		req, err := newRequest()
		if err != nil {
			return nil, err
		}
		return do(req)
	case "basic":
		return a.authorizeBasic(newRequest, do)
	case "ntlm", "negotiate":
		return a.authorizeNTLM(newRequest, do)
	default:
		// Digest and Passport are recognized so the loop does not choke on
		// the WWW-Authenticate header, but are not implemented (spec §9
		// Open Questions).
		return nil, transport.ErrUnsupportedAuthScheme
	}
}

func (a *Authorizer) authorizeBasic(newRequest func() (*http.Request, error), do func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	req, err := newRequest()
	if err != nil {
		return nil, err
	}
	token := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+token)
	return do(req)
}

func (a *Authorizer) authorizeNTLM(newRequest func() (*http.Request, error), do func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	scheme := "NTLM"
	if strings.EqualFold(a.Scheme, "Negotiate") {
		scheme = "Negotiate"
	}

	req1, err := newRequest()
	if err != nil {
		return nil, err
	}
	if a.StepTimeout > 0 {
		stepCtx, cancel := context.WithTimeout(req1.Context(), a.StepTimeout)
		defer cancel()
		req1 = req1.WithContext(stepCtx)
	}
	negotiate := ntlmssp.NewNegotiateMessage("", "")
	req1.Header.Set("Authorization", scheme+" "+base64.StdEncoding.EncodeToString(negotiate))

	resp1, err := do(req1)
	if err != nil {
		return nil, err
	}
	if resp1.StatusCode != http.StatusUnauthorized {
		return resp1, nil // server accepted the first leg outright
	}
	resp1.Body.Close()

	challenge, err := extractChallenge(resp1.Header, scheme)
	if err != nil {
		return nil, err
	}

	authenticate, err := ntlmssp.ProcessChallenge(challenge, a.Username, a.Password)
	if err != nil {
		return nil, fmt.Errorf("htun: NTLM challenge processing failed: %w", err)
	}

	req2, err := newRequest()
	if err != nil {
		return nil, err
	}
	req2.Header.Set("Authorization", scheme+" "+base64.StdEncoding.EncodeToString(authenticate))
	return do(req2)
}

// extractChallenge pulls the base64 challenge blob out of a WWW-Authenticate
// header for scheme (spec §4.4: "extract the WWW-Authenticate header for
// the same scheme, base64-decode the challenge").
func extractChallenge(header http.Header, scheme string) ([]byte, error) {
	prefix := scheme + " "
	for _, value := range header.Values("Www-Authenticate") {
		if rest, ok := strings.CutPrefix(value, prefix); ok {
			return base64.StdEncoding.DecodeString(rest)
		}
	}
	return nil, fmt.Errorf("htun: server did not continue %s negotiation", scheme)
}
