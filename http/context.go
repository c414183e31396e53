// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"net/http"
)

type contextKey struct {
	name string
}

func (k *contextKey) String() string { return "gssapi/http context value " + k.name }

var initiatorContextKey = &contextKey{"initiator"}

// InitiatorName describes the authenticated client of a request.
type InitiatorName struct {
	// PrincipalName is the mechanism's display form of the initiator, eg. "alice@EXAMPLE.COM"
	PrincipalName string

	// ChannelBound is set when the context was bound to the TLS connection
	ChannelBound bool
}

func stashInitiatorName(ctx context.Context, in *InitiatorName) context.Context {
	return context.WithValue(ctx, initiatorContextKey, in)
}

// GetInitiatorName returns the initiator recorded by [Handler.ServeHTTP] for use by the wrapped
// handler.
func GetInitiatorName(r *http.Request) (*InitiatorName, bool) {
	in, ok := r.Context().Value(initiatorContextKey).(*InitiatorName)
	return in, ok
}
