// SPDX-License-Identifier: Apache-2.0

package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	gssapi "github.com/golang-auth/go-gsscore"
)

// ChannelBindingDisposition controls whether security contexts are bound to the TLS connection.
type ChannelBindingDisposition int

const (
	// ChannelBindingDispositionIgnore never sends or checks channel bindings.
	ChannelBindingDispositionIgnore ChannelBindingDisposition = iota
	// ChannelBindingDispositionIfAvailable binds contexts carried over TLS.
	ChannelBindingDispositionIfAvailable
	// ChannelBindingDispositionRequire refuses to authenticate without a channel binding.
	ChannelBindingDispositionRequire
)

func (d ChannelBindingDisposition) String() string {
	switch d {
	case ChannelBindingDispositionIgnore:
		return "ignore"
	case ChannelBindingDispositionIfAvailable:
		return "if-available"
	case ChannelBindingDispositionRequire:
		return "require"
	}

	return fmt.Sprintf("disposition(%d)", int(d))
}

var errNoChannelBinding = errors.New("http: channel binding required but the connection does not use TLS")

// endpointBinding returns the tls-server-end-point binding for a connection, or nil when the
// disposition or the connection does not call for one.  On the client serverCert is nil and
// the peer's certificate is used.
//
// The binding is only defined up to TLS 1.2.  When it cannot be built, ChannelBindingDispositionIfAvailable
// carries on without one and ChannelBindingDispositionRequire fails.
func endpointBinding(d ChannelBindingDisposition, state *tls.ConnectionState, serverCert *x509.Certificate, logger *slog.Logger) (*gssapi.ChannelBinding, error) {
	if d == ChannelBindingDispositionIgnore {
		return nil, nil
	}

	if state == nil {
		if d == ChannelBindingDispositionRequire {
			return nil, errNoChannelBinding
		}
		return nil, nil
	}

	binding, err := gssapi.NewTLSChannelBinding(state, serverCert)
	if err != nil {
		if d == ChannelBindingDispositionRequire {
			return nil, fmt.Errorf("http: channel binding required but unavailable for %s: %w", tls.VersionName(state.Version), err)
		}
		logger.Debug("continuing without channel binding", "tls", tls.VersionName(state.Version), "error", err)
		return nil, nil
	}

	return binding, nil
}
