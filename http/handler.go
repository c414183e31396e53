// SPDX-License-Identifier: Apache-2.0

package http

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/internal/logging"
)

// Handler is a http.Handler that performs Negotiate authentication and passes the initiator
// name to the next handler.
type Handler struct {
	engine     *gssapi.Engine
	credential gssapi.CredHandle
	next       http.Handler
	logger     *slog.Logger

	channelBindingDisposition ChannelBindingDisposition
	serverCert                *x509.Certificate
}

// HandlerOption is a function that can be used to configure the Handler
type HandlerOption func(s *Handler)

// WithAcceptorCredential sets the acceptor credential for the Handler.  The engine's default
// acceptor credential is used otherwise.
func WithAcceptorCredential(credential gssapi.CredHandle) HandlerOption {
	return func(s *Handler) {
		s.credential = credential
	}
}

// WithAcceptorChannelBindingDisposition sets whether contexts must be bound to the TLS
// connection.
func WithAcceptorChannelBindingDisposition(d ChannelBindingDisposition) HandlerOption {
	return func(s *Handler) {
		s.channelBindingDisposition = d
	}
}

// WithServerCertificate provides the certificate the server presents, needed for channel
// bindings.
func WithServerCertificate(cert *x509.Certificate) HandlerOption {
	return func(s *Handler) {
		s.serverCert = cert
	}
}

// WithHandlerLogger sets the structured logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(s *Handler) {
		s.logger = l
	}
}

// NewHandler creates a new Handler with the given GSS-API engine and next handler
func NewHandler(e *gssapi.Engine, next http.Handler, options ...HandlerOption) *Handler {
	h := &Handler{
		engine: e,
		next:   next,
	}
	for _, option := range options {
		option(h)
	}
	h.logger = logging.OrNoop(h.logger)

	return h
}

func challenge(w http.ResponseWriter, token []byte) {
	value := negotiateScheme
	if len(token) > 0 {
		value += " " + base64.StdEncoding.EncodeToString(token)
	}

	w.Header().Set("WWW-Authenticate", value)
}

// ServeHTTP performs Negotiate authentication and passes the initiator name to the next handler.
// Only single round trip mechanisms are supported: the Go [http.Server] offers no way to tie
// further round trips to the same connection without hijacking it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authzType, authzToken := parseAuthzHeader(r.Header)
	if authzType != "negotiate" || authzToken == "" {
		challenge(w, nil)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	outToken, in, err := h.negotiateOnce(r, authzToken)
	if err != nil {
		h.logger.Info("negotiate authentication failed", "remote", r.RemoteAddr, "error", err)
		challenge(w, outToken)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if len(outToken) > 0 {
		challenge(w, outToken)
	}

	h.logger.Debug("negotiate authentication succeeded", "remote", r.RemoteAddr, "initiator", in.PrincipalName)
	h.next.ServeHTTP(w, r.WithContext(stashInitiatorName(r.Context(), in)))
}

var errContinueNeeded = errors.New("http: security context needs more than one round trip")

// negotiateOnce accepts a security context from a single token and returns any token for the
// client, which may be an error token when authentication fails.
func (h *Handler) negotiateOnce(r *http.Request, negotiateToken string) ([]byte, *InitiatorName, error) {
	rawToken, err := base64.StdEncoding.DecodeString(negotiateToken)
	if err != nil {
		return nil, nil, fmt.Errorf("http: bad Negotiate token: %w", err)
	}

	binding, err := endpointBinding(h.channelBindingDisposition, r.TLS, h.serverCert, h.logger)
	if err != nil {
		return nil, nil, err
	}

	var opts []gssapi.AcceptSecContextOption
	if !h.credential.IsZero() {
		opts = append(opts, gssapi.WithAcceptorCredential(h.credential))
	}
	if binding != nil {
		opts = append(opts, gssapi.WithAcceptorChannelBinding(binding))
	}

	res, err := h.engine.AcceptSecContext(gssapi.ContextHandle{}, rawToken, opts...)
	if err != nil {
		if res != nil {
			return res.Output, nil, err
		}
		return nil, nil, err
	}
	defer h.engine.DeleteSecContext(res.Context) //nolint:errcheck

	if res.ContinueNeeded {
		return nil, nil, errContinueNeeded
	}

	in := &InitiatorName{ChannelBound: res.Flags&gssapi.ContextFlagChannelBound != 0}
	if h.channelBindingDisposition == ChannelBindingDispositionRequire && !in.ChannelBound {
		return nil, nil, errNoChannelBinding
	}

	if !res.SrcName.IsZero() {
		if in.PrincipalName, _, err = h.engine.DisplayName(res.SrcName); err != nil {
			return nil, nil, err
		}
		_ = h.engine.ReleaseName(res.SrcName)
	}
	if !res.DelegatedCred.IsZero() {
		_ = h.engine.ReleaseCred(res.DelegatedCred)
	}

	return res.Output, in, nil
}
