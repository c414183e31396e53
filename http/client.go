// SPDX-License-Identifier: Apache-2.0

package http

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/internal/logging"
)

// SpnFunc is a function that returns the Service Principal Name (SPN) for a given URL.
type SpnFunc func(url url.URL) string

func defaultSpnFunc(url url.URL) string {
	return "HTTP@" + url.Hostname()
}

// DefaultSpnFunc is the default SPN function used for new clients.
var DefaultSpnFunc SpnFunc = defaultSpnFunc

// OpportunisticFunc is a function that returns true if opportunistic authentication should be used for a given URL.
type OpportunisticFunc func(url url.URL) bool

func opportunisticsFuncAlways(url url.URL) bool {
	return true
}

// DelegationPolicy is the policy for delegation of credentials to the server.
type DelegationPolicy int

const (
	// DelegationPolicyNever means that credentials will not be delegated to the server.
	DelegationPolicyNever DelegationPolicy = iota
	// DelegationPolicyAlways requests delegation and fails the request if the mechanism does
	// not grant it.
	DelegationPolicyAlways
)

// DefaultDelegationPolicy is the default delegation policy used for new clients.
var DefaultDelegationPolicy DelegationPolicy = DelegationPolicyNever

// GSSAPITransport is a http.RoundTripper implementation that includes GSS-API
// (HTTP Negotiate) authentication.
type GSSAPITransport struct {
	transport http.RoundTripper

	engine            *gssapi.Engine
	credential        gssapi.CredHandle
	spnFunc           SpnFunc
	opportunisticFunc OpportunisticFunc
	delegationPolicy  DelegationPolicy
	mutual            bool
	logger            *slog.Logger

	channelBindingDisposition ChannelBindingDisposition
}

// ClientOption is a function that configures a Client
type ClientOption func(c *GSSAPITransport)

// WithOpportunistic configures the client to opportunisticly authenticate
//
// Opportunistic authentication means that the client does not wait for the server to
// respond with a 401 status code before sending an authentication token.  This saves a
// round trip at the cost of initializing the security context, and exposing the initiator's
// identity, for servers that do not need it.  Opportunistic requests cannot be bound to the
// TLS connection because the connection does not exist yet.
func WithOpportunistic() ClientOption {
	return func(c *GSSAPITransport) {
		c.opportunisticFunc = opportunisticsFuncAlways
	}
}

// WithOpportunisticFunc configures the client to use a custom function to determine
// if opportunistic authentication should be used for a given URL.
func WithOpportunisticFunc(opportunisticFunc OpportunisticFunc) ClientOption {
	return func(c *GSSAPITransport) {
		c.opportunisticFunc = opportunisticFunc
	}
}

// WithMutual configures the client to request mutual authentication
//
// The server then answers with a token in its WWW-Authenticate header that completes the
// context and proves the server's identity.  A response without it fails.
func WithMutual() ClientOption {
	return func(c *GSSAPITransport) {
		c.mutual = true
	}
}

// WithCredential configures the client to use a specific credential
func WithCredential(cred gssapi.CredHandle) ClientOption {
	return func(c *GSSAPITransport) {
		c.credential = cred
	}
}

// WithSpnFunc provides a custom function to provide the Service Principal Name (SPN) for a given URL.
//
// The default uses "HTTP@" + the host name of the URL.
func WithSpnFunc(spnFunc SpnFunc) ClientOption {
	return func(c *GSSAPITransport) {
		c.spnFunc = spnFunc
	}
}

// WithDelegationPolicy configures the client to use a custom credential delegation policy.
func WithDelegationPolicy(delegationPolicy DelegationPolicy) ClientOption {
	return func(c *GSSAPITransport) {
		c.delegationPolicy = delegationPolicy
	}
}

// WithChannelBindingDisposition sets whether contexts are bound to the TLS connection.
func WithChannelBindingDisposition(d ChannelBindingDisposition) ClientOption {
	return func(c *GSSAPITransport) {
		c.channelBindingDisposition = d
	}
}

// WithRoundTripper configures the client to use a custom round tripper
func WithRoundTripper(transport http.RoundTripper) ClientOption {
	return func(c *GSSAPITransport) {
		c.transport = transport
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *GSSAPITransport) {
		c.logger = l
	}
}

// NewTransport creates a new Negotiate transport using the given engine.
//
// The transport is a wrapper around the standard [http.Transport] that adds Negotiate
// authentication support. By default it wraps [http.DefaultTransport] - this can be
// overridden by passing a custom round tripper with [WithRoundTripper].
func NewTransport(e *gssapi.Engine, options ...ClientOption) *GSSAPITransport {
	t := &GSSAPITransport{
		transport:        http.DefaultTransport,
		engine:           e,
		spnFunc:          DefaultSpnFunc,
		delegationPolicy: DefaultDelegationPolicy,
	}
	for _, option := range options {
		option(t)
	}
	t.logger = logging.OrNoop(t.logger)

	return t
}

// NewClient returns a [http.Client] that uses [GSSAPITransport] to enable Negotiate authentication.
//
// If an existing client is provided, it will be copied and the [http.RoundTripper] will be replaced with a
// new [GSSAPITransport].  Otherwise the default [http.Client] will be used. The [http.RoundTripper] in the
// returned client will wrap the transport from the supplied client or [http.DefaultTransport].
func NewClient(e *gssapi.Engine, client *http.Client, options ...ClientOption) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}

	if client.Transport != nil {
		options = append([]ClientOption{WithRoundTripper(client.Transport)}, options...)
	}

	// Copy the client to avoid modifying the original
	newClient := *client
	newClient.Transport = NewTransport(e, options...)
	return &newClient
}

// negotiation is the initiator side of one request's authentication.
type negotiation struct {
	t      *GSSAPITransport
	target gssapi.NameHandle
	ctx    gssapi.ContextHandle
	res    *gssapi.InitResult
}

func (t *GSSAPITransport) newNegotiation(req *http.Request) (*negotiation, error) {
	spn := t.spnFunc(*req.URL)
	target, err := t.engine.ImportName([]byte(spn), gssapi.GSS_NT_HOSTBASED_SERVICE.Oid())
	if err != nil {
		return nil, err
	}

	return &negotiation{t: t, target: target}, nil
}

func (n *negotiation) started() bool {
	return n.res != nil
}

func (n *negotiation) release() {
	if !n.ctx.IsZero() {
		_, _ = n.t.engine.DeleteSecContext(n.ctx)
	}
	_ = n.t.engine.ReleaseName(n.target)
}

// step runs one establishment step and leaves any token for the server in the request's
// Authorization header.  state is the TLS state of the connection, if known.
func (n *negotiation) step(req *http.Request, inToken string, state *tls.ConnectionState) error {
	var rawInToken []byte
	if inToken != "" {
		var err error
		if rawInToken, err = base64.StdEncoding.DecodeString(inToken); err != nil {
			return fmt.Errorf("http: bad Negotiate token from server: %w", err)
		}
	}

	var opts []gssapi.InitSecContextOption
	if !n.started() {
		flags := gssapi.ContextFlagInteg
		if n.t.mutual {
			flags |= gssapi.ContextFlagMutual
		}
		if n.t.delegationPolicy == DelegationPolicyAlways {
			flags |= gssapi.ContextFlagDeleg
		}
		opts = append(opts, gssapi.WithInitiatorFlags(flags))

		if !n.t.credential.IsZero() {
			opts = append(opts, gssapi.WithInitiatorCredential(n.t.credential))
		}

		binding, err := endpointBinding(n.t.channelBindingDisposition, state, nil, n.t.logger)
		if err != nil {
			return err
		}
		if binding != nil {
			opts = append(opts, gssapi.WithInitiatorChannelBinding(binding))
		}
	}

	res, err := n.t.engine.InitSecContext(n.ctx, n.target, rawInToken, opts...)
	if err != nil {
		n.ctx = gssapi.ContextHandle{}
		return err
	}
	n.ctx, n.res = res.Context, res

	if len(res.Output) > 0 {
		req.Header.Set("Authorization", negotiateScheme+" "+base64.StdEncoding.EncodeToString(res.Output))
	}

	return nil
}

// rewind prepares a request to be sent again.
func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return errors.New("http: request body cannot be resent for authentication")
	}

	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body

	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// RoundTrip implements the [http.RoundTripper] interface and performs one HTTP
// request, including potentially multiple round-trips to the server to complete the
// security context establishment.
func (t *GSSAPITransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// We are not meant to modify the request, so we need to create a new one
	req = req.Clone(req.Context())

	n, err := t.newNegotiation(req)
	if err != nil {
		return nil, err
	}
	defer n.release()

	// Should we opportunistically set the initial token?
	if t.opportunisticFunc != nil && t.opportunisticFunc(*req.URL) {
		if err := n.step(req, "", nil); err != nil {
			return nil, err
		}
	}

	var resp *http.Response
	for {
		if resp != nil {
			discard(resp)
			if err := rewind(req); err != nil {
				return nil, err
			}
		}

		if resp, err = t.transport.RoundTrip(req); err != nil {
			return nil, err
		}

		// Check for a negotiate challenge in the response - which can be in a 401 or any other final response
		challenges := negotiateChallenges(resp.Header)
		if len(challenges) == 0 {
			// the context should be fully established or never have started (eg. URL doesn't need auth)
			break
		}
		if len(challenges) > 1 {
			discard(resp)
			return nil, errors.New("http: multiple Negotiate challenges in response")
		}

		inToken := challenges[0].Token
		switch {
		case inToken == "" && resp.StatusCode != http.StatusUnauthorized:
			discard(resp)
			return nil, errors.New("http: Negotiate challenge without a token in a final response")
		case inToken == "" && n.started():
			// the server rejected our token
			t.logger.Debug("negotiate authentication rejected", "url", req.URL.Redacted(), "status", resp.StatusCode)
			return resp, nil
		case n.started() && !n.res.ContinueNeeded:
			discard(resp)
			return nil, errors.New("http: server sent a Negotiate token after the context was established")
		}

		if err := n.step(req, inToken, resp.TLS); err != nil {
			discard(resp)
			return nil, err
		}

		// We don't need to send anything to the server if it didn't challenge us
		if resp.StatusCode != http.StatusUnauthorized {
			break
		}
	}

	// If we never started authentication then we should return the response we got
	if !n.started() {
		return resp, nil
	}

	flags := n.res.Flags
	var failure error
	switch {
	case n.res.ContinueNeeded:
		failure = errors.New("http: security context not fully established")
	case t.mutual && flags&gssapi.ContextFlagMutual == 0:
		failure = errors.New("http: mutual authentication requested but not available")
	case t.delegationPolicy == DelegationPolicyAlways && flags&gssapi.ContextFlagDeleg == 0:
		failure = errors.New("http: delegation requested but not available")
	}
	if failure != nil {
		discard(resp)
		return nil, failure
	}

	t.logger.Debug("negotiate authentication complete", "url", req.URL.Redacted(), "flags", flags.String())
	return resp, nil
}
