// SPDX-License-Identifier: Apache-2.0

package http

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	gssapi "github.com/golang-auth/go-gsscore"
)

func testSpn(url.URL) string {
	return "HTTP@www.example.com"
}

func TestWithOpportunistic(t *testing.T) {
	assert := NewAssert(t)
	transport := NewTransport(nil, WithOpportunistic())

	f1 := reflect.ValueOf(opportunisticsFuncAlways).Pointer()
	f2 := reflect.ValueOf(transport.opportunisticFunc).Pointer()
	assert.Equal(f1, f2)
}

func TestWithOpportunisticFunc(t *testing.T) {
	assert := NewAssert(t)
	transport := NewTransport(nil, WithOpportunisticFunc(func(url url.URL) bool {
		return url.Host == "example.com"
	}))

	assert.True(transport.opportunisticFunc(url.URL{Host: "example.com"}))
	assert.False(transport.opportunisticFunc(url.URL{Host: "blah.com"}))
}

func TestTransportDefaults(t *testing.T) {
	assert := NewAssert(t)
	transport := NewTransport(nil)

	assert.False(transport.mutual)
	assert.Nil(transport.opportunisticFunc)
	assert.Equal(DelegationPolicyNever, transport.delegationPolicy)
	assert.Equal(ChannelBindingDispositionIgnore, transport.channelBindingDisposition)
	assert.Equal(http.DefaultTransport, transport.transport)
	assert.Equal("HTTP@example.com", transport.spnFunc(url.URL{Host: "example.com:8443"}))
}

func TestTransportOptions(t *testing.T) {
	assert := NewAssert(t)
	rt := &http.Transport{}
	transport := NewTransport(nil,
		WithMutual(),
		WithSpnFunc(func(url url.URL) string { return "XXX@" + url.Host }),
		WithDelegationPolicy(DelegationPolicyAlways),
		WithChannelBindingDisposition(ChannelBindingDispositionRequire),
		WithRoundTripper(rt),
	)

	assert.True(transport.mutual)
	assert.Equal("XXX@example.com", transport.spnFunc(url.URL{Host: "example.com"}))
	assert.Equal(DelegationPolicyAlways, transport.delegationPolicy)
	assert.Equal(ChannelBindingDispositionRequire, transport.channelBindingDisposition)
	assert.Same(rt, transport.transport)
}

func TestNewClientKeepsTransport(t *testing.T) {
	assert := NewAssert(t)
	rt := &http.Transport{}
	orig := &http.Client{Transport: rt}

	client := NewClient(nil, orig, WithMutual())
	assert.Same(rt, orig.Transport, "the supplied client is not modified")

	transport, ok := client.Transport.(*GSSAPITransport)
	assert.True(ok)
	assert.Same(rt, transport.transport)
	assert.True(transport.mutual)
}

// whoami reports the authenticated initiator.
func whoami(w http.ResponseWriter, r *http.Request) {
	in, ok := GetInitiatorName(r)
	if !ok {
		http.Error(w, "no initiator", http.StatusInternalServerError)
		return
	}

	body, _ := io.ReadAll(r.Body)
	_, _ = fmt.Fprintf(w, "%s bound=%t body=%q", in.PrincipalName, in.ChannelBound, body)
}

func counting(n *atomic.Int32, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		next.ServeHTTP(w, r)
	})
}

func TestNegotiate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		opts         []ClientOption
		wantRequests int32
	}{
		{"challenge", nil, 2},
		{"mutual", []ClientOption{WithMutual()}, 2},
		{"opportunistic", []ClientOption{WithOpportunistic()}, 1},
		{"opportunistic mutual", []ClientOption{WithOpportunistic(), WithMutual()}, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := NewAssert(t)

			e := testEngine(t)
			var requests atomic.Int32
			srv := httptest.NewServer(counting(&requests, NewHandler(e, http.HandlerFunc(whoami))))
			defer srv.Close()

			client := NewClient(e, srv.Client(), append(tt.opts, WithSpnFunc(testSpn))...)
			resp, err := client.Get(srv.URL)
			assert.NoErrorFatal(err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			assert.NoError(err)
			assert.Equal(http.StatusOK, resp.StatusCode)
			assert.Equal(`alice@EXAMPLE.COM bound=false body=""`, string(body))
			assert.Equal(tt.wantRequests, requests.Load())
		})
	}
}

func TestNegotiateResendsBody(t *testing.T) {
	t.Parallel()
	assert := NewAssert(t)

	e := testEngine(t)
	srv := httptest.NewServer(NewHandler(e, http.HandlerFunc(whoami)))
	defer srv.Close()

	client := NewClient(e, srv.Client(), WithSpnFunc(testSpn))
	resp, err := client.Post(srv.URL, "text/plain", strings.NewReader("payload"))
	assert.NoErrorFatal(err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	assert.NoError(err)
	assert.Equal(`alice@EXAMPLE.COM bound=false body="payload"`, string(body))
}

func TestNegotiateUnreadableBody(t *testing.T) {
	t.Parallel()
	assert := NewAssert(t)

	e := testEngine(t)
	srv := httptest.NewServer(NewHandler(e, http.HandlerFunc(whoami)))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("payload")))
	assert.NoErrorFatal(err)

	client := NewClient(e, srv.Client(), WithSpnFunc(testSpn))
	_, err = client.Do(req)
	assert.Error(err)
}

func TestNegotiateNotRequired(t *testing.T) {
	t.Parallel()
	assert := NewAssert(t)

	var sawAuthz atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuthz.Store(r.Header.Get("Authorization") != "")
		_, _ = io.WriteString(w, "public")
	}))
	defer srv.Close()

	client := NewClient(testEngine(t), srv.Client(), WithSpnFunc(testSpn))
	resp, err := client.Get(srv.URL)
	assert.NoErrorFatal(err)
	defer resp.Body.Close()

	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.False(sawAuthz.Load())
}

func TestNegotiateWrongService(t *testing.T) {
	t.Parallel()
	assert := NewAssert(t)

	e := testEngine(t)
	srv := httptest.NewServer(NewHandler(e, http.HandlerFunc(whoami)))
	defer srv.Close()

	// the test KDC has no key for this service, so no ticket can be issued
	client := NewClient(e, srv.Client(), WithSpnFunc(func(url.URL) string { return "HTTP@other.example.com" }))
	_, err := client.Get(srv.URL)
	assert.Error(err)
}

// tlsServer starts a TLS server whose handler knows the server certificate.  A zero
// maxVersion leaves the TLS version to negotiation.
func tlsServer(e *gssapi.Engine, d ChannelBindingDisposition, maxVersion uint16) *httptest.Server {
	var h atomic.Pointer[Handler]
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Load().ServeHTTP(w, r)
	}))
	srv.TLS = &tls.Config{MaxVersion: maxVersion}
	srv.StartTLS()

	h.Store(NewHandler(e, http.HandlerFunc(whoami),
		WithAcceptorChannelBindingDisposition(d),
		WithServerCertificate(srv.Certificate())))

	return srv
}

func TestNegotiateChannelBinding(t *testing.T) {
	t.Parallel()

	t.Run("bound", func(t *testing.T) {
		t.Parallel()
		assert := NewAssert(t)

		e := testEngine(t)
		srv := tlsServer(e, ChannelBindingDispositionRequire, tls.VersionTLS12)
		defer srv.Close()

		client := NewClient(e, srv.Client(), WithSpnFunc(testSpn), WithChannelBindingDisposition(ChannelBindingDispositionRequire))
		resp, err := client.Get(srv.URL)
		assert.NoErrorFatal(err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		assert.NoError(err)
		assert.Equal(`alice@EXAMPLE.COM bound=true body=""`, string(body))
	})

	t.Run("client does not bind", func(t *testing.T) {
		t.Parallel()
		assert := NewAssert(t)

		e := testEngine(t)
		srv := tlsServer(e, ChannelBindingDispositionRequire, tls.VersionTLS12)
		defer srv.Close()

		client := NewClient(e, srv.Client(), WithSpnFunc(testSpn))
		resp, err := client.Get(srv.URL)
		assert.NoErrorFatal(err)
		defer resp.Body.Close()

		assert.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("if available over TLS 1.3", func(t *testing.T) {
		t.Parallel()
		assert := NewAssert(t)

		e := testEngine(t)
		srv := tlsServer(e, ChannelBindingDispositionIfAvailable, 0)
		defer srv.Close()

		client := NewClient(e, srv.Client(), WithSpnFunc(testSpn), WithChannelBindingDisposition(ChannelBindingDispositionIfAvailable))
		resp, err := client.Get(srv.URL)
		assert.NoErrorFatal(err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		assert.NoError(err)
		assert.Equal(uint16(tls.VersionTLS13), resp.TLS.Version)
		assert.Equal(`alice@EXAMPLE.COM bound=false body=""`, string(body))
	})

	t.Run("required over TLS 1.3", func(t *testing.T) {
		t.Parallel()
		assert := NewAssert(t)

		e := testEngine(t)
		srv := tlsServer(e, ChannelBindingDispositionIfAvailable, 0)
		defer srv.Close()

		client := NewClient(e, srv.Client(), WithSpnFunc(testSpn), WithChannelBindingDisposition(ChannelBindingDispositionRequire))
		_, err := client.Get(srv.URL)
		assert.ErrorIs(err, gssapi.ErrBadBindings)
	})

	t.Run("required over plain HTTP", func(t *testing.T) {
		t.Parallel()
		assert := NewAssert(t)

		e := testEngine(t)
		srv := httptest.NewServer(NewHandler(e, http.HandlerFunc(whoami)))
		defer srv.Close()

		client := NewClient(e, srv.Client(), WithSpnFunc(testSpn), WithChannelBindingDisposition(ChannelBindingDispositionRequire))
		_, err := client.Get(srv.URL)
		assert.ErrorIs(err, errNoChannelBinding)
	})
}
