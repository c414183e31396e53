// SPDX-License-Identifier: Apache-2.0

package http

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/internal/krb5test"
	"github.com/golang-auth/go-gsscore/internal/logging"
)

// Local version of testify/assert with some extensions
type myassert struct {
	*assert.Assertions

	t *testing.T
}

// Fail the test immediately on error
func (a *myassert) NoErrorFatal(err error) {
	a.NoError(err)
	if err != nil {
		a.t.Logf("Stopping test %s due to fatal error", a.t.Name())
		a.t.FailNow()
	}
}

func NewAssert(t *testing.T) *myassert {
	return &myassert{assert.New(t), t}
}

// testEngine returns an engine whose Kerberos mechanism can both initiate to and accept as
// HTTP/www.example.com without a KDC.
func testEngine(t *testing.T) *gssapi.Engine {
	return krb5test.NewKDC(t, "HTTP/www.example.com").Engine(t)
}

// tls13State returns the client view of a TLS 1.3 connection to a test server.
func tls13State(t *testing.T) *tls.ConnectionState {
	srv := httptest.NewUnstartedServer(http.NotFoundHandler())
	srv.TLS = &tls.Config{MinVersion: tls.VersionTLS13}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	return resp.TLS
}

func TestEndpointBinding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		disposition ChannelBindingDisposition
		state       *tls.ConnectionState
		wantBinding bool
		wantErr     error
	}{
		{"ignore", ChannelBindingDispositionIgnore, &tls.ConnectionState{}, false, nil},
		{"if available without TLS", ChannelBindingDispositionIfAvailable, nil, false, nil},
		{"require without TLS", ChannelBindingDispositionRequire, nil, false, errNoChannelBinding},
		{"if available without certificate", ChannelBindingDispositionIfAvailable, &tls.ConnectionState{}, false, nil},
		{"require without certificate", ChannelBindingDispositionRequire, &tls.ConnectionState{}, false, gssapi.ErrBadBindings},
		{"if available over TLS 1.3", ChannelBindingDispositionIfAvailable, tls13State(t), false, nil},
		{"require over TLS 1.3", ChannelBindingDispositionRequire, tls13State(t), false, gssapi.ErrBadBindings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := NewAssert(t)

			binding, err := endpointBinding(tt.disposition, tt.state, nil, logging.NoopLogger())
			if tt.wantErr != nil {
				assert.ErrorIs(err, tt.wantErr)
			} else {
				assert.NoError(err)
			}
			assert.Equal(tt.wantBinding, binding != nil)
		})
	}
}

func TestChannelBindingDispositionString(t *testing.T) {
	assert := NewAssert(t)

	assert.Equal("ignore", ChannelBindingDispositionIgnore.String())
	assert.Equal("if-available", ChannelBindingDispositionIfAvailable.String())
	assert.Equal("require", ChannelBindingDispositionRequire.String())
	assert.Equal("disposition(7)", ChannelBindingDisposition(7).String())
}
