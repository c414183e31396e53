// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	gssapi "github.com/golang-auth/go-gsscore"
)

func TestHandlerOptions(t *testing.T) {
	assert := NewAssert(t)

	handler := NewHandler(nil, nil, WithAcceptorChannelBindingDisposition(ChannelBindingDispositionRequire))
	assert.Equal(ChannelBindingDispositionRequire, handler.channelBindingDisposition)
	assert.True(handler.credential.IsZero())
	assert.Nil(handler.serverCert)
	assert.NotNil(handler.logger)
}

func TestHandlerChallenges(t *testing.T) {
	t.Parallel()

	replayed := func(t *testing.T, e *gssapi.Engine) string {
		t.Helper()
		assert := NewAssert(t)

		target, err := e.ImportName([]byte("HTTP@www.example.com"), gssapi.GSS_NT_HOSTBASED_SERVICE.Oid())
		assert.NoErrorFatal(err)

		res, err := e.InitSecContext(gssapi.ContextHandle{}, target, nil)
		assert.NoErrorFatal(err)

		// the first use succeeds, so hand back the token for a replay
		_, err = e.AcceptSecContext(gssapi.ContextHandle{}, res.Output)
		assert.NoErrorFatal(err)
		return base64.StdEncoding.EncodeToString(res.Output)
	}

	tests := []struct {
		name      string
		authz     func(t *testing.T, e *gssapi.Engine) string
		wantToken bool
	}{
		{"no authorization", func(*testing.T, *gssapi.Engine) string { return "" }, false},
		{"other scheme", func(*testing.T, *gssapi.Engine) string { return "Basic dXNlcjpwYXNz" }, false},
		{"empty token", func(*testing.T, *gssapi.Engine) string { return "Negotiate" }, false},
		{"bad base64", func(*testing.T, *gssapi.Engine) string { return "Negotiate !!!" }, false},
		{"garbage token", func(*testing.T, *gssapi.Engine) string { return "Negotiate " + base64.StdEncoding.EncodeToString([]byte("garbage")) }, false},
		{"replayed token", func(t *testing.T, e *gssapi.Engine) string { return "Negotiate " + replayed(t, e) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := NewAssert(t)

			e := testEngine(t)
			called := false
			h := NewHandler(e, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if authz := tt.authz(t, e); authz != "" {
				req.Header.Set("Authorization", authz)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.False(called)
			assert.Equal(http.StatusUnauthorized, rec.Code)

			challenges := negotiateChallenges(rec.Header())
			assert.Len(challenges, 1)
			if len(challenges) == 1 {
				assert.Equal(tt.wantToken, challenges[0].Token != "", "error token")
			}
		})
	}
}
