// SPDX-License-Identifier: Apache-2.0

/*
Package http provides HTTP Negotiate (RFC 4559) authentication on top of a GSS-API engine:
a client transport that answers Negotiate challenges and a server handler that accepts them.

Tokens are the raw mechanism tokens of the engine's default mechanism; SPNEGO is not
negotiated.  Servers that accept bare Kerberos tokens in the Negotiate scheme (MIT, Heimdal and
Active Directory all do) interoperate.

	import (
		gssapi "github.com/golang-auth/go-gsscore"
		ghttp "github.com/golang-auth/go-gsscore/http"
		_ "github.com/golang-auth/go-gsscore/krb5"
	)

	e := gssapi.New()

# Clients and transports

Create a client to use a Negotiate enabled transport.  The client can be used anywhere a
standard [http.Client] can be used.

	client := ghttp.NewClient(e, nil)

	resp, err := client.Get("https://www.example.com/")
	...

To control GSS-API parameters, create a transport:

	transport := ghttp.NewTransport(e,
		ghttp.WithOpportunistic(),
		ghttp.WithMutual(),
		ghttp.WithCredential(cred),
	)
	client := http.Client{Transport: transport}

The transport wraps a standard [http.RoundTripper], [http.DefaultTransport] unless another is
given with [WithRoundTripper].

# Request bodies

A request that is challenged is sent again with an Authorization header, so its body must be
sent twice.  Requests built by [http.NewRequest] from the common in-memory body types can be
rewound; other bodies fail once the first attempt has consumed them.  Opportunistic
authentication avoids the second attempt.

# Servers

[Handler] authenticates each request in a single round trip and passes the initiator to the
wrapped handler through the request context:

	h := ghttp.NewHandler(e, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		in, _ := ghttp.GetInitiatorName(r)
		fmt.Fprintf(w, "Hello, %s", in.PrincipalName)
	}))

# Channel bindings

Over TLS both sides can bind the security context to the server certificate using the
tls-server-end-point binding of RFC 5929.  [ChannelBindingDispositionIfAvailable] binds when the
connection uses TLS, [ChannelBindingDispositionRequire] fails when it does not.  The handler
needs the certificate it serves, see [WithServerCertificate].
*/
package http
