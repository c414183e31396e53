// SPDX-License-Identifier: Apache-2.0

/*
Package gssapi is a mechanism-agnostic implementation of the
Generic Security Services Application Programming Interface
(RFC 2743) for the Go programming language.

An [Engine] owns names, credentials and security contexts and hands
out opaque handles for them.  Security mechanisms plug into the engine
through the [Mechanism] interface and a [Registry]; the Kerberos V5
mechanism in the krb5 sub-package registers itself when imported:

	import _ "github.com/golang-auth/go-gsscore/krb5"

	e := gssapi.New()
	target, _ := e.ImportName([]byte("HTTP@www.example.com"), gssapi.GSS_NT_HOSTBASED_SERVICE.Oid())
	res, err := e.InitSecContext(gssapi.ContextHandle{}, target, nil,
		gssapi.WithInitiatorFlags(gssapi.ContextFlagMutual|gssapi.ContextFlagInteg))

Status is reported through Go errors.  Failures are [FatalStatus]
values; supplementary information returned alongside valid results,
such as a duplicate per-message token, is an [InfoStatus].  [StatusOf]
recovers the packed RFC 2744 major status and the mechanism's minor
status from any error.

The engine performs no I/O: callers carry tokens between the peers
over whatever transport they choose.
*/
package gssapi
