// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/messages"

	gssapi "github.com/golang-auth/go-gsscore"
)

// Minor status values.  Kerberos protocol errors are reported as krbErrorBase plus the RFC 4120
// error code; failures detected by the mechanism itself use the local table starting at
// localErrorBase.
const (
	krbErrorBase   uint32 = 0x96c73a00
	localErrorBase uint32 = 0x025ea100
)

const (
	minorCCacheNoMatch = localErrorBase + iota
	minorKeytabNoMatch
	minorTGTMissing
	minorNoSubkey
	minorContextEstablished
	minorBadSignType
	minorBadLength
	minorCtxIncomplete
	minorContext
	minorCred
	minorEncDesc
	minorBadSeq
	minorEmptyCCache
	minorNoCTypes
	minorBadTokenHeader
	minorWrongTokenID
	minorBadDirection
	minorBadName
	minorNoKeytab
	minorNoRealm
	minorUnknownISNPolicy
	minorReplayCache

	minorLocalLast
)

var localMessages = [...]string{
	"Principal in credential cache does not match desired name",
	"No principal in keytab matches desired name",
	"Credential cache has no TGT",
	"Authenticator has no subkey",
	"Context is already fully established",
	"Unknown signature type in token",
	"Invalid field length in token",
	"Attempt to use incomplete security context",
	"Bad magic number for krb5_gss_ctx_id_t",
	"Bad magic number for krb5_gss_cred_id_t",
	"Bad magic number for krb5_gss_enc_desc",
	"Sequence number in token is corrupt",
	"Credential cache is empty",
	"Acceptor and Initiator share no checksum types",
	"Invalid token header",
	"Wrong token ID",
	"Token was sent in the wrong direction",
	"Malformed Kerberos principal name",
	"Keytab could not be read",
	"No default realm is configured",
	"Unknown acceptor initial sequence number policy",
	"Replay cache is unavailable",
}

// DisplayMinor describes a minor status produced by the mechanism.
func (m *Mech) DisplayMinor(minor uint32) (string, error) {
	switch {
	case minor == 0:
		return "Success", nil
	case minor >= krbErrorBase && minor < krbErrorBase+256:
		return errorcode.Lookup(int32(minor - krbErrorBase)), nil
	case minor >= localErrorBase && minor < minorLocalLast:
		return localMessages[minor-localErrorBase], nil
	}

	return fmt.Sprintf("Unknown Kerberos minor status %#x", minor), nil
}

// krbStatus reports a Kerberos protocol error, keeping the KRB-ERROR as the mechanism error.
func krbStatus(ke messages.KRBError) error {
	return gssapi.MechStatus(fatalForKRBCode(ke.ErrorCode), krbErrorBase+uint32(ke.ErrorCode), ke)
}

// fatalForKRBCode picks the GSS routine error that best describes a Kerberos error code.
func fatalForKRBCode(code int32) error {
	switch code {
	case errorcode.KRB_AP_ERR_TKT_EXPIRED:
		return gssapi.ErrCredentialsExpired
	case errorcode.KRB_AP_ERR_BAD_INTEGRITY, errorcode.KRB_AP_ERR_MODIFIED,
		errorcode.KRB_AP_ERR_MSG_TYPE, errorcode.KRB_AP_ERR_BADVERSION:
		return gssapi.ErrDefectiveToken
	case errorcode.KRB_AP_ERR_NOKEY, errorcode.KRB_AP_ERR_BADKEYVER, errorcode.KRB_AP_ERR_NOT_US:
		return gssapi.ErrDefectiveCredential
	}

	return gssapi.ErrFailure
}

// kdcStatus reports a failure talking to the KDC.  gokrb5 returns KRB-ERROR values for protocol
// failures and plain errors for everything else.
func kdcStatus(err error) error {
	var ke messages.KRBError
	if errors.As(err, &ke) {
		return gssapi.MechStatus(gssapi.ErrFailure, krbErrorBase+uint32(ke.ErrorCode), err)
	}

	return gssapi.MechStatus(gssapi.ErrFailure, minorTGTMissing, err)
}
