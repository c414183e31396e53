// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"crypto/md5"
	"errors"
	"fmt"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/iana/chksumtype"
	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gsscore"
)

// apReqVerifier holds what an acceptor checks an AP-REQ against.
type apReqVerifier struct {
	keytab   *keytab.Keytab
	desired  *principal // nil accepts any principal in the keytab
	now      time.Time
	skew     time.Duration
	bindings []byte // nil when the acceptor did not supply bindings
	rcache   ReplayCache
}

// verifiedAPReq is the outcome of a successful verification.
type verifiedAPReq struct {
	flags        gssapi.ContextFlag // flags from the GSS checksum
	channelBound bool
	mutual       bool
}

// rejection is a failed verification: the KRB-ERROR for the initiator and the status for the
// local caller.
type rejection struct {
	krbErr messages.KRBError
	status error
}

func (r *rejection) Error() string {
	return r.status.Error()
}

func (r *rejection) Unwrap() error {
	return r.status
}

// verify checks an AP-REQ carrying a GSS checksum.  It returns a rejection on failure.
//
// Addresses in the ticket are not checked; gokrb5 does not handle them properly and the
// behaviour should depend on the local Kerberos configuration.
func (v *apReqVerifier) verify(apreq *messages.APReq) (verifiedAPReq, error) {
	tkt := &apreq.Ticket

	reject := func(code int32, text string) (verifiedAPReq, error) {
		ke := messages.NewKRBError(tkt.SName, tkt.Realm, code, text)
		return verifiedAPReq{}, &rejection{krbErr: ke, status: krbStatus(ke)}
	}

	if len(tkt.SName.NameString) == 0 {
		return reject(errorcode.KRB_AP_ERR_NOT_US, "ticket has no service name")
	}

	if v.desired != nil && !v.desired.equal(newPrincipal(tkt.SName, tkt.Realm)) {
		return reject(errorcode.KRB_AP_ERR_NOT_US, fmt.Sprintf("ticket is for %s@%s, not %s", tkt.SName.PrincipalNameString(), tkt.Realm, v.desired))
	}

	if err := tkt.DecryptEncPart(v.keytab, &tkt.SName); err != nil {
		var ke messages.KRBError
		if errors.As(err, &ke) {
			return verifiedAPReq{}, &rejection{krbErr: ke, status: krbStatus(ke)}
		}
		return reject(errorcode.KRB_AP_ERR_BAD_INTEGRITY, "could not decrypt ticket")
	}

	// Check time validity of the ticket
	enc := &tkt.DecryptedEncPart
	if enc.StartTime.Sub(v.now) > v.skew || isFlagSet(&enc.Flags, flags.Invalid) {
		return reject(errorcode.KRB_AP_ERR_TKT_NYV, "service ticket provided is not yet valid")
	}
	if v.now.Sub(enc.EndTime) > v.skew {
		return reject(errorcode.KRB_AP_ERR_TKT_EXPIRED, "service ticket provided has expired")
	}

	// Decrypt authenticator with session key from ticket's encrypted part
	if err := apreq.DecryptAuthenticator(enc.Key); err != nil {
		return reject(errorcode.KRB_AP_ERR_BAD_INTEGRITY, "could not decrypt authenticator")
	}
	auth := &apreq.Authenticator

	if auth.Cksum.CksumType != chksumtype.GSSAPI {
		return reject(errorcode.KRB_AP_ERR_BADMATCH, "wrong authenticator checksum type")
	}
	bindHash, reqFlags, err := parseAuthenticatorChksum(auth.Cksum.Checksum)
	if err != nil {
		return reject(errorcode.KRB_AP_ERR_BADMATCH, err.Error())
	}

	// Check CName in authenticator is the same as that in the ticket
	if !auth.CName.Equal(enc.CName) || auth.CRealm != enc.CRealm {
		return reject(errorcode.KRB_AP_ERR_BADMATCH, "client in authenticator does not match that in service ticket")
	}

	// Check the clock skew between the client and the service server
	ct := auth.CTime.Add(time.Duration(auth.Cusec) * time.Microsecond)
	if v.now.Sub(ct) > v.skew || ct.Sub(v.now) > v.skew {
		return reject(errorcode.KRB_AP_ERR_SKEW, fmt.Sprintf("clock skew with client too large. greater than %v", v.skew))
	}

	res := verifiedAPReq{
		flags:  reqFlags,
		mutual: isFlagSet(&apreq.APOptions, flags.APOptionMutualRequired),
	}

	// An initiator that sends no bindings is accepted by an acceptor that has some
	if v.bindings != nil && bindHash != ([gssBindingLen]byte{}) {
		if md5.Sum(v.bindings) != bindHash {
			ke := messages.NewKRBError(tkt.SName, tkt.Realm, errorcode.KRB_AP_ERR_INAPP_CKSUM, "channel binding mismatch")
			return verifiedAPReq{}, &rejection{
				krbErr: ke,
				status: gssapi.MechStatus(gssapi.ErrBadBindings, krbErrorBase+uint32(errorcode.KRB_AP_ERR_INAPP_CKSUM), ke),
			}
		}
		res.channelBound = true
	}

	if v.rcache != nil {
		seen, err := v.rcache.Seen(replayID(apreq), ct.Add(v.skew), v.now)
		if err != nil {
			return verifiedAPReq{}, &rejection{
				krbErr: messages.NewKRBError(tkt.SName, tkt.Realm, errorcode.KRB_ERR_GENERIC, "replay cache unavailable"),
				status: gssapi.MechStatus(gssapi.ErrFailure, minorReplayCache, err),
			}
		}
		if seen {
			return reject(errorcode.KRB_AP_ERR_REPEAT, "request is a replay")
		}
	}

	return res, nil
}

// isFlagSet is types.IsFlagSet for bit strings that may be shorter than the flag.
func isFlagSet(f *asn1.BitString, i int) bool {
	if len(f.Bytes) <= i/8 {
		return false
	}

	return types.IsFlagSet(f, i)
}
