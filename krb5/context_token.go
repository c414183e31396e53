// SPDX-License-Identifier: Apache-2.0

package krb5

/*
 * Derived from github.com/jcmturner/gokrb5/v8/spnego/krb5Token.go
 *
 * The token carries an AP-REQ, AP-REP or KRB-ERROR inside the RFC 2743
 * initial context token framing.
 */

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/messages"

	gssapi "github.com/golang-auth/go-gsscore"
)

// RFC 4121 § 4.1 token IDs
var (
	tokenIDKrbAPReq = [2]byte{0x01, 0x00}
	tokenIDKrbAPRep = [2]byte{0x02, 0x00}
	tokenIDKrbError = [2]byte{0x03, 0x00}
)

var krb5OID = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}

// contextToken is a context establishment token.
type contextToken struct {
	tokID    [2]byte
	apReq    *messages.APReq
	apRep    *apRep
	krbError *messages.KRBError
}

// marshal frames the token for the peer.
func (m *contextToken) marshal() ([]byte, error) {
	b, err := asn1.Marshal(krb5OID)
	if err != nil {
		return nil, err
	}
	b = append(b, m.tokID[:]...)

	var tb []byte
	switch m.tokID {
	case tokenIDKrbAPReq:
		if tb, err = m.apReq.Marshal(); err != nil {
			return nil, fmt.Errorf("krb5: marshalling AP-REQ: %w", err)
		}
	case tokenIDKrbAPRep:
		if tb, err = m.apRep.marshal(); err != nil {
			return nil, fmt.Errorf("krb5: marshalling AP-REP: %w", err)
		}
	case tokenIDKrbError:
		if tb, err = m.krbError.Marshal(); err != nil {
			return nil, fmt.Errorf("krb5: marshalling KRB-ERROR: %w", err)
		}
	default:
		return nil, fmt.Errorf("krb5: unknown token ID %x", m.tokID)
	}
	b = append(b, tb...)

	return asn1tools.AddASNAppTag(b, 0), nil
}

// errUnknownTokenID is returned by unmarshal for a well-framed token with an unexpected ID.
var errUnknownTokenID = errors.New("krb5: unknown context token ID")

// unmarshal parses a framed context token.
func (m *contextToken) unmarshal(b []byte) error {
	*m = contextToken{}

	var oid asn1.ObjectIdentifier
	r, err := asn1.UnmarshalWithParams(b, &oid, "application,explicit,tag:0")
	if err != nil {
		return fmt.Errorf("krb5: unmarshalling context token OID: %w", err)
	}
	if !oid.Equal(krb5OID) {
		return fmt.Errorf("krb5: context token OID is %s not %s", oid, krb5OID)
	}
	if len(r) < 2 {
		return errors.New("krb5: context token too short")
	}

	copy(m.tokID[:], r[0:2])
	switch m.tokID {
	case tokenIDKrbAPReq:
		var a messages.APReq
		if err = a.Unmarshal(r[2:]); err != nil {
			return fmt.Errorf("krb5: unmarshalling AP-REQ: %w", err)
		}
		m.apReq = &a
	case tokenIDKrbAPRep:
		var a apRep
		if err = a.unmarshal(r[2:]); err != nil {
			return fmt.Errorf("krb5: unmarshalling AP-REP: %w", err)
		}
		m.apRep = &a
	case tokenIDKrbError:
		var a messages.KRBError
		if err = a.Unmarshal(r[2:]); err != nil {
			return fmt.Errorf("krb5: unmarshalling KRB-ERROR: %w", err)
		}
		m.krbError = &a
	default:
		return errUnknownTokenID
	}

	return nil
}

// errorToken builds the KRB-ERROR context token sent to a peer whose token was rejected.
func errorToken(ke messages.KRBError) []byte {
	tok := contextToken{tokID: tokenIDKrbError, krbError: &ke}
	b, err := tok.marshal()
	if err != nil {
		return nil
	}

	return b
}

const (
	gssChksumLen  = 24 // up to and including the flags
	gssBindingLen = 16
)

// gssChksumFlags are the context flags carried in the authenticator checksum.
const gssChksumFlags = gssapi.ContextFlagDeleg | gssapi.ContextFlagMutual | gssapi.ContextFlagReplay |
	gssapi.ContextFlagSequence | gssapi.ContextFlagConf | gssapi.ContextFlagInteg

// Create the GSSAPI checksum for the authenticator.  This isn't really
// a checksum, it is a way to carry GSSAPI level context information in
// the Kerberos AP-REQ message. See RFC 4121 § 4.1.1
func newAuthenticatorChksum(flags gssapi.ContextFlag, bindings []byte) []byte {
	a := make([]byte, gssChksumLen)

	// 4-byte length of the channel binding hash, always 16 bytes
	binary.LittleEndian.PutUint32(a[:4], gssBindingLen)

	// Octets 4..19: MD5 of the channel bindings, zero when unbound
	if bindings != nil {
		sum := md5.Sum(bindings)
		copy(a[4:20], sum[:])
	}

	binary.LittleEndian.PutUint32(a[20:24], uint32(flags&gssChksumFlags))

	return a
}

// parseAuthenticatorChksum returns the channel binding hash and flags from a GSS checksum.
func parseAuthenticatorChksum(cksum []byte) (bindHash [gssBindingLen]byte, flags gssapi.ContextFlag, err error) {
	if len(cksum) < gssChksumLen {
		return bindHash, 0, fmt.Errorf("krb5: authenticator checksum is %d bytes, want at least %d", len(cksum), gssChksumLen)
	}
	if l := binary.LittleEndian.Uint32(cksum[:4]); l != gssBindingLen {
		return bindHash, 0, fmt.Errorf("krb5: authenticator channel binding length is %d", l)
	}

	copy(bindHash[:], cksum[4:20])
	flags = gssapi.ContextFlag(binary.LittleEndian.Uint32(cksum[20:24]))

	return bindHash, flags, nil
}
