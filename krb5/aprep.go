// SPDX-License-Identifier: Apache-2.0

package krb5

// gokrb5's messages.APRep can only be unmarshalled, so the acceptor side is built here.

import (
	"errors"
	"fmt"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana"
	"github.com/jcmturner/gokrb5/v8/iana/asnAppTag"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/krberror"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"
)

// apRep is KRB_AP_REP (RFC 4120 § 5.5.2).
type apRep struct {
	PVNO    int                 `asn1:"explicit,tag:0"`
	MsgType int                 `asn1:"explicit,tag:1"`
	EncPart types.EncryptedData `asn1:"explicit,tag:2"`
}

// apRepEncPart is EncAPRepPart.  CTime and Cusec echo the authenticator.
type apRepEncPart struct {
	CTime          time.Time           `asn1:"generalized,explicit,tag:0"`
	Cusec          int                 `asn1:"explicit,tag:1"`
	Subkey         types.EncryptionKey `asn1:"optional,explicit,tag:2"`
	SequenceNumber int64               `asn1:"optional,explicit,tag:3"`
}

func marshalApplication(v any, tag int) ([]byte, error) {
	b, err := asn1.Marshal(v)
	if err != nil {
		return nil, err
	}

	return asn1tools.AddASNAppTag(b, tag), nil
}

func unmarshalApplication(b []byte, v any, tag int) error {
	_, err := asn1.UnmarshalWithParams(b, v, fmt.Sprintf("application,explicit,tag:%d", tag))
	return err
}

func (a *apRep) marshal() ([]byte, error) {
	return marshalApplication(*a, asnAppTag.APREP)
}

// unmarshal parses an AP-REP.  A KRB-ERROR sent in its place is returned as the error.
func (a *apRep) unmarshal(b []byte) error {
	if err := unmarshalApplication(b, a, asnAppTag.APREP); err != nil {
		return replyOrKRBError(b, err)
	}

	if a.MsgType != msgtype.KRB_AP_REP {
		return krberror.NewErrorf(krberror.KRBMsgError, "message type %d is not KRB_AP_REP", a.MsgType)
	}

	return nil
}

func (p *apRepEncPart) marshal() ([]byte, error) {
	return marshalApplication(*p, asnAppTag.EncAPRepPart)
}

func (p *apRepEncPart) unmarshal(b []byte) error {
	if err := unmarshalApplication(b, p, asnAppTag.EncAPRepPart); err != nil {
		return krberror.Errorf(err, krberror.EncodingError, "AP_REP unmarshal error")
	}

	return nil
}

// sealAPRep encrypts p in the ticket session key.
func sealAPRep(p apRepEncPart, sessionKey types.EncryptionKey, kvno int) (apRep, error) {
	plain, err := p.marshal()
	if err != nil {
		return apRep{}, krberror.Errorf(err, krberror.EncodingError, "marshaling error of AP-REP enc-part")
	}

	ed, err := crypto.GetEncryptedData(plain, sessionKey, keyusage.AP_REP_ENCPART, kvno)
	if err != nil {
		return apRep{}, krberror.Errorf(err, krberror.EncryptingError, "error encrypting AP-REP enc-part")
	}

	return apRep{PVNO: iana.PVNO, MsgType: msgtype.KRB_AP_REP, EncPart: ed}, nil
}

// open decrypts the enc-part with the ticket session key.
func (a *apRep) open(sessionKey types.EncryptionKey) (apRepEncPart, error) {
	var p apRepEncPart

	plain, err := crypto.DecryptEncPart(a.EncPart, sessionKey, keyusage.AP_REP_ENCPART)
	if err != nil {
		return p, krberror.Errorf(err, krberror.DecryptingError, "error decrypting AP-REP enc-part")
	}

	if err := p.unmarshal(plain); err != nil {
		return p, krberror.Errorf(err, krberror.EncodingError, "error unmarshalling decrypted AP-REP enc-part")
	}

	return p, nil
}

func replyOrKRBError(b []byte, err error) error {
	var se asn1.StructuralError
	if errors.As(err, &se) {
		var ke messages.KRBError
		if ke.Unmarshal(b) == nil {
			return ke
		}
	}

	return krberror.Errorf(err, krberror.EncodingError, "failed to unmarshal message")
}
