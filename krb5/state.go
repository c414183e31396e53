// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/seqstate"
)

const exportVersion = 1

type exportedKey struct {
	Type  int32  `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// exportedContext is the serialized form of an established context.
type exportedContext struct {
	Version         int            `cbor:"1,keyasint"`
	Initiator       bool           `cbor:"2,keyasint"`
	Flags           uint32         `cbor:"3,keyasint"`
	InitiatorName   string         `cbor:"4,keyasint"`
	AcceptorName    string         `cbor:"5,keyasint"`
	EndTime         int64          `cbor:"6,keyasint,omitempty"` // unix seconds, zero when indefinite
	SessionKey      exportedKey    `cbor:"7,keyasint"`
	InitiatorSubkey *exportedKey   `cbor:"8,keyasint,omitempty"`
	AcceptorSubkey  *exportedKey   `cbor:"9,keyasint,omitempty"`
	SendSeq         uint64         `cbor:"10,keyasint"`
	Recv            seqstate.State `cbor:"11,keyasint"`
}

func exportKey(k *types.EncryptionKey) *exportedKey {
	if k == nil {
		return nil
	}

	return &exportedKey{Type: k.KeyType, Value: k.KeyValue}
}

func importKey(k *exportedKey) *types.EncryptionKey {
	if k == nil {
		return nil
	}

	return &types.EncryptionKey{KeyType: k.Type, KeyValue: k.Value}
}

// Export serializes the keys and sequence state.  The context is unusable afterwards.
func (c *krb5Context) Export() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrUnavailable, minorCtxIncomplete, errors.New("krb5: only established contexts can be exported"))
	}

	st := exportedContext{
		Version:         exportVersion,
		Initiator:       c.initiator,
		Flags:           uint32(c.flags),
		InitiatorName:   c.initiatorName.String(),
		AcceptorName:    c.acceptorName.String(),
		SessionKey:      *exportKey(c.sessionKey),
		InitiatorSubkey: exportKey(c.initiatorSubkey),
		AcceptorSubkey:  exportKey(c.acceptorSubkey),
		SendSeq:         c.sendSeq,
		Recv:            c.recv.State(),
	}
	if !c.endTime.IsZero() {
		st.EndTime = c.endTime.Unix()
	}

	b, err := cbor.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("krb5: exporting context: %w", err)
	}

	c.state = stateDeleted
	return b, nil
}

// ImportContext rebuilds a context serialized by Export.
func (m *Mech) ImportContext(state []byte) (gssapi.MechContext, error) {
	var st exportedContext
	if err := cbor.Unmarshal(state, &st); err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorEncDesc, fmt.Errorf("krb5: importing context: %w", err))
	}

	if st.Version != exportVersion {
		return nil, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorEncDesc, fmt.Errorf("krb5: unsupported context export version %d", st.Version))
	}

	initiator, err := parsePrincipal(st.InitiatorName)
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadName, err)
	}
	acceptor, err := parsePrincipal(st.AcceptorName)
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadName, err)
	}

	if len(st.SessionKey.Value) == 0 {
		return nil, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorEncDesc, errors.New("krb5: exported context has no session key"))
	}

	c := m.newContext(st.Initiator, nil)
	c.state = stateEstablished
	c.flags = gssapi.ContextFlag(st.Flags)
	c.initiatorName, c.acceptorName = &initiator, &acceptor
	c.sessionKey = importKey(&st.SessionKey)
	c.initiatorSubkey = importKey(st.InitiatorSubkey)
	c.acceptorSubkey = importKey(st.AcceptorSubkey)
	c.sendSeq = st.SendSeq
	c.recv = seqstate.Restore(st.Recv)
	if st.EndTime != 0 {
		c.endTime = time.Unix(st.EndTime, 0)
	}

	m.logger.Debug("imported security context", "initiator", st.Initiator)
	return c, nil
}
