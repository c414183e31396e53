// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"errors"

	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/seqstate"
)

// RFC 4121 § 2: the acceptor subkey takes precedence over the initiator subkey, which takes
// precedence over the ticket session key.
func (c *krb5Context) sendKey() types.EncryptionKey {
	switch {
	case c.acceptorSubkey != nil:
		return *c.acceptorSubkey
	case c.initiatorSubkey != nil:
		return *c.initiatorSubkey
	case c.sessionKey != nil:
		return *c.sessionKey
	}

	return types.EncryptionKey{}
}

func (c *krb5Context) sendFlags() msgTokenFlag {
	var f msgTokenFlag
	if !c.initiator {
		f |= msgTokenFlagSentByAcceptor
	}
	if c.acceptorSubkey != nil {
		f |= msgTokenFlagAcceptorSubkey
	}

	return f
}

func (c *krb5Context) recvKey(f msgTokenFlag) (types.EncryptionKey, error) {
	if f&msgTokenFlagAcceptorSubkey != 0 {
		if c.acceptorSubkey == nil {
			return types.EncryptionKey{}, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorNoSubkey,
				errors.New("krb5: token uses an acceptor subkey that was never negotiated"))
		}
		return *c.acceptorSubkey, nil
	}

	if c.initiatorSubkey != nil {
		return *c.initiatorSubkey, nil
	}
	if c.sessionKey != nil {
		return *c.sessionKey, nil
	}

	return types.EncryptionKey{}, gssapi.MechStatus(gssapi.ErrNoContext, minorContext, nil)
}

// ready reports whether per-message operations may be used.  The caller holds c.mu.
func (c *krb5Context) ready() error {
	if c.state != stateEstablished {
		return gssapi.MechStatus(gssapi.ErrNoContext, minorCtxIncomplete, nil)
	}

	return nil
}

func checkQoP(qop gssapi.QoP) error {
	if qop != gssapi.QoPDefault {
		return gssapi.MechStatus(gssapi.ErrBadQop, 0, nil)
	}

	return nil
}

// tokenStatus maps a failure to verify or decrypt a message token.
func tokenStatus(err error) error {
	if errors.Is(err, errWrongDirection) {
		return gssapi.MechStatus(gssapi.ErrBadMic, minorBadDirection, err)
	}

	return gssapi.MechStatus(gssapi.ErrBadMic, 0, err)
}

// checkSeq records seq in the receive window.  The returned error is informational.
func (c *krb5Context) checkSeq(seq uint64) error {
	st := c.recv.Check(seq)

	var info error
	switch st {
	case seqstate.OK:
		return nil
	case seqstate.Duplicate:
		info = gssapi.InfoDuplicateToken
	case seqstate.Old:
		info = gssapi.InfoOldToken
	case seqstate.Unseq:
		info = gssapi.InfoUnseqToken
	case seqstate.Gap:
		info = gssapi.InfoGapToken
	}

	c.logger.Warn("out of sequence message token", "seq", seq, "status", st.String())
	return gssapi.MechInfo(0, info)
}

func (c *krb5Context) GetMIC(qop gssapi.QoP, msg []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, err
	}
	if err := checkQoP(qop); err != nil {
		return nil, err
	}

	tok := micToken{
		Flags:          c.sendFlags(),
		SequenceNumber: c.sendSeq,
	}
	if err := tok.Sign(msg, c.sendKey()); err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrFailure, 0, err)
	}

	out, err := tok.Marshal()
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrFailure, 0, err)
	}

	c.sendSeq++
	return out, nil
}

func (c *krb5Context) VerifyMIC(msg, token []byte) (gssapi.QoP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return 0, err
	}

	var tok micToken
	if err := tok.Unmarshal(token); err != nil {
		return 0, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadTokenHeader, err)
	}

	key, err := c.recvKey(tok.Flags)
	if err != nil {
		return 0, err
	}

	if err := tok.Verify(msg, key, c.initiator); err != nil {
		return 0, tokenStatus(err)
	}

	return gssapi.QoPDefault, c.checkSeq(tok.SequenceNumber)
}

func (c *krb5Context) Wrap(confReq bool, qop gssapi.QoP, msg []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, false, err
	}
	if err := checkQoP(qop); err != nil {
		return nil, false, err
	}

	tok := wrapToken{
		Flags:          c.sendFlags(),
		SequenceNumber: c.sendSeq,
		Payload:        msg,
	}

	var err error
	if confReq {
		tok.Flags |= msgTokenFlagSealed
		err = tok.Seal(c.sendKey())
	} else {
		err = tok.Sign(c.sendKey())
	}
	if err != nil {
		return nil, false, gssapi.MechStatus(gssapi.ErrFailure, 0, err)
	}

	out, err := tok.Marshal()
	if err != nil {
		return nil, false, gssapi.MechStatus(gssapi.ErrFailure, 0, err)
	}

	c.sendSeq++
	return out, confReq, nil
}

func (c *krb5Context) Unwrap(token []byte) ([]byte, bool, gssapi.QoP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, false, 0, err
	}

	var tok wrapToken
	if err := tok.Unmarshal(token); err != nil {
		return nil, false, 0, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadTokenHeader, err)
	}

	key, err := c.recvKey(tok.Flags)
	if err != nil {
		return nil, false, 0, err
	}

	sealed, err := tok.VerifyAndDecode(key, c.initiator)
	if err != nil {
		return nil, false, 0, tokenStatus(err)
	}

	return tok.Payload, sealed, gssapi.QoPDefault, c.checkSeq(tok.SequenceNumber)
}

func (c *krb5Context) WrapSizeLimit(confReq bool, qop gssapi.QoP, maxOutput uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return 0, err
	}
	if err := checkQoP(qop); err != nil {
		return 0, err
	}

	return wrapSizeLimit(c.sendKey().KeyType, confReq, maxOutput), nil
}
