// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana/chksumtype"
	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/seqstate"
)

type ctxState int

const (
	stateNew ctxState = iota
	stateWaitingForMutual
	stateEstablished
	stateDeleted
)

// supportedFlags are the requested flags the mechanism can grant; integrity, confidentiality
// and export are always available.
const (
	supportedFlags = gssapi.ContextFlagMutual | gssapi.ContextFlagReplay | gssapi.ContextFlagSequence |
		gssapi.ContextFlagConf | gssapi.ContextFlagInteg
	alwaysFlags = gssapi.ContextFlagInteg | gssapi.ContextFlagConf | gssapi.ContextFlagTrans
)

// krb5Context is one end of a Kerberos security context.
type krb5Context struct {
	mech   *Mech
	logger *slog.Logger
	now    func() time.Time

	initiator bool
	state     ctxState
	cred      *credential
	bindings  []byte

	initiatorName *principal
	acceptorName  *principal

	reqFlags gssapi.ContextFlag
	flags    gssapi.ContextFlag
	endTime  time.Time // zero for an indefinite lifetime

	ticket          *messages.Ticket
	sessionKey      *types.EncryptionKey
	initiatorSubkey *types.EncryptionKey
	acceptorSubkey  *types.EncryptionKey

	// authenticator time, echoed in the AP-REP
	clientCTime time.Time
	clientCusec int

	// per-message state
	mu      sync.Mutex
	sendSeq uint64
	recv    *seqstate.Window
}

var _ gssapi.MechContext = (*krb5Context)(nil)

func (m *Mech) newContext(initiator bool, now func() time.Time) *krb5Context {
	if now == nil {
		now = time.Now
	}

	role := "acceptor"
	if initiator {
		role = "initiator"
	}

	return &krb5Context{
		mech:      m,
		logger:    m.logger.With("role", role),
		now:       now,
		initiator: initiator,
	}
}

// NewInitiator prepares a context that will send an AP-REQ for the target.
func (m *Mech) NewInitiator(params gssapi.InitParams) (gssapi.MechContext, error) {
	cred, ok := params.Cred.(*credential)
	if !ok || cred.tickets == nil {
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorCred, errors.New("krb5: not an initiator credential"))
	}

	target, err := parseMN(params.Target)
	if err != nil {
		return nil, err
	}

	c := m.newContext(true, params.Now)
	c.cred = cred
	c.bindings = params.ChannelBindings
	c.initiatorName = cred.name
	c.acceptorName = &target
	c.reqFlags = params.Flags

	return c, nil
}

// NewAcceptor prepares a context that will verify an AP-REQ.
func (m *Mech) NewAcceptor(params gssapi.AcceptParams) (gssapi.MechContext, error) {
	cred, ok := params.Cred.(*credential)
	if !ok || cred.keytab == nil {
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorCred, errors.New("krb5: not an acceptor credential"))
	}

	c := m.newContext(false, params.Now)
	c.cred = cred
	c.bindings = params.ChannelBindings

	return c, nil
}

func (c *krb5Context) Step(input []byte) (gssapi.StepResult, error) {
	switch c.state {
	case stateEstablished:
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrFailure, minorContextEstablished, nil)
	case stateDeleted:
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrNoContext, minorContext, nil)
	}

	if c.initiator {
		return c.stepInitiator(input)
	}

	return c.stepAcceptor(input)
}

func (c *krb5Context) result(output []byte) gssapi.StepResult {
	lifetime := gssapi.IndefiniteLifetime()
	if !c.endTime.IsZero() {
		lifetime = gssapi.MakeGssLifetime(c.endTime)
	}

	return gssapi.StepResult{
		Output:   output,
		Complete: c.state == stateEstablished,
		Flags:    c.flags,
		Lifetime: lifetime,
	}
}

func (c *krb5Context) stepInitiator(input []byte) (gssapi.StepResult, error) {
	if c.state == stateNew {
		if len(input) != 0 {
			return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadTokenHeader,
				errors.New("krb5: unexpected input token on the first call"))
		}
		return c.sendAPReq()
	}

	return c.receiveAPRep(input)
}

// sendAPReq creates the first context-establishment token.
func (c *krb5Context) sendAPReq() (gssapi.StepResult, error) {
	st, err := c.cred.tickets.ServiceTicket(c.acceptorName.name, c.acceptorName.realm)
	if err != nil {
		return gssapi.StepResult{}, err
	}
	c.ticket = &st.Ticket
	c.sessionKey = &st.SessionKey
	c.endTime = st.EndTime
	if c.endTime.IsZero() && c.cred.initExpiry.Status == gssapi.GssLifetimeAvailable {
		c.endTime = c.cred.initExpiry.ExpiresAt
	}

	auth, err := types.NewAuthenticator(c.initiatorName.realm, c.initiatorName.name)
	if err != nil {
		return gssapi.StepResult{}, fmt.Errorf("krb5: generating new authenticator: %w", err)
	}

	// the authenticator carries whole seconds plus microseconds
	now := c.now().UTC()
	auth.CTime = now.Truncate(time.Second)
	auth.Cusec = now.Nanosecond() / int(time.Microsecond)

	et, err := crypto.GetEtype(st.SessionKey.KeyType)
	if err != nil {
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrFailure, minorNoCTypes, err)
	}
	subkey, err := generateBaseKey(et)
	if err != nil {
		return gssapi.StepResult{}, fmt.Errorf("krb5: generating subkey: %w", err)
	}
	auth.SubKey = subkey
	c.initiatorSubkey = &subkey

	// delegation is never offered
	c.reqFlags &^= gssapi.ContextFlagDeleg
	auth.Cksum = types.Checksum{
		CksumType: chksumtype.GSSAPI,
		Checksum:  newAuthenticatorChksum(c.reqFlags, c.bindings),
	}

	apreq, err := messages.NewAPReq(st.Ticket, st.SessionKey, auth)
	if err != nil {
		return gssapi.StepResult{}, fmt.Errorf("krb5: %w", err)
	}

	mutual := c.reqFlags&gssapi.ContextFlagMutual != 0
	if mutual {
		types.SetFlag(&apreq.APOptions, flags.APOptionMutualRequired)
	}

	// Authenticator.SeqNumber is a 32 bit number in the protocol
	c.sendSeq = uint64(auth.SeqNumber)
	c.clientCTime = auth.CTime
	c.clientCusec = auth.Cusec

	tok := contextToken{tokID: tokenIDKrbAPReq, apReq: &apreq}
	out, err := tok.marshal()
	if err != nil {
		return gssapi.StepResult{}, err
	}

	c.flags = (c.reqFlags&supportedFlags)&^gssapi.ContextFlagMutual | alwaysFlags

	if mutual {
		c.state = stateWaitingForMutual
		c.logger.Debug("sent AP-REQ, waiting for AP-REP")
		return c.result(out), nil
	}

	// without mutual authentication the acceptor can't tell us its initial sequence number
	recvSeq, err := c.defaultAcceptorISN(c.sendSeq)
	if err != nil {
		return gssapi.StepResult{}, err
	}
	c.established(recvSeq)

	return c.result(out), nil
}

// defaultAcceptorISN returns the acceptor's initial sequence number when there is no AP-REP.
// MIT and Microsoft use the initiator's; Heimdal uses zero.
// See https://bugs.openjdk.java.net/browse/JDK-8201814
func (c *krb5Context) defaultAcceptorISN(initiatorISN uint64) (uint64, error) {
	switch c.mech.cfg.AcceptorISN {
	case DefaultAcceptorISNInitiator:
		return initiatorISN, nil
	case DefaultAcceptorISNZero:
		return 0, nil
	}

	return 0, gssapi.MechStatus(gssapi.ErrFailure, minorUnknownISNPolicy,
		fmt.Errorf("krb5: unknown acceptor initial sequence number policy %d", c.mech.cfg.AcceptorISN))
}

func (c *krb5Context) receiveAPRep(input []byte) (gssapi.StepResult, error) {
	var tok contextToken
	if err := tok.unmarshal(input); err != nil {
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadTokenHeader, err)
	}

	if tok.krbError != nil {
		return gssapi.StepResult{}, krbStatus(*tok.krbError)
	}

	if tok.apRep == nil {
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorWrongTokenID,
			errors.New("krb5: context token does not contain an AP-REP"))
	}

	// decrypt/verify the private part of the AP-REP message
	msg, err := tok.apRep.open(*c.sessionKey)
	if err != nil {
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrDefectiveToken,
			krbErrorBase+uint32(errorcode.KRB_AP_ERR_BAD_INTEGRITY), err)
	}

	// check the response has the same time values as the request
	if msg.CTime.Unix() != c.clientCTime.Unix() || msg.Cusec != c.clientCusec {
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrFailure,
			krbErrorBase+uint32(errorcode.KRB_AP_ERR_MUT_FAIL), errors.New("krb5: mutual authentication failed"))
	}

	if msg.Subkey.KeyType != 0 {
		c.acceptorSubkey = &msg.Subkey
	}

	c.flags |= gssapi.ContextFlagMutual
	c.established(uint64(msg.SequenceNumber))

	return c.result(nil), nil
}

func (c *krb5Context) stepAcceptor(input []byte) (gssapi.StepResult, error) {
	var tok contextToken
	if err := tok.unmarshal(input); err != nil {
		if errors.Is(err, errUnknownTokenID) {
			// RFC 4121 § 4.1: answer a bad token ID with a KRB-ERROR
			ke := messages.NewKRBError(types.PrincipalName{}, "", errorcode.KRB_AP_ERR_MSG_TYPE, "gss accept failed")
			return gssapi.StepResult{Output: errorToken(ke)}, krbStatus(ke)
		}
		return gssapi.StepResult{}, gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadTokenHeader, err)
	}

	if tok.krbError != nil {
		return gssapi.StepResult{}, krbStatus(*tok.krbError)
	}

	if tok.apReq == nil {
		ke := messages.NewKRBError(types.PrincipalName{}, "", errorcode.KRB_AP_ERR_MSG_TYPE, "gss accept failed")
		return gssapi.StepResult{Output: errorToken(ke)}, krbStatus(ke)
	}

	v := apReqVerifier{
		keytab:   c.cred.keytab,
		desired:  c.cred.acceptAs,
		now:      c.now().UTC(),
		skew:     c.mech.clockSkew(),
		bindings: c.bindings,
		rcache:   c.cred.rcache,
	}

	apreq := tok.apReq
	res, err := v.verify(apreq)
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			return gssapi.StepResult{Output: errorToken(rej.krbErr)}, rej.status
		}
		return gssapi.StepResult{}, err
	}

	enc := &apreq.Ticket.DecryptedEncPart
	auth := &apreq.Authenticator

	initiator := newPrincipal(enc.CName, enc.CRealm)
	acceptor := newPrincipal(apreq.Ticket.SName, apreq.Ticket.Realm)
	c.initiatorName, c.acceptorName = &initiator, &acceptor

	c.ticket = &apreq.Ticket
	c.sessionKey = &enc.Key
	if auth.SubKey.KeyType != 0 {
		c.initiatorSubkey = &auth.SubKey
	}
	c.endTime = enc.EndTime
	c.clientCTime = auth.CTime
	c.clientCusec = auth.Cusec

	c.flags = (res.flags&supportedFlags)&^gssapi.ContextFlagMutual | alwaysFlags
	if res.channelBound {
		c.flags |= gssapi.ContextFlagChannelBound
	}

	recvSeq := uint64(auth.SeqNumber)

	if !res.mutual {
		sendSeq, err := c.defaultAcceptorISN(recvSeq)
		if err != nil {
			return gssapi.StepResult{}, err
		}
		c.sendSeq = sendSeq
		c.established(recvSeq)

		return c.result(nil), nil
	}

	out, err := c.sendAPRep()
	if err != nil {
		return gssapi.StepResult{}, err
	}

	c.flags |= gssapi.ContextFlagMutual
	c.established(recvSeq)

	return c.result(out), nil
}

// sendAPRep answers a mutual authentication request with a new acceptor subkey and sequence
// number.
func (c *krb5Context) sendAPRep() ([]byte, error) {
	seq, err := rand.Int(rand.Reader, big.NewInt(math.MaxUint32))
	if err != nil {
		return nil, err
	}

	// Work around implementation incompatibilities by not generating initial sequence numbers
	// greater than 2^30.  Previous MIT implementations use signed sequence numbers, so initial
	// sequence numbers 2^31 to 2^32-1 inclusive will be rejected.
	seqNum := seq.Int64() & 0x3fffffff

	keyType := c.sessionKey.KeyType
	if c.initiatorSubkey != nil {
		keyType = c.initiatorSubkey.KeyType
	}
	et, err := crypto.GetEtype(keyType)
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrFailure, minorNoCTypes, err)
	}
	subkey, err := generateBaseKey(et)
	if err != nil {
		return nil, fmt.Errorf("krb5: generating subkey: %w", err)
	}

	encPart := apRepEncPart{
		CTime:          c.clientCTime, // copied from the AP-REQ
		Cusec:          c.clientCusec,
		Subkey:         subkey,
		SequenceNumber: seqNum,
	}

	aprep, err := sealAPRep(encPart, *c.sessionKey, c.ticket.EncPart.KVNO)
	if err != nil {
		return nil, fmt.Errorf("krb5: %w", err)
	}

	tok := contextToken{tokID: tokenIDKrbAPRep, apRep: &aprep}
	out, err := tok.marshal()
	if err != nil {
		return nil, err
	}

	c.acceptorSubkey = &subkey
	c.sendSeq = uint64(seqNum)

	return out, nil
}

// established completes the context, expecting recvSeq as the peer's first sequence number.
func (c *krb5Context) established(recvSeq uint64) {
	c.recv = seqstate.New(recvSeq,
		c.flags&gssapi.ContextFlagReplay != 0,
		c.flags&gssapi.ContextFlagSequence != 0,
		true)

	c.flags |= gssapi.ContextFlagProtReady
	c.state = stateEstablished
	c.cred = nil

	c.logger.Debug("security context established",
		"initiator", c.initiatorName.String(),
		"acceptor", c.acceptorName.String(),
		"ssf", keySSF(c.sendKey().KeyType))
}

func (c *krb5Context) InitiatorName() []byte {
	if c.initiatorName == nil {
		return nil
	}

	return []byte(c.initiatorName.String())
}

func (c *krb5Context) AcceptorName() []byte {
	if c.acceptorName == nil {
		return nil
	}

	return []byte(c.acceptorName.String())
}

// ProcessToken reports a KRB-ERROR sent by the peer outside establishment.
func (c *krb5Context) ProcessToken(token []byte) error {
	var tok contextToken
	if err := tok.unmarshal(token); err != nil {
		return gssapi.MechStatus(gssapi.ErrDefectiveToken, minorBadTokenHeader, err)
	}

	if tok.krbError != nil {
		c.logger.Warn("peer reported a Kerberos error", "code", tok.krbError.ErrorCode)
		return krbStatus(*tok.krbError)
	}

	return gssapi.MechStatus(gssapi.ErrDefectiveToken, minorWrongTokenID, errors.New("krb5: not a context token"))
}

// Delete discards the context keys.  Kerberos has no context deletion token.
func (c *krb5Context) Delete() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// the session key may be shared with the ticket source's cache
	for _, k := range []*types.EncryptionKey{c.initiatorSubkey, c.acceptorSubkey} {
		if k != nil {
			clear(k.KeyValue)
		}
	}
	c.sessionKey, c.initiatorSubkey, c.acceptorSubkey = nil, nil, nil
	c.ticket = nil
	c.cred = nil
	c.state = stateDeleted

	return nil, nil
}
