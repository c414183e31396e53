// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jcmturner/gofork/encoding/asn1"
	"golang.org/x/crypto/blake2b"

	"github.com/golang-auth/go-gsscore/seqstate"
)

// The mechanism in this file is a toy: it sends its session key in the clear.  It exists to
// drive the engine through every path a real mechanism can take.

var (
	testMechOid  = mustOid("1.3.6.1.4.1.57264.99.1")
	testMech2Oid = mustOid("1.3.6.1.4.1.57264.99.2")
)

func mustOid(s string) Oid {
	o, err := OidFromString(s)
	if err != nil {
		panic(err)
	}
	return o
}

const (
	minorMalformed   = 1
	minorNoCCache    = 2
	minorBindings    = 3
	minorWrongTarget = 4
	minorRejected    = 9
)

type mockMech struct {
	oid       Oid
	name      string
	realm     string
	rounds    int           // initiator tokens needed to establish
	grantable ContextFlag   // flags the mechanism can provide
	protReady bool          // signal ContextFlagProtReady before completion
	credLife  time.Duration // zero for indefinite credentials
	ctxLife   time.Duration // zero for indefinite contexts
	failCred  error
	nameTypes []Oid
}

func newMockMech(opts ...func(m *mockMech)) *mockMech {
	m := &mockMech{
		oid:       testMechOid,
		name:      "mock",
		realm:     "EXAMPLE",
		rounds:    1,
		grantable: ContextFlagMutual | ContextFlagReplay | ContextFlagSequence | ContextFlagConf | ContextFlagInteg,
		nameTypes: []Oid{GSS_NT_USER_NAME.Oid(), GSS_NT_HOSTBASED_SERVICE.Oid(), GSS_NT_ANONYMOUS.Oid()},
	}

	for _, o := range opts {
		o(m)
	}

	return m
}

func (m *mockMech) Oid() Oid         { return m.oid }
func (m *mockMech) String() string   { return m.name }
func (m *mockMech) NameTypes() []Oid { return m.nameTypes }

func (m *mockMech) CanonicalizeName(nameType Oid, value []byte) ([]byte, error) {
	s := string(value)

	switch {
	case len(nameType) == 0 || nameType.Equal(GSS_NT_USER_NAME.Oid()):
		if strings.Contains(s, "/") {
			return nil, MechStatus(ErrBadName, minorMalformed, fmt.Errorf("%q is not a user name", s))
		}
		if !strings.Contains(s, "@") {
			s += "@" + m.realm
		}
		return []byte(s), nil

	case nameType.Equal(GSS_NT_HOSTBASED_SERVICE.Oid()):
		svc, host, found := strings.Cut(s, "@")
		if !found {
			host = "localhost"
		}
		return []byte(svc + "/" + strings.ToLower(host) + "@" + m.realm), nil

	case nameType.Equal(GSS_NT_ANONYMOUS.Oid()):
		return []byte("anonymous"), nil
	}

	return nil, MechStatus(ErrBadNameType, 0, nil)
}

func (m *mockMech) DisplayName(mn []byte) (string, Oid, error) {
	s := string(mn)

	switch {
	case s == "":
		return "", nil, MechStatus(ErrBadName, minorMalformed, errors.New("empty mechanism name"))
	case s == "anonymous":
		return s, GSS_NT_ANONYMOUS.Oid(), nil
	case strings.Contains(s, "/"):
		return s, GSS_NT_HOSTBASED_SERVICE.Oid(), nil
	}

	return s, GSS_NT_USER_NAME.Oid(), nil
}

func (m *mockMech) AcquireCred(req CredRequest) (MechCred, error) {
	if m.failCred != nil {
		return nil, m.failCred
	}

	if req.Store != nil {
		if v, ok := req.Store.GetOption(int(CredStoreCCache)); ok && v == "missing" {
			return nil, MechStatus(ErrNoCred, minorNoCCache, errors.New("credential cache not found"))
		}
	}

	name := req.Name
	if name == nil {
		name = []byte("default@" + m.realm)
		if req.Usage == CredUsageAcceptOnly {
			name = []byte("host/localhost@" + m.realm)
		}
	}

	life := IndefiniteLifetime()
	if m.credLife > 0 {
		life = MakeGssLifetime(req.Now.Add(m.credLife))
	}

	return &mockCred{name: name, usage: req.Usage, life: life}, nil
}

func (m *mockMech) NewInitiator(p InitParams) (MechContext, error) {
	life := p.Lifetime
	if m.ctxLife > 0 {
		life = earliest(life, MakeGssLifetime(p.Now().Add(m.ctxLife)))
	}

	return &mockContext{
		m:         m,
		initiator: true,
		src:       p.Cred.Name(),
		targ:      p.Target,
		reqFlags:  p.Flags,
		cb:        p.ChannelBindings,
		lifetime:  life,
	}, nil
}

func (m *mockMech) NewAcceptor(p AcceptParams) (MechContext, error) {
	life := IndefiniteLifetime()
	if m.ctxLife > 0 {
		life = MakeGssLifetime(p.Now().Add(m.ctxLife))
	}

	return &mockContext{
		m:        m,
		targ:     p.Cred.Name(),
		cb:       p.ChannelBindings,
		lifetime: life,
	}, nil
}

func (m *mockMech) ImportContext(state []byte) (MechContext, error) {
	var st mockState
	if err := cbor.Unmarshal(state, &st); err != nil {
		return nil, MechStatus(ErrDefectiveToken, minorMalformed, err)
	}

	return &mockContext{
		m:         m,
		initiator: st.Initiator,
		complete:  true,
		flags:     st.Flags,
		src:       st.Src,
		targ:      st.Targ,
		key:       st.Key,
		sendSeq:   st.SendSeq,
		recv:      seqstate.Restore(st.Recv),
		lifetime:  IndefiniteLifetime(),
	}, nil
}

var mockMinorMessages = map[uint32]string{
	minorMalformed:   "mock: malformed token",
	minorNoCCache:    "mock: credential cache not found",
	minorBindings:    "mock: channel binding mismatch",
	minorWrongTarget: "mock: no key for target",
	minorRejected:    "mock: rejected by acceptor",
}

func (m *mockMech) DisplayMinor(minor uint32) (string, error) {
	if s, ok := mockMinorMessages[minor]; ok {
		return s, nil
	}

	return fmt.Sprintf("mock: unknown error %d", minor), nil
}

type mockCred struct {
	mu       sync.Mutex
	name     []byte
	usage    CredUsage
	life     GssLifetime
	released bool
}

func (c *mockCred) Name() []byte                   { return c.name }
func (c *mockCred) Usage() CredUsage               { return c.usage }
func (c *mockCred) InitiatorLifetime() GssLifetime { return c.life }
func (c *mockCred) AcceptorLifetime() GssLifetime  { return c.life }

func (c *mockCred) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.released = true
	return nil
}

type mockToken struct {
	Kind   string      `cbor:"1,keyasint"`
	Round  int         `cbor:"2,keyasint,omitempty"`
	Flags  ContextFlag `cbor:"3,keyasint,omitempty"`
	Src    []byte      `cbor:"4,keyasint,omitempty"`
	Target []byte      `cbor:"5,keyasint,omitempty"`
	CB     []byte      `cbor:"6,keyasint,omitempty"`
	Key    []byte      `cbor:"7,keyasint,omitempty"`
	Code   int         `cbor:"8,keyasint,omitempty"`
}

func (t mockToken) marshal() []byte {
	b, err := cbor.Marshal(t)
	if err != nil {
		panic(err)
	}
	return b
}

func parseMockToken(b []byte) (mockToken, error) {
	var t mockToken
	if err := cbor.Unmarshal(b, &t); err != nil || t.Kind == "" {
		return t, MechStatus(ErrDefectiveToken, minorMalformed, err)
	}
	return t, nil
}

// frameToken wraps the first context token in the RFC 2743 § 3.1 framing.
func frameToken(mech Oid, inner []byte) []byte {
	b, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassApplication,
		Tag:        0,
		IsCompound: true,
		Bytes:      append(mech.DER(), inner...),
	})
	if err != nil {
		panic(err)
	}
	return b
}

type mockState struct {
	Initiator bool           `cbor:"1,keyasint"`
	Flags     ContextFlag    `cbor:"2,keyasint"`
	Src       []byte         `cbor:"3,keyasint"`
	Targ      []byte         `cbor:"4,keyasint"`
	Key       []byte         `cbor:"5,keyasint"`
	SendSeq   uint64         `cbor:"6,keyasint"`
	Recv      seqstate.State `cbor:"7,keyasint"`
}

type mockContext struct {
	m         *mockMech
	initiator bool
	round     int
	reqFlags  ContextFlag
	flags     ContextFlag
	complete  bool
	src, targ []byte
	cb        []byte
	key       []byte
	sendSeq   uint64
	recv      *seqstate.Window
	lifetime  GssLifetime
	deleted   bool
}

func (c *mockContext) InitiatorName() []byte { return c.src }
func (c *mockContext) AcceptorName() []byte  { return c.targ }

func (c *mockContext) grant(requested ContextFlag) {
	c.flags = requested&c.m.grantable | ContextFlagTrans
	c.recv = seqstate.New(0, c.flags&ContextFlagReplay != 0, c.flags&ContextFlagSequence != 0, true)
}

func (c *mockContext) result(out []byte) StepResult {
	flags := c.flags
	if c.complete || c.m.protReady {
		flags |= ContextFlagProtReady
	}

	return StepResult{Output: out, Complete: c.complete, Flags: flags, Lifetime: c.lifetime}
}

func (c *mockContext) Step(input []byte) (StepResult, error) {
	if c.complete {
		return StepResult{}, MechStatus(ErrDefectiveToken, minorMalformed, errors.New("context already established"))
	}

	if c.initiator {
		return c.initStep(input)
	}
	return c.acceptStep(input)
}

func (c *mockContext) initStep(input []byte) (StepResult, error) {
	if c.round == 0 {
		if len(input) != 0 {
			return StepResult{}, MechStatus(ErrDefectiveToken, minorMalformed, errors.New("unexpected input token"))
		}

		c.key = make([]byte, 32)
		if _, err := rand.Read(c.key); err != nil {
			return StepResult{}, err
		}
		c.grant(c.reqFlags)
		c.round = 1

		tok := mockToken{Kind: "init", Round: 1, Flags: c.reqFlags, Src: c.src, Target: c.targ, CB: c.cb, Key: c.key}
		return c.afterSend(frameToken(c.m.oid, tok.marshal())), nil
	}

	tok, err := parseMockToken(input)
	if err != nil {
		return StepResult{}, err
	}

	switch tok.Kind {
	case "error":
		code := FatalErrorCode(tok.Code)
		if code == complete || !code.valid() {
			code = errFailure
		}
		return StepResult{}, MechStatus(fatalErrors[code], minorRejected, errors.New("rejected by acceptor"))

	case "continue":
		if tok.Round != c.round || c.round >= c.m.rounds {
			break
		}
		c.round++
		return c.afterSend(mockToken{Kind: "init", Round: c.round}.marshal()), nil

	case "ack":
		if c.round != c.m.rounds || c.flags&ContextFlagMutual == 0 {
			break
		}
		c.complete = true
		return c.result(nil), nil
	}

	return StepResult{}, MechStatus(ErrDefectiveToken, minorMalformed, fmt.Errorf("unexpected %s token", tok.Kind))
}

func (c *mockContext) afterSend(out []byte) StepResult {
	if c.round == c.m.rounds && c.flags&ContextFlagMutual == 0 {
		c.complete = true
	}
	return c.result(out)
}

func (c *mockContext) reject(code FatalErrorCode, minor uint32, cause error) (StepResult, error) {
	out := mockToken{Kind: "error", Code: int(code)}.marshal()
	return StepResult{Output: out}, MechStatus(fatalErrors[code], minor, cause)
}

func (c *mockContext) acceptStep(input []byte) (StepResult, error) {
	payload := input
	if c.round == 0 {
		mech, inner, err := parseInitialToken(input)
		if err != nil || !mech.Equal(c.m.oid) {
			return StepResult{}, MechStatus(ErrDefectiveToken, minorMalformed, err)
		}
		payload = inner
	}

	tok, err := parseMockToken(payload)
	if err != nil {
		return StepResult{}, err
	}
	if tok.Kind != "init" || tok.Round != c.round+1 {
		return StepResult{}, MechStatus(ErrDefectiveToken, minorMalformed, fmt.Errorf("unexpected %s token", tok.Kind))
	}

	if c.round == 0 {
		if c.cb != nil && !bytes.Equal(c.cb, tok.CB) {
			return c.reject(errBadBindings, minorBindings, errors.New("channel bindings do not match"))
		}
		if !bytes.Equal(c.targ, tok.Target) {
			return c.reject(errBadName, minorWrongTarget, fmt.Errorf("no key for %s", tok.Target))
		}

		c.src = tok.Src
		c.key = tok.Key
		c.grant(tok.Flags)
	}

	c.round = tok.Round
	if c.round < c.m.rounds {
		return c.result(mockToken{Kind: "continue", Round: c.round}.marshal()), nil
	}

	c.complete = true

	var out []byte
	if c.flags&ContextFlagMutual != 0 {
		out = mockToken{Kind: "ack"}.marshal()
	}

	res := c.result(out)
	if c.flags&ContextFlagDeleg != 0 {
		res.DelegatedCred = &mockCred{name: c.src, usage: CredUsageInitiateOnly, life: IndefiniteLifetime()}
	}
	return res, nil
}

func (c *mockContext) dir(sender bool) byte {
	if c.initiator == sender {
		return 0
	}
	return 1
}

func (c *mockContext) mac(kind, dir byte, seq uint64, msg []byte) []byte {
	h, err := blake2b.New256(c.key)
	if err != nil {
		panic(err)
	}

	h.Write([]byte{kind, dir})
	_ = binary.Write(h, binary.BigEndian, seq)
	h.Write(msg)

	return h.Sum(nil)
}

func (c *mockContext) keystream(seq uint64, n int) []byte {
	ks := make([]byte, 0, n+blake2b.Size256)
	for ctr := uint32(0); len(ks) < n; ctr++ {
		var blk [12]byte
		binary.BigEndian.PutUint64(blk[:8], seq)
		binary.BigEndian.PutUint32(blk[8:], ctr)
		sum := blake2b.Sum256(append(bytes.Clone(c.key), blk[:]...))
		ks = append(ks, sum[:]...)
	}
	return ks[:n]
}

func (c *mockContext) seqInfo(seq uint64) error {
	switch c.recv.Check(seq) {
	case seqstate.Duplicate:
		return MechInfo(0, InfoDuplicateToken)
	case seqstate.Old:
		return MechInfo(0, InfoOldToken)
	case seqstate.Unseq:
		return MechInfo(0, InfoUnseqToken)
	case seqstate.Gap:
		return MechInfo(0, InfoGapToken)
	}
	return nil
}

const (
	micLen        = 1 + 1 + 8 + blake2b.Size256
	wrapHeaderLen = 1 + 1 + 1 + 8 + blake2b.Size256
)

func (c *mockContext) GetMIC(qop QoP, message []byte) ([]byte, error) {
	if qop != QoPDefault {
		return nil, MechStatus(ErrBadQop, 0, nil)
	}

	seq := c.sendSeq
	c.sendSeq++

	dir := c.dir(true)
	tok := []byte{'M', dir}
	tok = binary.BigEndian.AppendUint64(tok, seq)
	return append(tok, c.mac('M', dir, seq, message)...), nil
}

func (c *mockContext) VerifyMIC(message, token []byte) (QoP, error) {
	if len(token) != micLen || token[0] != 'M' {
		return 0, MechStatus(ErrDefectiveToken, minorMalformed, nil)
	}

	dir := c.dir(false)
	seq := binary.BigEndian.Uint64(token[2:10])
	if token[1] != dir || !hmac.Equal(token[10:], c.mac('M', dir, seq, message)) {
		return 0, MechStatus(ErrBadMic, 0, nil)
	}

	return QoPDefault, c.seqInfo(seq)
}

func (c *mockContext) Wrap(confReq bool, qop QoP, message []byte) ([]byte, bool, error) {
	if qop != QoPDefault {
		return nil, false, MechStatus(ErrBadQop, 0, nil)
	}

	seq := c.sendSeq
	c.sendSeq++

	dir := c.dir(true)
	var conf byte
	payload := bytes.Clone(message)
	if confReq {
		conf = 1
		xorBytes(payload, c.keystream(seq, len(payload)))
	}

	tok := []byte{'W', dir, conf}
	tok = binary.BigEndian.AppendUint64(tok, seq)
	tok = append(tok, c.mac('W', dir, seq, message)...)
	return append(tok, payload...), confReq, nil
}

func (c *mockContext) Unwrap(token []byte) ([]byte, bool, QoP, error) {
	if len(token) < wrapHeaderLen || token[0] != 'W' {
		return nil, false, 0, MechStatus(ErrDefectiveToken, minorMalformed, nil)
	}

	dir := c.dir(false)
	conf := token[2] == 1
	seq := binary.BigEndian.Uint64(token[3:11])
	msg := bytes.Clone(token[wrapHeaderLen:])
	if conf {
		xorBytes(msg, c.keystream(seq, len(msg)))
	}

	if token[1] != dir || !hmac.Equal(token[11:wrapHeaderLen], c.mac('W', dir, seq, msg)) {
		return nil, false, 0, MechStatus(ErrBadMic, 0, nil)
	}

	return msg, conf, QoPDefault, c.seqInfo(seq)
}

func xorBytes(dst, ks []byte) {
	for i := range dst {
		dst[i] ^= ks[i]
	}
}

func (c *mockContext) WrapSizeLimit(confReq bool, qop QoP, maxOutput uint32) (uint32, error) {
	if qop != QoPDefault {
		return 0, MechStatus(ErrBadQop, 0, nil)
	}
	if maxOutput < wrapHeaderLen {
		return 0, nil
	}
	return maxOutput - wrapHeaderLen, nil
}

func (c *mockContext) ProcessToken(token []byte) error {
	tok, err := parseMockToken(token)
	if err != nil {
		return err
	}

	switch tok.Kind {
	case "delete":
		c.deleted = true
		return nil
	case "error":
		return MechStatus(ErrFailure, minorRejected, errors.New("peer reported an error"))
	}

	return MechStatus(ErrDefectiveToken, minorMalformed, fmt.Errorf("unexpected %s token", tok.Kind))
}

func (c *mockContext) Export() ([]byte, error) {
	return cbor.Marshal(mockState{
		Initiator: c.initiator,
		Flags:     c.flags,
		Src:       c.src,
		Targ:      c.targ,
		Key:       c.key,
		SendSeq:   c.sendSeq,
		Recv:      c.recv.State(),
	})
}

func (c *mockContext) Delete() ([]byte, error) {
	if !c.complete {
		return nil, nil
	}
	return mockToken{Kind: "delete"}.marshal(), nil
}

// testClock is a manually advanced engine clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T, opts []EngineOption, mechs ...Mechanism) *Engine {
	if len(mechs) == 0 {
		mechs = []Mechanism{newMockMech()}
	}

	reg, err := NewRegistry(mechs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	return New(append([]EngineOption{WithRegistry(reg)}, opts...)...)
}

// establish runs a complete exchange between an initiator and an acceptor in the same engine.
func establish(t *testing.T, e *Engine, iopts []InitSecContextOption, aopts ...AcceptSecContextOption) (ini *InitResult, acc *AcceptResult) {
	assert := NewAssert(t)

	target, err := e.ImportName([]byte("host@localhost"), GSS_NT_HOSTBASED_SERVICE.Oid())
	assert.NoErrorFatal(err)
	defer func() { _ = e.ReleaseName(target) }()

	ini, err = e.InitSecContext(ContextHandle{}, target, nil, iopts...)
	assert.NoErrorFatal(err)

	var actx ContextHandle
	for {
		var tok []byte
		if len(ini.Output) > 0 {
			acc, err = e.AcceptSecContext(actx, ini.Output, aopts...)
			assert.NoErrorFatal(err)
			actx = acc.Context
			tok = acc.Output
		}

		if !ini.ContinueNeeded {
			break
		}

		ini, err = e.InitSecContext(ini.Context, target, tok, iopts...)
		assert.NoErrorFatal(err)
	}

	return ini, acc
}
