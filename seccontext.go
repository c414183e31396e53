// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type contextState int

const (
	stateFresh contextState = iota
	stateInProgress
	stateEstablished
	stateExpired
	stateDeleted
)

func (s contextState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateInProgress:
		return "in-progress"
	case stateEstablished:
		return "established"
	case stateExpired:
		return "expired"
	case stateDeleted:
		return "deleted"
	}

	return "unknown"
}

// contextEntry is the engine's security context object.  The mechanism holds the keys and
// sequence state; the engine holds the role, the state machine, the granted flags and the
// lifetime.
type contextEntry struct {
	id        uuid.UUID
	mech      Mechanism
	mc        MechContext
	initiator bool
	state     contextState
	flags     ContextFlag
	requested GssLifetime
	lifetime  GssLifetime

	cred     *credElement
	ownsCred bool

	logger *slog.Logger
}

// InitSecContextOptions holds the optional parameters for initializing a security context.
type InitSecContextOptions struct {
	Credential     CredHandle
	Mech           Oid
	Flags          ContextFlag
	Lifetime       time.Duration
	ChannelBinding *ChannelBinding
}

// InitSecContextOption is a function type for configuring InitSecContext options.
type InitSecContextOption func(o *InitSecContextOptions)

// WithInitiatorCredential selects the initiator credential.  The default credential of the
// mechanism is used otherwise.
func WithInitiatorCredential(cred CredHandle) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.Credential = cred
	}
}

// WithInitiatorMech selects the mechanism.  The registry's default mechanism is used otherwise.
func WithInitiatorMech(mech Oid) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.Mech = mech
	}
}

// WithInitiatorFlags requests context flags.
func WithInitiatorFlags(flags ContextFlag) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.Flags = flags
	}
}

// WithInitiatorLifetime requests a maximum context lifetime.
func WithInitiatorLifetime(life time.Duration) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.Lifetime = life
	}
}

// WithInitiatorChannelBinding binds the context to properties of the channel.
func WithInitiatorChannelBinding(cb *ChannelBinding) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.ChannelBinding = cb
	}
}

// AcceptSecContextOptions holds the optional parameters for accepting a security context.
type AcceptSecContextOptions struct {
	Credential     CredHandle
	ChannelBinding *ChannelBinding
}

// AcceptSecContextOption is a function type for configuring AcceptSecContext options.
type AcceptSecContextOption func(o *AcceptSecContextOptions)

// WithAcceptorCredential selects the acceptor credential.  The default acceptor credential of
// the mechanism is used otherwise.
func WithAcceptorCredential(cred CredHandle) AcceptSecContextOption {
	return func(o *AcceptSecContextOptions) {
		o.Credential = cred
	}
}

// WithAcceptorChannelBinding supplies the channel bindings the initiator is expected to use.
func WithAcceptorChannelBinding(cb *ChannelBinding) AcceptSecContextOption {
	return func(o *AcceptSecContextOptions) {
		o.ChannelBinding = cb
	}
}

// InitResult holds the outputs of one InitSecContext call.
type InitResult struct {
	Context        ContextHandle // Handle to pass to the next call
	Output         Buffer        // Token for the acceptor; must be sent whenever it is not empty
	Mech           Oid           // Actual mechanism
	Flags          ContextFlag   // Flags granted so far
	Lifetime       uint32        // Seconds of validity remaining
	ContinueNeeded bool          // Another token is expected from the acceptor
}

// AcceptResult holds the outputs of one AcceptSecContext call.
type AcceptResult struct {
	Context        ContextHandle
	Output         Buffer     // Token for the initiator; must be sent whenever it is not empty
	Mech           Oid        // Actual mechanism
	SrcName        NameHandle // Initiator's name once known; release with ReleaseName
	Flags          ContextFlag
	Lifetime       uint32
	ContinueNeeded bool
	DelegatedCred  CredHandle // Credential delegated by the initiator, if any
}

// context looks up a live context.  An established context whose lifetime has run out moves to
// the expired state here, so every operation sees the same state.
func (e *Engine) context(h ContextHandle) (*contextEntry, error) {
	c, ok := e.contexts.get(h.handle)
	if !ok || c.state == stateDeleted {
		return nil, makeStatus(errNoContext, fmt.Errorf("gssapi: context handle %s is not valid", h))
	}

	if c.state == stateEstablished && c.lifetime.Expired(e.now()) {
		c.state = stateExpired
		c.logger.Debug("security context expired")
	}

	return c, nil
}

func (e *Engine) newContext(id uuid.UUID, m Mechanism, initiator bool) *contextEntry {
	role := "acceptor"
	if initiator {
		role = "initiator"
	}

	return &contextEntry{
		id:        id,
		mech:      m,
		initiator: initiator,
		state:     stateFresh,
		requested: IndefiniteLifetime(),
		lifetime:  IndefiniteLifetime(),
		logger:    e.logger.With("ctx_id", id.String(), "mech", m.String(), "role", role),
	}
}

// destroy removes a context after a failure or deletion.  The mechanism's shutdown token, if
// any, is returned.
func (e *Engine) destroy(h ContextHandle, c *contextEntry) []byte {
	e.contexts.remove(h.handle)
	c.state = stateDeleted

	var tok []byte
	if c.mc != nil {
		var err error
		if tok, err = c.mc.Delete(); err != nil {
			c.logger.Debug("mechanism context delete failed", "error", err)
		}
	}

	if c.ownsCred && c.cred != nil {
		_ = c.cred.cred.Release()
	}
	c.cred = nil

	return tok
}

// applyStep records the outcome of a successful establishment step.
func (e *Engine) applyStep(c *contextEntry, res StepResult) {
	lifetime := res.Lifetime
	if lifetime.Status == GssLifetimeAvailable && lifetime.ExpiresAt.IsZero() {
		lifetime = IndefiniteLifetime()
	}

	c.lifetime = earliest(lifetime, c.requested)
	c.flags = res.Flags

	if res.Complete {
		c.state = stateEstablished
		c.logger.Info("security context established", "flags", c.flags.String())
	} else {
		c.state = stateInProgress
		c.logger.Debug("security context continue needed", "flags", c.flags.String())
	}
}

// InitSecContext implements GSS_Init_sec_context (RFC 2743 § 2.2.1).  Pass a zero context handle
// and no input token on the first call, then the returned handle and each token from the
// acceptor until ContinueNeeded is false.
//
// The caller should check the granted flags once establishment completes: a requested service
// that was not granted is not an error here.  On error the context is deleted.
func (e *Engine) InitSecContext(h ContextHandle, target NameHandle, input []byte, opts ...InitSecContextOption) (*InitResult, error) {
	o := InitSecContextOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	var c *contextEntry
	if h.IsZero() {
		var err error
		if c, err = e.newInitiator(target, &o); err != nil {
			return nil, err
		}
		h = ContextHandle{e.contexts.insert(c)}
	} else {
		var err error
		if c, err = e.context(h); err != nil {
			return nil, err
		}
		if !c.initiator || c.state != stateInProgress {
			return nil, FatalStatus{CallingErrorCode: CallBadStructure, FatalErrorCode: errNoContext}
		}
	}

	res, err := c.mc.Step(input)
	if err != nil {
		c.logger.Warn("security context establishment failed", "error", err)
		e.destroy(h, c)
		return nil, withMech(c.mech.Oid(), err)
	}

	e.applyStep(c, res)

	return &InitResult{
		Context:        h,
		Output:         newBuffer(res.Output),
		Mech:           c.mech.Oid(),
		Flags:          c.flags,
		Lifetime:       c.lifetime.Seconds(e.now()),
		ContinueNeeded: !res.Complete,
	}, nil
}

func (e *Engine) newInitiator(target NameHandle, o *InitSecContextOptions) (*contextEntry, error) {
	m, err := e.registry.Lookup(o.Mech)
	if err != nil {
		return nil, err
	}

	tn, err := e.name(target)
	if err != nil {
		return nil, err
	}

	mn, err := e.canonicalFor(tn, m)
	if err != nil {
		return nil, err
	}

	if o.Flags&^requestable != 0 {
		return nil, FatalStatus{CallingErrorCode: CallBadStructure, FatalErrorCode: errFailure}
	}

	el, owned, err := e.elementFor(o.Credential, m, CredUsageInitiateOnly)
	if err != nil {
		return nil, err
	}

	c := e.newContext(uuid.New(), m, true)
	c.cred, c.ownsCred = el, owned

	now := e.now()
	if o.Lifetime > 0 {
		c.requested = MakeGssLifetime(now.Add(o.Lifetime))
	}
	c.requested = earliest(c.requested, el.initExpiry)

	params := InitParams{
		Cred:            el.cred,
		Target:          mn.value,
		Flags:           o.Flags,
		Lifetime:        c.requested,
		ChannelBindings: o.ChannelBinding.Marshal(),
		Now:             e.now,
	}

	if c.mc, err = m.NewInitiator(params); err != nil {
		if owned {
			_ = el.cred.Release()
		}
		return nil, withMech(m.Oid(), err)
	}

	c.logger.Debug("initiating security context", "flags", o.Flags.String())
	return c, nil
}

// AcceptSecContext implements GSS_Accept_sec_context (RFC 2743 § 2.2.2).  Pass a zero context
// handle with the first token from the initiator.  The mechanism is chosen from the initial
// context token framing, or from the acceptor credential when the token is not framed.
//
// On error the context is deleted, but the result may still hold an error token that should be
// sent to the initiator.
func (e *Engine) AcceptSecContext(h ContextHandle, input []byte, opts ...AcceptSecContextOption) (*AcceptResult, error) {
	o := AcceptSecContextOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	var c *contextEntry
	if h.IsZero() {
		var err error
		if c, err = e.newAcceptor(input, &o); err != nil {
			return nil, err
		}
		h = ContextHandle{e.contexts.insert(c)}
	} else {
		var err error
		if c, err = e.context(h); err != nil {
			return nil, err
		}
		if c.initiator || c.state != stateInProgress {
			return nil, FatalStatus{CallingErrorCode: CallBadStructure, FatalErrorCode: errNoContext}
		}
	}

	res, err := c.mc.Step(input)
	if err != nil {
		c.logger.Warn("security context acceptance failed", "error", err)
		e.destroy(h, c)

		var ar *AcceptResult
		if len(res.Output) > 0 {
			ar = &AcceptResult{Output: newBuffer(res.Output), Mech: c.mech.Oid()}
		}
		return ar, withMech(c.mech.Oid(), err)
	}

	e.applyStep(c, res)

	ar := &AcceptResult{
		Context:        h,
		Output:         newBuffer(res.Output),
		Mech:           c.mech.Oid(),
		Flags:          c.flags,
		Lifetime:       c.lifetime.Seconds(e.now()),
		ContinueNeeded: !res.Complete,
	}

	if src := c.mc.InitiatorName(); src != nil {
		if n, err := e.newMN(c.mech, src); err == nil {
			ar.SrcName = e.insertName(n)
		}
	}

	if res.DelegatedCred != nil {
		ar.DelegatedCred = e.adoptDelegated(c.mech, res.DelegatedCred)
	}

	return ar, nil
}

func (e *Engine) newAcceptor(input []byte, o *AcceptSecContextOptions) (*contextEntry, error) {
	m, err := e.acceptorMech(input, o.Credential)
	if err != nil {
		return nil, err
	}

	el, owned, err := e.elementFor(o.Credential, m, CredUsageAcceptOnly)
	if err != nil {
		return nil, err
	}

	c := e.newContext(uuid.New(), m, false)
	c.cred, c.ownsCred = el, owned
	c.requested = el.acceptExpiry

	params := AcceptParams{
		Cred:            el.cred,
		ChannelBindings: o.ChannelBinding.Marshal(),
		Now:             e.now,
	}

	if c.mc, err = m.NewAcceptor(params); err != nil {
		if owned {
			_ = el.cred.Release()
		}
		return nil, withMech(m.Oid(), err)
	}

	c.logger.Debug("accepting security context")
	return c, nil
}

// acceptorMech picks the mechanism for a new acceptor context.
func (e *Engine) acceptorMech(input []byte, cred CredHandle) (Mechanism, error) {
	if len(input) == 0 {
		return nil, makeStatus(errDefectiveToken, errors.New("gssapi: empty initial context token"))
	}

	if oid, _, err := parseInitialToken(input); err == nil {
		return e.registry.Lookup(oid)
	}

	if cred.IsZero() {
		return e.registry.Default()
	}

	c, err := e.cred(cred)
	if err != nil {
		return nil, err
	}

	var m Mechanism
	for _, el := range c.elements {
		if !el.usage.accept() {
			continue
		}
		if m != nil && !m.Oid().Equal(el.mech.Oid()) {
			return nil, makeStatus(errDefectiveToken, errors.New("gssapi: cannot determine the mechanism of an unframed token"))
		}
		m = el.mech
	}

	if m == nil {
		return nil, makeStatus(errNoCred, errors.New("gssapi: credential cannot accept contexts"))
	}

	return m, nil
}

// SecContextInfo describes a security context (GSS_Inquire_context, RFC 2743 § 2.2.6).
type SecContextInfo struct {
	SrcName          NameHandle // Initiator's name, zero while unknown; release with ReleaseName
	TargName         NameHandle // Acceptor's name, zero while unknown; release with ReleaseName
	Lifetime         uint32     // Seconds remaining
	Mech             Oid
	Flags            ContextFlag
	LocallyInitiated bool
	Open             bool // Establishment has completed
	ID               uuid.UUID
}

// InquireContext implements GSS_Inquire_context (RFC 2743 § 2.2.6).  It may be called on a
// partially established context.
func (e *Engine) InquireContext(h ContextHandle) (*SecContextInfo, error) {
	c, err := e.context(h)
	if err != nil {
		return nil, err
	}

	info := &SecContextInfo{
		Lifetime:         c.lifetime.Seconds(e.now()),
		Mech:             c.mech.Oid(),
		Flags:            c.flags,
		LocallyInitiated: c.initiator,
		Open:             c.state == stateEstablished,
		ID:               c.id,
	}

	if c.mc != nil {
		if src := c.mc.InitiatorName(); src != nil {
			if n, err := e.newMN(c.mech, src); err == nil {
				info.SrcName = e.insertName(n)
			}
		}
		if targ := c.mc.AcceptorName(); targ != nil {
			if n, err := e.newMN(c.mech, targ); err == nil {
				info.TargName = e.insertName(n)
			}
		}
	}

	return info, nil
}

// ContextTime implements GSS_Context_time (RFC 2743 § 2.2.5), returning Indefinite for contexts
// that do not expire.
func (e *Engine) ContextTime(h ContextHandle) (uint32, error) {
	c, err := e.context(h)
	if err != nil {
		return 0, err
	}

	if c.state == stateExpired || c.lifetime.Expired(e.now()) {
		return 0, makeStatus(errContextExpired, nil)
	}

	return c.lifetime.Seconds(e.now()), nil
}

// ProcessContextToken implements GSS_Process_context_token (RFC 2743 § 2.2.4).
func (e *Engine) ProcessContextToken(h ContextHandle, token []byte) error {
	c, err := e.context(h)
	if err != nil {
		return err
	}

	if err := c.mc.ProcessToken(token); err != nil {
		c.logger.Warn("context token reported a failure", "error", err)
		return withMech(c.mech.Oid(), err)
	}

	return nil
}

// DeleteSecContext implements GSS_Delete_sec_context (RFC 2743 § 2.2.3), returning the
// mechanism's shutdown token for the peer, if it produces one.  The handle must not be used
// afterwards.
func (e *Engine) DeleteSecContext(h ContextHandle) (Buffer, error) {
	c, err := e.context(h)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("deleting security context", "state", c.state.String())
	return newBuffer(e.destroy(h, c)), nil
}
