// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const exportVersion = 1

// exportedContext is the interprocess token produced by ExportSecContext.  Names are stored in
// exported-name form so that the importing engine can rebuild them without the exporter's
// handles.
type exportedContext struct {
	Version    int       `cbor:"1,keyasint"`
	ID         []byte    `cbor:"2,keyasint"`
	Mech       []byte    `cbor:"3,keyasint"`
	Initiator  bool      `cbor:"4,keyasint"`
	Flags      uint32    `cbor:"5,keyasint"`
	Indefinite bool      `cbor:"6,keyasint,omitempty"`
	Expiry     time.Time `cbor:"7,keyasint,omitempty"`
	SrcName    []byte    `cbor:"8,keyasint,omitempty"`
	TargName   []byte    `cbor:"9,keyasint,omitempty"`
	State      []byte    `cbor:"10,keyasint"`
}

// ExportSecContext implements GSS_Export_sec_context (RFC 2743 § 2.2.8).  On success the context
// is deleted from this engine and the returned token is the only way to use it again; exactly
// one process owns a context at any time.
func (e *Engine) ExportSecContext(h ContextHandle) (Buffer, error) {
	c, err := e.context(h)
	if err != nil {
		return nil, err
	}

	if c.state == stateExpired {
		return nil, makeStatus(errContextExpired, nil)
	}
	if c.state != stateEstablished {
		return nil, makeStatus(errUnavailable, errors.New("gssapi: only established contexts can be exported"))
	}

	state, err := c.mc.Export()
	if err != nil {
		return nil, withMech(c.mech.Oid(), err)
	}

	env := exportedContext{
		Version:   exportVersion,
		ID:        c.id[:],
		Mech:      c.mech.Oid(),
		Initiator: c.initiator,
		Flags:     uint32(c.flags),
		State:     state,
	}

	if c.lifetime.Status == GssLifetimeIndefinite {
		env.Indefinite = true
	} else {
		env.Expiry = c.lifetime.ExpiresAt.UTC()
	}

	mechOid := c.mech.Oid()
	if src := c.mc.InitiatorName(); src != nil {
		env.SrcName = marshalExportedName(mechOid, src)
	}
	if targ := c.mc.AcceptorName(); targ != nil {
		env.TargName = marshalExportedName(mechOid, targ)
	}

	tok, err := cbor.Marshal(env)
	clear(state)
	if err != nil {
		return nil, makeStatus(errFailure, err)
	}

	c.logger.Info("security context exported")

	// the mechanism state now lives in the token only
	c.mc = nil
	e.destroy(h, c)

	return Buffer(tok), nil
}

// ImportSecContext implements GSS_Import_sec_context (RFC 2743 § 2.2.9).  The imported context
// is established and continues the exporter's sequence numbers.
func (e *Engine) ImportSecContext(token []byte) (ContextHandle, error) {
	var env exportedContext
	if err := cbor.Unmarshal(token, &env); err != nil {
		return ContextHandle{}, makeStatus(errDefectiveToken, fmt.Errorf("gssapi: bad interprocess token: %w", err))
	}

	if env.Version != exportVersion {
		return ContextHandle{}, makeStatus(errDefectiveToken, fmt.Errorf("gssapi: unsupported interprocess token version %d", env.Version))
	}

	id, err := uuid.FromBytes(env.ID)
	if err != nil {
		return ContextHandle{}, makeStatus(errDefectiveToken, err)
	}

	if !env.Indefinite && !e.now().Before(env.Expiry) {
		return ContextHandle{}, makeStatus(errContextExpired, fmt.Errorf("gssapi: interprocess token expired at %s", env.Expiry))
	}

	m, err := e.registry.Lookup(env.Mech)
	if err != nil {
		return ContextHandle{}, err
	}

	for _, exported := range [][]byte{env.SrcName, env.TargName} {
		if exported == nil {
			continue
		}
		nameMech, _, err := parseExportedName(exported)
		if err != nil || !nameMech.Equal(env.Mech) {
			return ContextHandle{}, makeStatus(errDefectiveToken, errors.New("gssapi: interprocess token names do not match its mechanism"))
		}
	}

	mc, err := m.ImportContext(env.State)
	if err != nil {
		return ContextHandle{}, withMech(m.Oid(), err)
	}

	c := e.newContext(id, m, env.Initiator)
	c.mc = mc
	c.state = stateEstablished
	c.flags = ContextFlag(env.Flags)

	if env.Indefinite {
		c.lifetime = IndefiniteLifetime()
	} else {
		c.lifetime = MakeGssLifetime(env.Expiry)
	}
	c.requested = c.lifetime

	h := ContextHandle{e.contexts.insert(c)}
	c.logger.Info("security context imported", "flags", c.flags.String())

	return h, nil
}
