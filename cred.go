// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"fmt"
)

// credElement is one mechanism's share of a credential.  The engine tracks the granted lifetimes
// itself so that a caller's time request applies even when a mechanism grants longer.
type credElement struct {
	mech         Mechanism
	usage        CredUsage
	cred         MechCred
	initExpiry   GssLifetime
	acceptExpiry GssLifetime
	name         []byte
}

// credEntry is the engine's credential object: a set of elements with at most one initiator and
// one acceptor element per mechanism.
type credEntry struct {
	elements []*credElement
}

// CredInfo describes a credential (GSS_Inquire_cred, RFC 2743 § 2.1.3).
type CredInfo struct {
	Name              NameHandle // MN of the credential's principal; release with ReleaseName
	Lifetime          uint32     // Seconds remaining for the usage reported in Usage
	InitiatorLifetime uint32
	AcceptorLifetime  uint32
	Usage             CredUsage
	Mechs             *OidSet
}

func (el *credElement) occupies(usage CredUsage) bool {
	return (el.usage.initiate() && usage.initiate()) || (el.usage.accept() && usage.accept())
}

func (e *Engine) cred(h CredHandle) (*credEntry, error) {
	c, ok := e.creds.get(h.handle)
	if !ok {
		return nil, makeStatus(errNoCred, fmt.Errorf("gssapi: credential handle %s is not valid", h))
	}

	return c, nil
}

// acquireElement obtains one credential element from m for the (optional) desired name.
func (e *Engine) acquireElement(m Mechanism, desired *nameEntry, usage CredUsage, initTime, acceptTime uint32, store CredStore) (*credElement, error) {
	var name []byte
	if desired != nil {
		mn, err := e.canonicalFor(desired, m)
		if err != nil {
			return nil, err
		}
		name = mn.value
	}

	now := e.now()
	req := CredRequest{
		Name:              name,
		Usage:             usage,
		InitiatorLifetime: initTime,
		AcceptorLifetime:  acceptTime,
		Store:             store,
		Now:               now,
	}

	mc, err := m.AcquireCred(req)
	if err != nil {
		return nil, withMech(m.Oid(), err)
	}

	el := &credElement{
		mech:  m,
		usage: usage,
		cred:  mc,
		name:  mc.Name(),
	}

	if usage.initiate() {
		el.initExpiry = earliest(mc.InitiatorLifetime(), requestedLifetime(initTime, now))
	}
	if usage.accept() {
		el.acceptExpiry = earliest(mc.AcceptorLifetime(), requestedLifetime(acceptTime, now))
	}

	return el, nil
}

// AcquireCred implements GSS_Acquire_cred (RFC 2743 § 2.1.1) and, with credential store options,
// gss_acquire_cred_from.  A zero desired name selects each mechanism's default principal and a
// nil or empty mechs set selects every registered mechanism.  The returned lifetime is that of
// the initiator elements for usages that include initiation, otherwise of the acceptor
// elements.
//
// The credential is returned if at least one mechanism could supply an element; when none could,
// the error is ErrNoCred carrying each mechanism's reason.
func (e *Engine) AcquireCred(desired NameHandle, timeReq uint32, mechs *OidSet, usage CredUsage, opts ...CredStoreOption) (CredHandle, *OidSet, uint32, error) {
	if usage < CredUsageInitiateAndAccept || usage > CredUsageAcceptOnly {
		return CredHandle{}, nil, 0, FatalStatus{CallingErrorCode: CallBadStructure}
	}

	var name *nameEntry
	if !desired.IsZero() {
		n, err := e.name(desired)
		if err != nil {
			return CredHandle{}, nil, 0, err
		}
		name = n
	}

	store, err := newCredStore(opts)
	if err != nil {
		return CredHandle{}, nil, 0, err
	}

	var candidates []Mechanism
	var mechErrs []error
	if mechs.Len() == 0 {
		candidates = e.registry.Mechanisms()
	} else {
		for _, oid := range mechs.Oids() {
			m, err := e.registry.Lookup(oid)
			if err != nil {
				mechErrs = append(mechErrs, err)
				continue
			}
			candidates = append(candidates, m)
		}
	}

	entry := &credEntry{}
	for _, m := range candidates {
		el, err := e.acquireElement(m, name, usage, timeReq, timeReq, store)
		if err != nil {
			e.logger.Debug("credential element unavailable", "mech", m.String(), "usage", usage.String(), "error", err)
			mechErrs = append(mechErrs, err)
			continue
		}
		entry.elements = append(entry.elements, el)
	}

	if len(entry.elements) == 0 {
		s := makeStatus(errNoCred, nil)
		s.MechErrors = mechErrs
		if len(mechErrs) == 1 {
			_, s.MinorStatus = StatusOf(mechErrs[0])
		}
		return CredHandle{}, nil, 0, s
	}

	h := CredHandle{e.creds.insert(entry)}
	e.logger.Debug("acquired credential", "handle", h.String(), "usage", usage.String(), "elements", len(entry.elements))

	info := e.credInfo(entry, usage)
	return h, info.Mechs, info.Lifetime, nil
}

// AddCred implements GSS_Add_cred (RFC 2743 § 2.1.4).  With a zero input handle a new credential
// is created; otherwise the element is added to the input credential in place and the same
// handle is returned.  Adding an element that overlaps the usage of an existing element for the
// same mechanism fails with ErrDuplicateElement.
func (e *Engine) AddCred(input CredHandle, desired NameHandle, mech Oid, usage CredUsage, initTime, acceptTime uint32, opts ...CredStoreOption) (CredHandle, error) {
	if usage < CredUsageInitiateAndAccept || usage > CredUsageAcceptOnly {
		return CredHandle{}, FatalStatus{CallingErrorCode: CallBadStructure}
	}

	m, err := e.registry.Lookup(mech)
	if err != nil {
		return CredHandle{}, err
	}

	var entry *credEntry
	if !input.IsZero() {
		if entry, err = e.cred(input); err != nil {
			return CredHandle{}, err
		}

		for _, el := range entry.elements {
			if el.mech.Oid().Equal(m.Oid()) && el.occupies(usage) {
				return CredHandle{}, makeStatus(errDuplicateElement, fmt.Errorf("gssapi: credential already has a %s element for %s", el.usage, m))
			}
		}
	}

	var name *nameEntry
	if !desired.IsZero() {
		if name, err = e.name(desired); err != nil {
			return CredHandle{}, err
		}
	}

	store, err := newCredStore(opts)
	if err != nil {
		return CredHandle{}, err
	}

	el, err := e.acquireElement(m, name, usage, initTime, acceptTime, store)
	if err != nil {
		return CredHandle{}, err
	}

	if entry == nil {
		return CredHandle{e.creds.insert(&credEntry{elements: []*credElement{el}})}, nil
	}

	entry.elements = append(entry.elements, el)
	return input, nil
}

func (e *Engine) credInfo(c *credEntry, usage CredUsage) CredInfo {
	now := e.now()
	mechs := NewOidSet()

	var initLife, acceptLife *GssLifetime
	for _, el := range c.elements {
		_ = mechs.Add(el.mech.Oid())

		if el.usage.initiate() && usage.initiate() {
			l := el.initExpiry
			if initLife != nil {
				l = earliest(*initLife, l)
			}
			initLife = &l
		}
		if el.usage.accept() && usage.accept() {
			l := el.acceptExpiry
			if acceptLife != nil {
				l = earliest(*acceptLife, l)
			}
			acceptLife = &l
		}
	}

	info := CredInfo{Mechs: mechs}
	if initLife != nil {
		info.InitiatorLifetime = initLife.Seconds(now)
	}
	if acceptLife != nil {
		info.AcceptorLifetime = acceptLife.Seconds(now)
	}

	switch {
	case initLife != nil && acceptLife != nil:
		info.Usage = CredUsageInitiateAndAccept
	case acceptLife != nil:
		info.Usage = CredUsageAcceptOnly
	default:
		info.Usage = CredUsageInitiateOnly
	}

	if initLife != nil {
		info.Lifetime = info.InitiatorLifetime
	} else {
		info.Lifetime = info.AcceptorLifetime
	}

	return info
}

// InquireCred implements GSS_Inquire_cred (RFC 2743 § 2.1.3).
func (e *Engine) InquireCred(h CredHandle) (*CredInfo, error) {
	c, err := e.cred(h)
	if err != nil {
		return nil, err
	}

	info := e.credInfo(c, CredUsageInitiateAndAccept)

	el := c.elements[0]
	if n, err := e.newMN(el.mech, el.name); err == nil {
		info.Name = e.insertName(n)
	}

	return &info, nil
}

// InquireCredByMech implements GSS_Inquire_cred_by_mech (RFC 2743 § 2.1.5).
func (e *Engine) InquireCredByMech(h CredHandle, mech Oid) (*CredInfo, error) {
	c, err := e.cred(h)
	if err != nil {
		return nil, err
	}

	m, err := e.registry.Lookup(mech)
	if err != nil {
		return nil, err
	}

	sub := &credEntry{}
	for _, el := range c.elements {
		if el.mech.Oid().Equal(m.Oid()) {
			sub.elements = append(sub.elements, el)
		}
	}

	if len(sub.elements) == 0 {
		return nil, makeStatus(errNoCred, fmt.Errorf("gssapi: credential has no %s element", m))
	}

	info := e.credInfo(sub, CredUsageInitiateAndAccept)
	if n, err := e.newMN(m, sub.elements[0].name); err == nil {
		info.Name = e.insertName(n)
	}

	return &info, nil
}

// ReleaseCred implements GSS_Release_cred (RFC 2743 § 2.1.2).
func (e *Engine) ReleaseCred(h CredHandle) error {
	c, ok := e.creds.remove(h.handle)
	if !ok {
		return makeStatus(errNoCred, fmt.Errorf("gssapi: credential handle %s is not valid", h))
	}

	var errs []error
	for _, el := range c.elements {
		if err := el.cred.Release(); err != nil {
			errs = append(errs, withMech(el.mech.Oid(), err))
		}
	}

	return errors.Join(errs...)
}

// elementFor selects the element of credential h that m can use for the given role.  A zero
// handle acquires the mechanism's default credential, which the caller then owns.
func (e *Engine) elementFor(h CredHandle, m Mechanism, usage CredUsage) (el *credElement, owned bool, err error) {
	if h.IsZero() {
		el, err := e.acquireElement(m, nil, usage, 0, 0, nil)
		if err != nil {
			return nil, false, err
		}
		return el, true, nil
	}

	c, err := e.cred(h)
	if err != nil {
		return nil, false, err
	}

	now := e.now()
	for _, el := range c.elements {
		if !el.mech.Oid().Equal(m.Oid()) || !el.occupies(usage) {
			continue
		}

		expiry := el.acceptExpiry
		if usage == CredUsageInitiateOnly {
			expiry = el.initExpiry
		}
		if expiry.Expired(now) {
			return nil, false, makeStatus(errCredentialsExpired, nil)
		}

		return el, false, nil
	}

	return nil, false, makeStatus(errNoCred, fmt.Errorf("gssapi: credential has no %s element for %s", usage, m))
}

// adoptDelegated stores a credential delegated to an acceptor.
func (e *Engine) adoptDelegated(m Mechanism, mc MechCred) CredHandle {
	el := &credElement{
		mech:         m,
		usage:        CredUsageInitiateOnly,
		cred:         mc,
		name:         mc.Name(),
		initExpiry:   mc.InitiatorLifetime(),
		acceptExpiry: GssLifetime{Status: GssLifetimeExpired},
	}

	return CredHandle{e.creds.insert(&credEntry{elements: []*credElement{el}})}
}
