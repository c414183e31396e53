// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"bytes"
	"errors"
	"fmt"
)

// nameEntry is the engine's internal name object.  An internal name is either a
// mechanism-independent name (mech is nil), holding the caller's string and name type, or a
// mechanism name (MN), holding the canonical form produced by exactly one mechanism.
type nameEntry struct {
	nameType  Oid
	value     []byte
	mech      Oid
	anonymous bool
}

func (n *nameEntry) isMN() bool {
	return len(n.mech) > 0
}

func (n *nameEntry) clone() *nameEntry {
	return &nameEntry{
		nameType:  n.nameType,
		value:     bytes.Clone(n.value),
		mech:      n.mech,
		anonymous: n.anonymous,
	}
}

// NameInfo describes an internal name (gss_inquire_name, RFC 6680 § 7.4).
type NameInfo struct {
	IsMN     bool // The name is a mechanism name
	Mech     Oid  // Mechanism of an MN, nil otherwise
	NameType Oid  // Name type, nil for the default name syntax
}

func (e *Engine) name(h NameHandle) (*nameEntry, error) {
	n, ok := e.names.get(h.handle)
	if !ok {
		return nil, makeStatus(errBadName, fmt.Errorf("gssapi: name handle %s is not valid", h))
	}

	return n, nil
}

func (e *Engine) insertName(n *nameEntry) NameHandle {
	return NameHandle{e.names.insert(n)}
}

// newMN stores a canonical name produced by m.
func (e *Engine) newMN(m Mechanism, value []byte) (*nameEntry, error) {
	_, nt, err := m.DisplayName(value)
	if err != nil {
		return nil, withMech(m.Oid(), err)
	}

	nt = normalizeNameType(nt)
	return &nameEntry{
		nameType:  nt,
		value:     bytes.Clone(value),
		mech:      m.Oid(),
		anonymous: isAnonymousType(nt),
	}, nil
}

// ImportName implements GSS_Import_name (RFC 2743 § 2.4.5).  A nil nameType selects the default
// name syntax.  Exported names (GSS_NT_EXPORT_NAME) become mechanism names; every other name stays
// mechanism-independent until it is canonicalized.
func (e *Engine) ImportName(value []byte, nameType Oid) (NameHandle, error) {
	nameType = normalizeNameType(nameType)

	if nameType.Equal(GSS_NT_EXPORT_NAME.Oid()) {
		mechOid, mn, err := parseExportedName(value)
		if err != nil {
			return NameHandle{}, makeStatus(errDefectiveToken, err)
		}

		m, err := e.registry.Lookup(mechOid)
		if err != nil {
			return NameHandle{}, err
		}

		n, err := e.newMN(m, mn)
		if err != nil {
			return NameHandle{}, err
		}

		return e.insertName(n), nil
	}

	anonymous := isAnonymousType(nameType)
	if len(value) == 0 && !anonymous {
		return NameHandle{}, makeStatus(errBadName, errors.New("gssapi: empty name"))
	}

	if len(nameType) > 0 && !genericNameTypes.Contains(nameType) && e.registry.InquireMechsForNameType(nameType).Len() == 0 {
		return NameHandle{}, makeStatus(errBadNameType, fmt.Errorf("gssapi: no mechanism supports name type %s", nameType))
	}

	return e.insertName(&nameEntry{
		nameType:  nameType,
		value:     bytes.Clone(value),
		anonymous: anonymous,
	}), nil
}

// DisplayName implements GSS_Display_name (RFC 2743 § 2.4.4), returning the printable form of a
// name and its name type.
func (e *Engine) DisplayName(h NameHandle) (string, Oid, error) {
	n, err := e.name(h)
	if err != nil {
		return "", nil, err
	}

	if !n.isMN() {
		return string(n.value), n.nameType, nil
	}

	m, err := e.registry.Lookup(n.mech)
	if err != nil {
		return "", nil, err
	}

	s, nt, err := m.DisplayName(n.value)
	return s, normalizeNameType(nt), withMech(n.mech, err)
}

// InquireName reports whether a name is an MN and, if so, for which mechanism.
func (e *Engine) InquireName(h NameHandle) (NameInfo, error) {
	n, err := e.name(h)
	if err != nil {
		return NameInfo{}, err
	}

	return NameInfo{IsMN: n.isMN(), Mech: n.mech, NameType: n.nameType}, nil
}

// canonicalFor returns the canonical form of n under m without creating a handle.
func (e *Engine) canonicalFor(n *nameEntry, m Mechanism) (*nameEntry, error) {
	if n.isMN() {
		if n.mech.Equal(m.Oid()) {
			return n, nil
		}
		return nil, makeStatus(errBadMech, fmt.Errorf("gssapi: name is already bound to mechanism %s", oidName(n.mech)))
	}

	if !supportsNameType(m, n.nameType) {
		return nil, makeStatus(errBadNameType, fmt.Errorf("gssapi: mechanism %s does not support name type %s", m, n.nameType))
	}

	mn, err := m.CanonicalizeName(n.nameType, n.value)
	if err != nil {
		return nil, withMech(m.Oid(), err)
	}

	return e.newMN(m, mn)
}

// CanonicalizeName implements GSS_Canonicalize_name (RFC 2743 § 2.4.14).  The input name is left
// untouched; the result is a new MN for mech.
func (e *Engine) CanonicalizeName(h NameHandle, mech Oid) (NameHandle, error) {
	n, err := e.name(h)
	if err != nil {
		return NameHandle{}, err
	}

	m, err := e.registry.Lookup(mech)
	if err != nil {
		return NameHandle{}, err
	}

	mn, err := e.canonicalFor(n, m)
	if err != nil {
		return NameHandle{}, err
	}

	if mn == n {
		mn = n.clone()
	}

	return e.insertName(mn), nil
}

// ExportName implements GSS_Export_name (RFC 2743 § 2.4.15).  Only mechanism names can be
// exported.
func (e *Engine) ExportName(h NameHandle) (Buffer, error) {
	n, err := e.name(h)
	if err != nil {
		return nil, err
	}

	if !n.isMN() {
		return nil, makeStatus(errNameNotMn, nil)
	}

	return Buffer(marshalExportedName(n.mech, n.value)), nil
}

// CompareName implements GSS_Compare_name (RFC 2743 § 2.4.3).  Anonymous names never compare
// equal, not even to themselves.
func (e *Engine) CompareName(a, b NameHandle) (bool, error) {
	na, err := e.name(a)
	if err != nil {
		return false, err
	}
	nb, err := e.name(b)
	if err != nil {
		return false, err
	}

	if na.anonymous || nb.anonymous {
		return false, nil
	}

	switch {
	case na.isMN() && nb.isMN():
		if !na.mech.Equal(nb.mech) {
			return false, makeStatus(errBadNameType, errors.New("gssapi: names belong to different mechanisms"))
		}
		return bytes.Equal(na.value, nb.value), nil

	case na.isMN() || nb.isMN():
		mnEntry, other := na, nb
		if nb.isMN() {
			mnEntry, other = nb, na
		}

		m, err := e.registry.Lookup(mnEntry.mech)
		if err != nil {
			return false, err
		}

		cn, err := e.canonicalFor(other, m)
		if err != nil {
			return false, err
		}

		return !cn.anonymous && bytes.Equal(mnEntry.value, cn.value), nil

	case na.nameType.Equal(nb.nameType):
		return bytes.Equal(na.value, nb.value), nil
	}

	// Two mechanism-independent names of different types: compare the canonical forms under
	// a mechanism that understands both.
	for _, m := range e.registry.Mechanisms() {
		if !supportsNameType(m, na.nameType) || !supportsNameType(m, nb.nameType) {
			continue
		}

		ca, err := e.canonicalFor(na, m)
		if err != nil {
			continue
		}
		cb, err := e.canonicalFor(nb, m)
		if err != nil {
			continue
		}

		return !ca.anonymous && !cb.anonymous && bytes.Equal(ca.value, cb.value), nil
	}

	return false, makeStatus(errBadNameType, errors.New("gssapi: names of different types cannot be compared"))
}

// DuplicateName implements GSS_Duplicate_name (RFC 2743 § 2.4.16).
func (e *Engine) DuplicateName(h NameHandle) (NameHandle, error) {
	n, err := e.name(h)
	if err != nil {
		return NameHandle{}, err
	}

	return e.insertName(n.clone()), nil
}

// ReleaseName implements GSS_Release_name (RFC 2743 § 2.4.6).  The handle must not be used
// afterwards.
func (e *Engine) ReleaseName(h NameHandle) error {
	n, ok := e.names.remove(h.handle)
	if !ok {
		return makeStatus(errBadName, fmt.Errorf("gssapi: name handle %s is not valid", h))
	}

	clear(n.value)
	return nil
}

// InquireMechsForName implements GSS_Inquire_mechs_for_name (RFC 2743 § 2.4.13).
func (e *Engine) InquireMechsForName(h NameHandle) (*OidSet, error) {
	n, err := e.name(h)
	if err != nil {
		return nil, err
	}

	if n.isMN() {
		set := NewOidSet()
		_ = set.Add(n.mech)
		return set, nil
	}

	return e.registry.InquireMechsForNameType(n.nameType), nil
}
