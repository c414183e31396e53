// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"fmt"
	"sync"
)

// Registry maps mechanism OIDs to their implementations.  Registration order is significant:
// the first mechanism registered is the default mechanism.
//
// Mechanisms normally register themselves with the package default registry by calling
// RegisterMech from an init() function.  After initialization the registry is only read.
type Registry struct {
	sync.RWMutex
	mechs []Mechanism
}

var defaultRegistry = &Registry{}

// DefaultRegistry returns the process-wide registry used by engines created without WithRegistry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry returns a registry holding mechs, in preference order.
func NewRegistry(mechs ...Mechanism) (*Registry, error) {
	r := &Registry{}
	for _, m := range mechs {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// RegisterMech adds a mechanism to the default registry.  Mechanism packages call this from
// their init() function.
func RegisterMech(m Mechanism) error {
	return defaultRegistry.Register(m)
}

// MustRegisterMech wraps RegisterMech in a panic.
func MustRegisterMech(m Mechanism) {
	if err := RegisterMech(m); err != nil {
		panic(err)
	}
}

// Register adds a mechanism.  Registering a second mechanism with the same OID fails with
// ErrDuplicateElement.
func (r *Registry) Register(m Mechanism) error {
	r.Lock()
	defer r.Unlock()

	for _, existing := range r.mechs {
		if existing.Oid().Equal(m.Oid()) {
			return makeStatus(errDuplicateElement, fmt.Errorf("gssapi: mechanism %s is already registered", m.Oid()))
		}
	}

	r.mechs = append(r.mechs, m)
	return nil
}

// Lookup returns the mechanism registered for oid.  A nil oid selects the default mechanism.
// Well-known alternate OIDs, such as the pre-RFC Kerberos OID, resolve to the registered
// mechanism.
func (r *Registry) Lookup(oid Oid) (Mechanism, error) {
	if len(oid) == 0 {
		return r.Default()
	}

	r.RLock()
	defer r.RUnlock()

	if m := r.find(oid); m != nil {
		return m, nil
	}

	if known, err := MechFromOid(oid); err == nil {
		if m := r.find(known.Oid()); m != nil {
			return m, nil
		}
	}

	return nil, makeStatus(errBadMech, fmt.Errorf("gssapi: mechanism %s is not available", oid))
}

func (r *Registry) find(oid Oid) Mechanism {
	for _, m := range r.mechs {
		if m.Oid().Equal(oid) {
			return m
		}
	}

	return nil
}

// Default returns the most preferred mechanism.
func (r *Registry) Default() (Mechanism, error) {
	r.RLock()
	defer r.RUnlock()

	if len(r.mechs) == 0 {
		return nil, makeStatus(errBadMech, fmt.Errorf("gssapi: no mechanisms are registered"))
	}

	return r.mechs[0], nil
}

// Mechanisms returns the registered mechanisms in preference order.
func (r *Registry) Mechanisms() []Mechanism {
	r.RLock()
	defer r.RUnlock()

	return append([]Mechanism(nil), r.mechs...)
}

// IndicateMechs returns the set of installed mechanisms (GSS_Indicate_mechs, RFC 2743 § 2.4.2).
func (r *Registry) IndicateMechs() *OidSet {
	set := NewOidSet()
	for _, m := range r.Mechanisms() {
		_ = set.Add(m.Oid())
	}

	return set
}

// InquireNamesForMech returns the name types supported by a mechanism
// (GSS_Inquire_names_for_mech, RFC 2743 § 2.4.12).
func (r *Registry) InquireNamesForMech(mech Oid) (*OidSet, error) {
	m, err := r.Lookup(mech)
	if err != nil {
		return nil, err
	}

	set := NewOidSet()
	for _, nt := range m.NameTypes() {
		_ = set.Add(normalizeNameType(nt))
	}

	return set, nil
}

// InquireMechsForNameType returns the mechanisms that can canonicalize names of nameType.  A nil
// name type is supported by every mechanism.
func (r *Registry) InquireMechsForNameType(nameType Oid) *OidSet {
	nameType = normalizeNameType(nameType)

	set := NewOidSet()
	for _, m := range r.Mechanisms() {
		if supportsNameType(m, nameType) {
			_ = set.Add(m.Oid())
		}
	}

	return set
}

func supportsNameType(m Mechanism, nameType Oid) bool {
	if len(nameType) == 0 {
		return true
	}

	for _, nt := range m.NameTypes() {
		if normalizeNameType(nt).Equal(nameType) {
			return true
		}
	}

	return false
}
