// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jcmturner/gofork/encoding/asn1"
)

// Oid represents an Object Identifier as used throughout GSSAPI. Elements of the byte slice
// represent the DER encoding of the object identifier, excluding the ASN.1 header (tag value
// 0x06 and length).
//
// A nil Oid stands for GSS_C_NO_OID: the default name syntax when used as a name type, or the
// default mechanism when used as a mechanism selector.
type Oid []byte

// Equal reports whether o and other hold the same encoded value.
func (o Oid) Equal(other Oid) bool {
	return bytes.Equal(o, other)
}

// DER returns the full DER encoding of the OID, including the tag and length octets.
func (o Oid) DER() []byte {
	b, _ := asn1.Marshal(asn1.RawValue{Tag: asn1.TagOID, Class: asn1.ClassUniversal, Bytes: o})
	return b
}

// ObjectIdentifier decodes the OID into its arcs.
func (o Oid) ObjectIdentifier() (asn1.ObjectIdentifier, error) {
	var oi asn1.ObjectIdentifier
	rest, err := asn1.Unmarshal(o.DER(), &oi)
	if err != nil {
		return nil, fmt.Errorf("gssapi: decoding OID: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("gssapi: trailing data after OID")
	}

	return oi, nil
}

// String returns the dotted-decimal form of the OID, or "<no oid>" for GSS_C_NO_OID.
func (o Oid) String() string {
	if len(o) == 0 {
		return "<no oid>"
	}

	oi, err := o.ObjectIdentifier()
	if err != nil {
		return fmt.Sprintf("<bad oid %x>", []byte(o))
	}

	return oi.String()
}

// OidFromASN1 converts arcs into the DER value bytes used by the Oid type.
func OidFromASN1(oi asn1.ObjectIdentifier) (Oid, error) {
	der, err := asn1.Marshal(oi)
	if err != nil {
		return nil, fmt.Errorf("gssapi: encoding OID %s: %w", oi, err)
	}

	var raw asn1.RawValue
	if _, err = asn1.Unmarshal(der, &raw); err != nil {
		return nil, fmt.Errorf("gssapi: encoding OID %s: %w", oi, err)
	}

	return Oid(raw.Bytes), nil
}

// OidFromString parses a dotted-decimal OID such as "1.2.840.113554.1.2.2".
func OidFromString(s string) (Oid, error) {
	elms := strings.Split(strings.TrimSpace(s), ".")
	if len(elms) < 2 {
		return nil, fmt.Errorf("gssapi: %q is not a dotted OID", s)
	}

	oi := make(asn1.ObjectIdentifier, len(elms))
	for i, elm := range elms {
		j, err := strconv.ParseUint(elm, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("gssapi: %q is not a dotted OID: %w", s, err)
		}
		oi[i] = int(j)
	}

	return OidFromASN1(oi)
}

// OidSet is an unordered collection of OIDs in which every member is unique.
//
// Sets returned for the well-known name types are interned and read-only: adding to them fails
// and releasing them does nothing.
type OidSet struct {
	members  []Oid
	readOnly bool
}

// NewOidSet creates an empty set (GSS_Create_empty_OID_set, RFC 2743 § 2.4.10).
func NewOidSet() *OidSet {
	return &OidSet{}
}

func newInternedOidSet(oids ...Oid) *OidSet {
	return &OidSet{members: oids, readOnly: true}
}

// Add inserts a copy of o (GSS_Add_OID_set_member, RFC 2743 § 2.4.11).  Adding an OID that is
// already present fails with ErrDuplicateElement.
func (s *OidSet) Add(o Oid) error {
	if s.readOnly {
		return makeStatus(errUnavailable, fmt.Errorf("gssapi: OID set is read-only"))
	}
	if s.Contains(o) {
		return makeStatus(errDuplicateElement, nil)
	}

	s.members = append(s.members, bytes.Clone(o))
	return nil
}

// Contains reports whether o is a member of the set (GSS_Test_OID_set_member,
// RFC 2743 § 2.4.12).  A nil set has no members.
func (s *OidSet) Contains(o Oid) bool {
	if s == nil {
		return false
	}

	for _, m := range s.members {
		if m.Equal(o) {
			return true
		}
	}

	return false
}

// Len returns the number of members in the set.
func (s *OidSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Oids returns the members of the set.  The caller may modify the returned slice but not the
// OIDs it refers to.
func (s *OidSet) Oids() []Oid {
	if s == nil {
		return nil
	}
	return append([]Oid(nil), s.members...)
}

// Release empties the set (GSS_Release_OID_set, RFC 2743 § 2.4.9).  Releasing an interned set is
// a no-op.
func (s *OidSet) Release() {
	if s == nil || s.readOnly {
		return
	}
	s.members = nil
}

func (s *OidSet) String() string {
	strs := make([]string, 0, s.Len())
	for _, m := range s.Oids() {
		strs = append(strs, m.String())
	}

	return "{" + strings.Join(strs, ", ") + "}"
}
