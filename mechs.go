// SPDX-License-Identifier: Apache-2.0

package gssapi

//go:generate  go run ./build-tools/gen-gss-oids -kind mechs -o mechs_gen.go

// GssMech describes a well-known GSSAPI mechanism.  GSSAPI mechanisms are identified by unique
// object identifiers (OIDs).
type GssMech interface {
	// Oid returns the object identifier corresponding to the mechanism.
	Oid() Oid
	// OidString returns a printable version of the object identifier associated with the mechanism.
	OidString() string
	// String returns a printable version of the mechanism name.
	String() string
}

// gssMechImpl implements GssMech for the known mechanisms GSS_MECH_KRB5, GSS_MECH_IAKERB and
// GSS_MECH_SPNEGO.
type gssMechImpl int

// Well known GSSAPI mechanisms.
const (
	// Official Kerberos Mechanism (IETF)
	GSS_MECH_KRB5 gssMechImpl = iota
	GSS_MECH_IAKERB
	GSS_MECH_SPNEGO
	_GSS_MECH_LAST
)

func (mech gssMechImpl) Oid() Oid {
	if mech < 0 || mech >= _GSS_MECH_LAST {
		panic(ErrBadMech)
	}

	return mechs[mech].oid
}

func (mech gssMechImpl) OidString() string {
	if mech < 0 || mech >= _GSS_MECH_LAST {
		panic(ErrBadMech)
	}

	return mechs[mech].oidString
}

func (mech gssMechImpl) String() string {
	if mech < 0 || mech >= _GSS_MECH_LAST {
		panic(ErrBadMech)
	}

	return mechs[mech].name
}

// MechFromOid returns the well-known mechanism for an OID, including the alternate OIDs some
// implementations use for Kerberos.
//
// Returns ErrBadMech if the OID is not recognized.
func MechFromOid(oid Oid) (GssMech, error) {
	for i, mech := range mechs {
		if mech.oid.Equal(oid) {
			return gssMechImpl(i), nil
		}

		for _, alt := range mech.altOids {
			if alt.Equal(oid) {
				return gssMechImpl(i), nil
			}
		}
	}

	return nil, ErrBadMech
}

// oidName returns a human friendly label for an OID used in log records.
func oidName(oid Oid) string {
	if m, err := MechFromOid(oid); err == nil {
		return m.String()
	}
	if nt, err := NameTypeFromOid(oid); err == nil {
		return nt.String()
	}

	return oid.String()
}
