// SPDX-License-Identifier: Apache-2.0

package gssapi

//go:generate  go run ./build-tools/gen-gss-oids -kind names -o names_gen.go

// GssNameType describes a GSSAPI Name Type (NT) as described in RFC 2743 § 4.
type GssNameType interface {
	// Oid returns the object identifier corresponding to the name type.
	Oid() Oid
	// OidString returns a printable version of the object identifier associated with the name type.
	OidString() string
	// String returns a printable version of the name type.
	String() string
}

// gssNameTypeImpl is an internal type that implements the GssNameType interface for the
// well-known name types.
type gssNameTypeImpl int

// NOTE: if the order here changes also change
// gen-gss-oids.go!

const (
	// Host-based name form (RFC 2743 § 4.1),      "service@host" or just "service"
	GSS_NT_HOSTBASED_SERVICE gssNameTypeImpl = iota

	// User name form (RFC 2743 § 4.2),            "username" : named local user
	GSS_NT_USER_NAME

	// Machine UID form (RFC 2743 § 4.3),           Numeric user ID in host byte order
	GSS_NT_MACHINE_UID_NAME

	// String UID form (RFC 2743 § 4.4),            Same as GSS_NT_MACHINE_UID_NAME but as a string of digits
	GSS_NT_STRING_UID_NAME

	// Anonymous name type (RFC 2743 § 4.5),        an anonymous principal
	GSS_NT_ANONYMOUS

	// Exported name type (RFC 2743 § 4.7),         Mech-independent exported name type from RFC 2743 § 3.2
	GSS_NT_EXPORT_NAME

	// Kerberos Principal Name (RFC 1964 § 2.1.1)           Kerberos principal name with optional @REALM
	GSS_KRB5_NT_PRINCIPAL_NAME

	// Kerberos Enterprise Principal Name (RFC 8606 § 5)    Kerberos principal alias
	GSS_KRB5_NT_ENTERPRISE_NAME

	_GSS_NAME_TYPE_LAST
)

func (nt gssNameTypeImpl) Oid() Oid {
	if nt < 0 || nt >= _GSS_NAME_TYPE_LAST {
		panic(ErrBadNameType)
	}

	return nameTypes[nt].oid
}

func (nt gssNameTypeImpl) OidString() string {
	if nt < 0 || nt >= _GSS_NAME_TYPE_LAST {
		panic(ErrBadNameType)
	}

	return nameTypes[nt].oidString
}

func (nt gssNameTypeImpl) String() string {
	if nt < 0 || nt >= _GSS_NAME_TYPE_LAST {
		panic(ErrBadNameType)
	}

	return nameTypes[nt].name
}

// NameTypeFromOid returns the well-known name type associated with an OID, matching the
// deprecated alternate OIDs as well.
//
// Returns ErrBadNameType if the OID is not a well-known name type.
func NameTypeFromOid(oid Oid) (GssNameType, error) {
	for i, nt := range nameTypes {
		if nt.oid.Equal(oid) {
			return gssNameTypeImpl(i), nil
		}

		for _, alt := range nt.altOids {
			if alt.Equal(oid) {
				return gssNameTypeImpl(i), nil
			}
		}
	}

	return nil, ErrBadNameType
}

// normalizeNameType maps deprecated synonyms onto their current OID.  Unknown and nil OIDs are
// returned unchanged.
func normalizeNameType(oid Oid) Oid {
	if len(oid) == 0 {
		return nil
	}

	nt, err := NameTypeFromOid(oid)
	if err != nil {
		return oid
	}

	return nt.Oid()
}

var genericNameTypes = newInternedOidSet(
	GSS_NT_HOSTBASED_SERVICE.Oid(),
	GSS_NT_USER_NAME.Oid(),
	GSS_NT_MACHINE_UID_NAME.Oid(),
	GSS_NT_STRING_UID_NAME.Oid(),
	GSS_NT_ANONYMOUS.Oid(),
	GSS_NT_EXPORT_NAME.Oid(),
)

// GenericNameTypes returns the interned, read-only set of the mechanism-independent name types
// defined by RFC 2743 § 4.
func GenericNameTypes() *OidSet {
	return genericNameTypes
}

func isAnonymousType(oid Oid) bool {
	return GSS_NT_ANONYMOUS.Oid().Equal(oid)
}
