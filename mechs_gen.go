// SPDX-License-Identifier: Apache-2.0

package gssapi

// GENERATED CODE: DO NOT EDIT

var mechs = []struct {
	id        gssMechImpl
	name      string
	desc      string
	oidString string
	oid       Oid
	altOids   []Oid
}{

	// 1.2.840.113554.1.2.2
	{GSS_MECH_KRB5,
		"GSS_MECH_KRB5",
		"Kerberos V5",
		"1.2.840.113554.1.2.2",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x02},
		[]Oid{
			{0x2b, 0x06, 0x01, 0x05, 0x02}, // 1.3.6.1.5.2

			{0x2a, 0x86, 0x48, 0x82, 0xf7, 0x12, 0x01, 0x02, 0x02}, // 1.2.840.48018.1.2.2
		}},

	// 1.3.6.1.5.2.5
	{GSS_MECH_IAKERB,
		"GSS_MECH_IAKERB",
		"IAKERB",
		"1.3.6.1.5.2.5",
		Oid{0x2b, 0x06, 0x01, 0x05, 0x02, 0x05},
		[]Oid{}},

	// 1.3.6.1.5.5.2
	{GSS_MECH_SPNEGO,
		"GSS_MECH_SPNEGO",
		"SPNEGO",
		"1.3.6.1.5.5.2",
		Oid{0x2b, 0x06, 0x01, 0x05, 0x05, 0x02},
		[]Oid{}},
}
