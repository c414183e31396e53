// SPDX-License-Identifier: Apache-2.0

package gssapi

// GENERATED CODE: DO NOT EDIT

var nameTypes = []struct {
	id        gssNameTypeImpl
	name      string
	desc      string
	oidString string
	oid       Oid
	altOids   []Oid
}{

	// 1.2.840.113554.1.2.1.4
	{GSS_NT_HOSTBASED_SERVICE,
		"GSS_NT_HOSTBASED_SERVICE",
		"service@host",
		"1.2.840.113554.1.2.1.4",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x01, 0x04},
		[]Oid{
			{0x2b, 0x06, 0x01, 0x05, 0x06, 0x02}, // 1.3.6.1.5.6.2
		}},

	// 1.2.840.113554.1.2.1.1
	{GSS_NT_USER_NAME,
		"GSS_NT_USER_NAME",
		"named local user",
		"1.2.840.113554.1.2.1.1",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x01, 0x01},
		[]Oid{}},

	// 1.2.840.113554.1.2.1.2
	{GSS_NT_MACHINE_UID_NAME,
		"GSS_NT_MACHINE_UID_NAME",
		"numeric local user ID",
		"1.2.840.113554.1.2.1.2",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x01, 0x02},
		[]Oid{}},

	// 1.2.840.113554.1.2.1.3
	{GSS_NT_STRING_UID_NAME,
		"GSS_NT_STRING_UID_NAME",
		"local user ID as a digit string",
		"1.2.840.113554.1.2.1.3",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x01, 0x03},
		[]Oid{}},

	// 1.3.6.1.5.6.3
	{GSS_NT_ANONYMOUS,
		"GSS_NT_ANONYMOUS",
		"anonymous principal",
		"1.3.6.1.5.6.3",
		Oid{0x2b, 0x06, 0x01, 0x05, 0x06, 0x03},
		[]Oid{}},

	// 1.3.6.1.5.6.4
	{GSS_NT_EXPORT_NAME,
		"GSS_NT_EXPORT_NAME",
		"exported mechanism name",
		"1.3.6.1.5.6.4",
		Oid{0x2b, 0x06, 0x01, 0x05, 0x06, 0x04},
		[]Oid{}},

	// 1.2.840.113554.1.2.2.1
	{GSS_KRB5_NT_PRINCIPAL_NAME,
		"GSS_KRB5_NT_PRINCIPAL_NAME",
		"Kerberos principal name",
		"1.2.840.113554.1.2.2.1",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x02, 0x01},
		[]Oid{}},

	// 1.2.840.113554.1.2.2.6
	{GSS_KRB5_NT_ENTERPRISE_NAME,
		"GSS_KRB5_NT_ENTERPRISE_NAME",
		"Kerberos enterprise principal name",
		"1.2.840.113554.1.2.2.6",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x02, 0x06},
		[]Oid{}},
}
