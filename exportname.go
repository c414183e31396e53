// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/jcmturner/gofork/encoding/asn1"
)

// Exported name object, RFC 2743 § 3.2:
//
//	04 01 | mech OID length (2 bytes, big endian) | mech OID DER | name length (4 bytes, big endian) | name
var exportedNameTokID = [2]byte{0x04, 0x01}

var errBadExportedName = errors.New("gssapi: malformed exported name token")

func marshalExportedName(mech Oid, name []byte) []byte {
	der := mech.DER()

	b := make([]byte, 0, 2+2+len(der)+4+len(name))
	b = append(b, exportedNameTokID[:]...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(der)))
	b = append(b, der...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(name)))
	b = append(b, name...)

	return b
}

func parseExportedName(b []byte) (mech Oid, name []byte, err error) {
	if len(b) < 4 || !bytes.Equal(b[0:2], exportedNameTokID[:]) {
		return nil, nil, errBadExportedName
	}

	oidLen := int(binary.BigEndian.Uint16(b[2:4]))
	b = b[4:]
	if len(b) < oidLen+4 {
		return nil, nil, errBadExportedName
	}

	var raw asn1.RawValue
	rest, err := asn1.Unmarshal(b[:oidLen], &raw)
	if err != nil || len(rest) != 0 || raw.Class != asn1.ClassUniversal || raw.Tag != asn1.TagOID || len(raw.Bytes) == 0 {
		return nil, nil, errBadExportedName
	}

	nameLen := binary.BigEndian.Uint32(b[oidLen : oidLen+4])
	b = b[oidLen+4:]
	if uint64(len(b)) != uint64(nameLen) {
		return nil, nil, errBadExportedName
	}

	return Oid(bytes.Clone(raw.Bytes)), bytes.Clone(b), nil
}

// parseInitialToken splits an RFC 2743 § 3.1 initial context token into the mechanism OID and
// the inner mechanism token:
//
//	60 len | 06 len OID | inner token
func parseInitialToken(b []byte) (mech Oid, inner []byte, err error) {
	if len(b) < 2 || b[0] != 0x60 {
		return nil, nil, errors.New("gssapi: token does not use the generic initial token framing")
	}

	var oi asn1.ObjectIdentifier
	inner, err = asn1.UnmarshalWithParams(b, &oi, "application,explicit,tag:0")
	if err != nil {
		return nil, nil, err
	}

	mech, err = OidFromASN1(oi)
	return mech, inner, err
}
