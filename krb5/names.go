// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gsscore"
)

const (
	anonymousName  = "WELLKNOWN/ANONYMOUS"
	anonymousRealm = "WELLKNOWN:ANONYMOUS"
)

// principal is a Kerberos principal name with its realm.  The canonical (mechanism name) form
// is "comp/comp@REALM".
type principal struct {
	name  types.PrincipalName
	realm string
}

func (p principal) String() string {
	return p.name.PrincipalNameString() + "@" + p.realm
}

func (p principal) equal(o principal) bool {
	return p.realm == o.realm && p.name.Equal(o.name)
}

func (p principal) anonymous() bool {
	return p.realm == anonymousRealm && p.name.PrincipalNameString() == anonymousName
}

func newPrincipal(pn types.PrincipalName, realm string) principal {
	return principal{name: pn, realm: realm}
}

// parsePrincipal splits a principal string.  The realm is optional; components must not be
// empty.
func parsePrincipal(s string) (principal, error) {
	if s == "" {
		return principal{}, errors.New("krb5: empty principal name")
	}

	pn, realm := types.ParseSPNString(s)
	for _, c := range pn.NameString {
		if c == "" {
			return principal{}, fmt.Errorf("krb5: principal name %q has an empty component", s)
		}
	}
	if len(pn.NameString) > 1 {
		pn.NameType = nametype.KRB_NT_SRV_INST
	}

	return principal{name: pn, realm: realm}, nil
}

// parseMN parses the canonical form, which always carries a realm.
func parseMN(mn []byte) (principal, error) {
	p, err := parsePrincipal(string(mn))
	if err != nil {
		return p, gssapi.MechStatus(gssapi.ErrBadName, minorBadName, err)
	}
	if p.realm == "" {
		return p, gssapi.MechStatus(gssapi.ErrBadName, minorBadName, fmt.Errorf("krb5: %q is not a mechanism name", mn))
	}

	return p, nil
}

// CanonicalizeName converts a name to the form "comp/comp@REALM".  Names without a realm get the
// default realm, and host-based service names get the realm of their host.
func (m *Mech) CanonicalizeName(nameType gssapi.Oid, value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, gssapi.MechStatus(gssapi.ErrBadName, minorBadName, errors.New("krb5: empty name"))
	}

	var p principal
	var err error

	switch {
	case nameType == nil,
		nameType.Equal(gssapi.GSS_NT_USER_NAME.Oid()),
		nameType.Equal(gssapi.GSS_KRB5_NT_PRINCIPAL_NAME.Oid()):
		p, err = parsePrincipal(string(value))

	case nameType.Equal(gssapi.GSS_NT_HOSTBASED_SERVICE.Oid()):
		p, err = m.hostBasedPrincipal(string(value))

	case nameType.Equal(gssapi.GSS_NT_MACHINE_UID_NAME.Oid()):
		if len(value) != 4 {
			return nil, gssapi.MechStatus(gssapi.ErrBadName, minorBadName, fmt.Errorf("krb5: machine UID name must be 4 bytes, got %d", len(value)))
		}
		p, err = localUserPrincipal(strconv.FormatUint(uint64(binary.NativeEndian.Uint32(value)), 10))

	case nameType.Equal(gssapi.GSS_NT_STRING_UID_NAME.Oid()):
		p, err = localUserPrincipal(string(value))

	case nameType.Equal(gssapi.GSS_NT_ANONYMOUS.Oid()):
		return []byte(anonymousName + "@" + anonymousRealm), nil

	default:
		return nil, gssapi.MechStatus(gssapi.ErrBadNameType, 0, fmt.Errorf("krb5: unsupported name type %s", nameType))
	}

	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrBadName, minorBadName, err)
	}

	if p.realm == "" {
		if p.realm = m.defaultRealm(); p.realm == "" {
			return nil, gssapi.MechStatus(gssapi.ErrBadName, minorNoRealm, fmt.Errorf("krb5: no realm for %s", p.name.PrincipalNameString()))
		}
	}

	return []byte(p.String()), nil
}

// hostBasedPrincipal maps "service[@host]" to service/host, with the host lowercased and
// defaulting to the local host name.
func (m *Mech) hostBasedPrincipal(s string) (principal, error) {
	service, host, _ := strings.Cut(s, "@")
	if service == "" {
		return principal{}, fmt.Errorf("krb5: host-based service name %q has no service", s)
	}

	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return principal{}, fmt.Errorf("krb5: looking up local host name: %w", err)
		}
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")

	return principal{
		name:  types.PrincipalName{NameType: nametype.KRB_NT_SRV_HST, NameString: []string{service, host}},
		realm: m.krb5Conf().ResolveRealm(host),
	}, nil
}

func localUserPrincipal(uid string) (principal, error) {
	u, err := user.LookupId(uid)
	if err != nil {
		return principal{}, fmt.Errorf("krb5: looking up local user: %w", err)
	}

	return parsePrincipal(u.Username)
}

// DisplayName returns the printable form of a canonical name.
func (m *Mech) DisplayName(mn []byte) (string, gssapi.Oid, error) {
	p, err := parseMN(mn)
	if err != nil {
		return "", nil, err
	}

	if p.anonymous() {
		return p.String(), gssapi.GSS_NT_ANONYMOUS.Oid(), nil
	}

	return p.String(), gssapi.GSS_KRB5_NT_PRINCIPAL_NAME.Oid(), nil
}
