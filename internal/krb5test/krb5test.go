// SPDX-License-Identifier: Apache-2.0

// Package krb5test provides a Kerberos mechanism that works without a KDC, for tests of code
// built on the engine.  Service tickets are minted locally with keys derived from fixed
// passwords, and the same keys serve as the acceptor keytab.
package krb5test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/krb5"
)

const (
	Realm  = "EXAMPLE.COM"
	Client = "alice"

	kvno      = 2
	etype     = etypeID.AES256_CTS_HMAC_SHA1_96
	ticketTTL = 10 * time.Hour
)

// KDC issues service tickets for the services it was created with.
type KDC struct {
	Keytab *keytab.Keytab
	Start  time.Time
}

// NewKDC returns a KDC knowing the given service principals, eg. "HTTP/www.example.com".
func NewKDC(t testing.TB, services ...string) *KDC {
	t.Helper()

	now := time.Now()
	kt := keytab.New()
	for _, svc := range services {
		if err := kt.AddEntry(svc, Realm, "secret:"+svc, now, kvno, etype); err != nil {
			t.Fatalf("krb5test: adding %s to keytab: %v", svc, err)
		}
	}

	return &KDC{Keytab: kt, Start: now.Add(-time.Minute)}
}

// Tickets returns a ticket source for the client principal Client@Realm.
func (k *KDC) Tickets() krb5.TicketSource {
	return &tickets{kdc: k}
}

// Mech returns a Kerberos mechanism that initiates as Client@Realm and accepts for every
// service of the KDC.
func (k *KDC) Mech(t testing.TB) *krb5.Mech {
	return krb5.New(krb5.Config{
		Krb5Conf:     filepath.Join(t.TempDir(), "krb5.conf"),
		DefaultRealm: Realm,
		Keytab:       k.Keytab,
		Tickets:      k.Tickets(),
	})
}

// Engine returns an engine whose only mechanism is k.Mech.
func (k *KDC) Engine(t testing.TB, opts ...gssapi.EngineOption) *gssapi.Engine {
	t.Helper()

	reg, err := gssapi.NewRegistry(k.Mech(t))
	if err != nil {
		t.Fatalf("krb5test: %v", err)
	}

	return gssapi.New(append([]gssapi.EngineOption{gssapi.WithRegistry(reg)}, opts...)...)
}

type tickets struct {
	kdc *KDC
}

func (s *tickets) Principal() (types.PrincipalName, string) {
	return types.NewPrincipalName(nametype.KRB_NT_PRINCIPAL, Client), Realm
}

func (s *tickets) Expiry() time.Time {
	return time.Time{}
}

func (s *tickets) ServiceTicket(sname types.PrincipalName, realm string) (krb5.ServiceTicket, error) {
	cname, crealm := s.Principal()
	start := s.kdc.Start
	end := start.Add(ticketTTL)

	tkt, key, err := messages.NewTicket(cname, crealm, sname, realm, types.NewKrbFlags(),
		s.kdc.Keytab, etype, kvno, start, start, end, end)
	if err != nil {
		return krb5.ServiceTicket{}, err
	}

	return krb5.ServiceTicket{Ticket: tkt, SessionKey: key, EndTime: end}, nil
}

func (s *tickets) Destroy() {}
