// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gsscore"
)

// ServiceTicket is a ticket for an acceptor together with its session key.
type ServiceTicket struct {
	Ticket     messages.Ticket
	SessionKey types.EncryptionKey
	EndTime    time.Time // Zero when unknown
}

// TicketSource supplies the service tickets of an initiator credential.
type TicketSource interface {
	// Principal returns the client principal and realm.
	Principal() (types.PrincipalName, string)

	// Expiry returns the end time of the ticket-granting ticket, or zero when the source can
	// obtain fresh tickets on demand.
	Expiry() time.Time

	// ServiceTicket returns a ticket for the service principal.
	ServiceTicket(sname types.PrincipalName, realm string) (ServiceTicket, error)

	// Destroy discards any tickets and secrets held by the source.
	Destroy()
}

// clientSource is a TicketSource backed by a gokrb5 client.  Clients built from a credential
// cache use its TGT; keytab and password clients log in to the KDC on first use.
type clientSource struct {
	mu       sync.Mutex
	cl       *client.Client
	cc       *credentials.CCache
	loggedIn bool
}

func (s *clientSource) Principal() (types.PrincipalName, string) {
	return s.cl.Credentials.CName(), s.cl.Credentials.Realm()
}

func (s *clientSource) Expiry() time.Time {
	if s.cc == nil {
		return time.Time{}
	}

	realm := s.cc.GetClientRealm()
	tgs := types.NewPrincipalName(nametype.KRB_NT_SRV_INST, "krbtgt/"+realm)
	if e, ok := s.cc.GetEntry(tgs); ok {
		return e.EndTime
	}

	return time.Time{}
}

func (s *clientSource) ServiceTicket(sname types.PrincipalName, realm string) (ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cc == nil && !s.loggedIn {
		if err := s.cl.AffirmLogin(); err != nil {
			return ServiceTicket{}, kdcStatus(fmt.Errorf("krb5: logging in: %w", err))
		}
		s.loggedIn = true
	}

	tkt, key, err := s.cl.GetServiceTicket(sname.PrincipalNameString())
	if err != nil {
		return ServiceTicket{}, kdcStatus(fmt.Errorf("krb5: getting service ticket for %s@%s: %w", sname.PrincipalNameString(), realm, err))
	}

	st := ServiceTicket{Ticket: tkt, SessionKey: key}
	if s.cc != nil {
		if e, ok := s.cc.GetEntry(sname); ok {
			st.EndTime = e.EndTime
		}
	}

	return st, nil
}

func (s *clientSource) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cl.Destroy()
}

// credential is a Kerberos credential element.  The initiator half holds a ticket source; the
// acceptor half holds the keytab and replay cache used to verify AP-REQs.
type credential struct {
	usage gssapi.CredUsage
	name  *principal

	tickets     TicketSource
	ownsTickets bool
	initExpiry  gssapi.GssLifetime

	keytab   *keytab.Keytab
	acceptAs *principal // nil accepts any principal in the keytab
	rcache   ReplayCache
}

var _ gssapi.MechCred = (*credential)(nil)

func (c *credential) Name() []byte {
	if c.name == nil {
		return nil
	}

	return []byte(c.name.String())
}

func (c *credential) Usage() gssapi.CredUsage {
	return c.usage
}

func (c *credential) InitiatorLifetime() gssapi.GssLifetime {
	return c.initExpiry
}

func (c *credential) AcceptorLifetime() gssapi.GssLifetime {
	return gssapi.IndefiniteLifetime()
}

func (c *credential) Release() error {
	if c.tickets != nil && c.ownsTickets {
		c.tickets.Destroy()
	}
	c.tickets = nil
	c.keytab = nil

	return nil
}

func initiates(u gssapi.CredUsage) bool {
	return u == gssapi.CredUsageInitiateAndAccept || u == gssapi.CredUsageInitiateOnly
}

func accepts(u gssapi.CredUsage) bool {
	return u == gssapi.CredUsageInitiateAndAccept || u == gssapi.CredUsageAcceptOnly
}

func storeOpt(s gssapi.CredStore, o gssapi.CredStoreOpt) (string, bool) {
	if s == nil {
		return "", false
	}

	return s.GetOption(int(o))
}

// AcquireCred obtains initiator tickets and acceptor keys for the desired principal, or for the
// default principal when req.Name is nil.
func (m *Mech) AcquireCred(req gssapi.CredRequest) (gssapi.MechCred, error) {
	var desired *principal
	if req.Name != nil {
		p, err := parseMN(req.Name)
		if err != nil {
			return nil, err
		}
		desired = &p
	}

	c := &credential{usage: req.Usage, name: desired}

	if initiates(req.Usage) {
		if err := m.acquireInitiator(c, desired, req); err != nil {
			return nil, err
		}
	}

	if accepts(req.Usage) {
		if err := m.acquireAcceptor(c, desired, req.Store); err != nil {
			_ = c.Release()
			return nil, err
		}
	}

	m.logger.Debug("acquired credential", "usage", req.Usage.String(), "name", string(c.Name()))
	return c, nil
}

func (m *Mech) acquireInitiator(c *credential, desired *principal, req gssapi.CredRequest) error {
	src, owned, err := m.ticketSource(desired, req.Store)
	if err != nil {
		return err
	}

	pn, realm := src.Principal()
	p := newPrincipal(pn, realm)
	if desired != nil && !desired.equal(p) {
		if owned {
			src.Destroy()
		}
		return gssapi.MechStatus(gssapi.ErrNoCred, minorCCacheNoMatch,
			fmt.Errorf("krb5: credentials are for %s, not %s", p, desired))
	}

	c.initExpiry = gssapi.IndefiniteLifetime()
	if exp := src.Expiry(); !exp.IsZero() {
		if !exp.After(req.Now) {
			if owned {
				src.Destroy()
			}
			return gssapi.MechStatus(gssapi.ErrCredentialsExpired, 0, fmt.Errorf("krb5: TGT for %s expired at %s", p, exp))
		}
		c.initExpiry = gssapi.MakeGssLifetime(exp)
	}

	c.name = &p
	c.tickets, c.ownsTickets = src, owned
	return nil
}

// ticketSource picks where initiator tickets come from: an explicit password, client keytab or
// credential cache from the store, then the configured source, then the default credential
// cache, then the default client keytab.
func (m *Mech) ticketSource(desired *principal, store gssapi.CredStore) (TicketSource, bool, error) {
	if pw, ok := storeOpt(store, gssapi.CredStorePassword); ok {
		if desired == nil {
			return nil, false, gssapi.MechStatus(gssapi.ErrNoCred, 0, errors.New("krb5: a password credential needs a desired name"))
		}
		cl := client.NewWithPassword(desired.name.PrincipalNameString(), desired.realm, pw, m.krb5Conf())
		return &clientSource{cl: cl}, true, nil
	}

	if path, ok := storeOpt(store, gssapi.CredStoreClientKeytab); ok {
		src, err := m.clientKeytabSource(path, desired)
		return src, true, err
	}

	if path, ok := storeOpt(store, gssapi.CredStoreCCache); ok {
		src, err := m.ccacheSource(path)
		return src, true, err
	}

	if m.cfg.Tickets != nil {
		return m.cfg.Tickets, false, nil
	}

	src, err := m.ccacheSource(m.cfg.CCachePath)
	if err == nil {
		return src, true, nil
	}

	if m.cfg.ClientKeytabPath != "" {
		if ksrc, kerr := m.clientKeytabSource(m.cfg.ClientKeytabPath, desired); kerr == nil {
			return ksrc, true, nil
		}
	}

	return nil, false, err
}

func (m *Mech) ccacheSource(path string) (TicketSource, error) {
	path = strings.TrimPrefix(path, "FILE:")

	cc, err := credentials.LoadCCache(path)
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorEmptyCCache, fmt.Errorf("krb5: loading credential cache: %w", err))
	}

	cl, err := client.NewFromCCache(cc, m.krb5Conf())
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorTGTMissing, fmt.Errorf("krb5: using credential cache %s: %w", path, err))
	}

	return &clientSource{cl: cl, cc: cc}, nil
}

func (m *Mech) clientKeytabSource(path string, desired *principal) (TicketSource, error) {
	kt, err := keytab.Load(strings.TrimPrefix(path, "FILE:"))
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorNoKeytab, fmt.Errorf("krb5: loading client keytab: %w", err))
	}

	var p principal
	switch {
	case desired != nil:
		if !keytabHas(kt, *desired) {
			return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorKeytabNoMatch, fmt.Errorf("krb5: no key for %s in %s", desired, path))
		}
		p = *desired
	case len(kt.Entries) > 0:
		e := kt.Entries[0]
		p = newPrincipal(types.PrincipalName{NameType: e.Principal.NameType, NameString: e.Principal.Components}, e.Principal.Realm)
	default:
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorKeytabNoMatch, fmt.Errorf("krb5: client keytab %s is empty", path))
	}

	cl := client.NewWithKeytab(p.name.PrincipalNameString(), p.realm, kt, m.krb5Conf())
	return &clientSource{cl: cl}, nil
}

func (m *Mech) acquireAcceptor(c *credential, desired *principal, store gssapi.CredStore) error {
	kt, err := m.acceptorKeytab(store)
	if err != nil {
		return err
	}

	if desired != nil && !keytabHas(kt, *desired) {
		return gssapi.MechStatus(gssapi.ErrNoCred, minorKeytabNoMatch, fmt.Errorf("krb5: no key for %s in keytab", desired))
	}

	rc, err := m.replayCache(store)
	if err != nil {
		return err
	}

	c.keytab, c.acceptAs, c.rcache = kt, desired, rc
	return nil
}

func (m *Mech) acceptorKeytab(store gssapi.CredStore) (*keytab.Keytab, error) {
	path, ok := storeOpt(store, gssapi.CredStoreServerKeytab)
	if !ok {
		if m.cfg.Keytab != nil {
			return m.cfg.Keytab, nil
		}
		path = m.cfg.KeytabPath
	}

	kt, err := keytab.Load(strings.TrimPrefix(path, "FILE:"))
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorNoKeytab, fmt.Errorf("krb5: loading keytab: %w", err))
	}

	return kt, nil
}

// replayCache returns the cache named in the store, or the mechanism's shared cache.  The name
// "none" disables replay detection.
func (m *Mech) replayCache(store gssapi.CredStore) (ReplayCache, error) {
	path, ok := storeOpt(store, gssapi.CredStoreRCache)
	if !ok {
		return m.rcache, nil
	}

	if path == "none" {
		return nil, nil
	}

	rc, err := NewBoltReplayCache(path)
	if err != nil {
		return nil, gssapi.MechStatus(gssapi.ErrNoCred, minorReplayCache, err)
	}

	return rc, nil
}

func keytabHas(kt *keytab.Keytab, p principal) bool {
	for _, e := range kt.Entries {
		if e.Principal.Realm != p.realm || len(e.Principal.Components) != len(p.name.NameString) {
			continue
		}

		match := true
		for i, comp := range e.Principal.Components {
			if comp != p.name.NameString[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}
