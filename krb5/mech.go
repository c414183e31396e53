// SPDX-License-Identifier: Apache-2.0

/*
Package krb5 provides the pure-Go Kerberos V5 mechanism (RFC 4121) for the
go-gsscore engine.

Importing the package registers a mechanism configured from the
conventional Kerberos environment variables in the default registry:

	import _ "github.com/golang-auth/go-gsscore/krb5"

Applications that need a different configuration build their own
instance and hand it to a registry:

	mech := krb5.New(krb5.Config{
		Krb5Conf:   "/etc/krb5.conf",
		KeytabPath: "/etc/http.keytab",
	})
	reg, _ := gssapi.NewRegistry(mech)
	e := gssapi.New(gssapi.WithRegistry(reg))

Initiator credentials come from a credential cache, a client keytab or a
password; acceptor credentials come from a keytab.  The mechanism never
delegates credentials.
*/
package krb5

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jcmturner/gokrb5/v8/config"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/internal/logging"
)

func init() {
	gssapi.MustRegisterMech(New(ConfigFromEnv()))
}

// Mech is the Kerberos V5 mechanism.  It is safe for concurrent use.
type Mech struct {
	cfg    Config
	logger *slog.Logger
	rcache ReplayCache

	krbConfOnce sync.Once
	krbConf     *config.Config
}

var _ gssapi.Mechanism = (*Mech)(nil)

// New returns a Kerberos mechanism using cfg.
func New(cfg Config) *Mech {
	m := &Mech{
		cfg:    cfg,
		logger: logging.OrNoop(cfg.Logger).With("mech", "kerberos_v5"),
		rcache: cfg.ReplayCache,
	}

	if m.rcache == nil {
		m.rcache = NewMemoryReplayCache()
	}

	return m
}

// Oid returns the Kerberos V5 mechanism OID, 1.2.840.113554.1.2.2.
func (m *Mech) Oid() gssapi.Oid {
	return gssapi.GSS_MECH_KRB5.Oid()
}

func (m *Mech) String() string {
	return "kerberos_v5"
}

// NameTypes lists the name types accepted by CanonicalizeName.
func (m *Mech) NameTypes() []gssapi.Oid {
	return []gssapi.Oid{
		gssapi.GSS_NT_USER_NAME.Oid(),
		gssapi.GSS_NT_HOSTBASED_SERVICE.Oid(),
		gssapi.GSS_NT_MACHINE_UID_NAME.Oid(),
		gssapi.GSS_NT_STRING_UID_NAME.Oid(),
		gssapi.GSS_NT_ANONYMOUS.Oid(),
		gssapi.GSS_KRB5_NT_PRINCIPAL_NAME.Oid(),
	}
}

// krb5Conf returns the parsed krb5.conf, or the gokrb5 defaults when there is none.
func (m *Mech) krb5Conf() *config.Config {
	m.krbConfOnce.Do(func() {
		if m.cfg.Krb5Conf != "" {
			cfg, err := config.Load(m.cfg.Krb5Conf)
			if err == nil {
				m.krbConf = cfg
				return
			}
			m.logger.Debug("using default Kerberos configuration", "path", m.cfg.Krb5Conf, "error", err)
		}
		m.krbConf = config.New()
	})

	return m.krbConf
}

func (m *Mech) defaultRealm() string {
	if m.cfg.DefaultRealm != "" {
		return m.cfg.DefaultRealm
	}

	return m.krb5Conf().LibDefaults.DefaultRealm
}

func (m *Mech) clockSkew() time.Duration {
	if m.cfg.ClockSkew > 0 {
		return m.cfg.ClockSkew
	}

	if skew := m.krb5Conf().LibDefaults.Clockskew; skew > 0 {
		return skew
	}

	return 5 * time.Minute
}
