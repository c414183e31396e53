// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"
)

// AcceptorISNPolicy selects how the acceptor's initial sequence number is derived when the
// context does not use mutual authentication.  In that case the acceptor has no opportunity to
// tell the initiator its own sequence number.
type AcceptorISNPolicy int

const (
	// DefaultAcceptorISNInitiator uses the initiator's initial sequence number as the acceptor's.
	// Use this for compatibility with MIT and Microsoft.
	DefaultAcceptorISNInitiator AcceptorISNPolicy = iota

	// DefaultAcceptorISNZero uses zero as the acceptor's initial sequence number.  Use this for
	// compatibility with Heimdal.
	DefaultAcceptorISNZero
)

// Config holds the settings of a Kerberos mechanism instance.
type Config struct {
	Krb5Conf         string        // Path to krb5.conf; empty for built-in defaults
	KeytabPath       string        // Acceptor keytab
	ClientKeytabPath string        // Keytab used to obtain initiator credentials when there is no ccache
	CCachePath       string        // Initiator credential cache
	DefaultRealm     string        // Overrides default_realm from krb5.conf
	ClockSkew        time.Duration // Zero selects the krb5.conf clockskew
	AcceptorISN      AcceptorISNPolicy

	// ReplayCache is shared by every acceptor credential that does not name its own replay
	// cache.  New installs a MemoryReplayCache when it is nil.
	ReplayCache ReplayCache

	Logger *slog.Logger

	// Keytab, when set, is used for acceptor credentials instead of KeytabPath.
	Keytab *keytab.Keytab

	// Tickets, when set, supplies every default initiator credential instead of the ccache.
	Tickets TicketSource
}

// ConfigFromEnv returns the configuration described by the conventional Kerberos environment
// variables KRB5_CONFIG, KRB5CCNAME, KRB5_KTNAME and KRB5_CLIENT_KTNAME.
func ConfigFromEnv() Config {
	return Config{
		Krb5Conf:         krbConfFile(),
		KeytabPath:       krbKtFile(),
		ClientKeytabPath: krbClientKtFile(),
		CCachePath:       krbCCFile(),
	}
}

func krbConfFile() string {
	cfgFile, ok := os.LookupEnv("KRB5_CONFIG")
	if !ok {
		cfgFile = "/etc/krb5.conf"
	}

	return cfgFile
}

func krbCCFile() string {
	ccFile, ok := os.LookupEnv("KRB5CCNAME")
	if !ok {
		ccFile = fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
	}

	return strings.TrimPrefix(ccFile, "FILE:")
}

func krbKtFile() string {
	ktFile, ok := os.LookupEnv("KRB5_KTNAME")
	if !ok {
		ktFile = "/etc/krb5.keytab"
	}

	return strings.TrimPrefix(ktFile, "FILE:")
}

func krbClientKtFile() string {
	ktFile, ok := os.LookupEnv("KRB5_CLIENT_KTNAME")
	if !ok {
		ktFile = fmt.Sprintf("/var/kerberos/krb5/user/%d/client.keytab", os.Getuid())
	}

	return strings.TrimPrefix(ktFile, "FILE:")
}
