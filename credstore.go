// SPDX-License-Identifier: Apache-2.0

package gssapi

import "fmt"

// CredStoreOpt options select where a mechanism finds the material for a credential.
// Mechanisms may interpret additional option values of their own.
type CredStoreOpt int

const (
	// CredStoreCCache names the credential cache used for initiator credentials.
	CredStoreCCache CredStoreOpt = 1 << iota
	// CredStoreClientKeytab names the keytab used to obtain fresh initiator credentials.
	CredStoreClientKeytab
	// CredStoreServerKeytab names the keytab holding acceptor keys.
	CredStoreServerKeytab
	// CredStorePassword supplies a password for obtaining fresh initiator credentials.  It cannot be
	// combined with CredStoreCCache or CredStoreClientKeytab.
	CredStorePassword
	// CredStoreRCache names the replay cache used by acceptor credentials.
	CredStoreRCache
)

func (o CredStoreOpt) String() string {
	switch o {
	case CredStoreCCache:
		return "ccache"
	case CredStoreClientKeytab:
		return "client_keytab"
	case CredStoreServerKeytab:
		return "keytab"
	case CredStorePassword:
		return "password"
	case CredStoreRCache:
		return "rcache"
	}

	return fmt.Sprintf("option(%d)", int(o))
}

// CredStore defines a set of credential store options and their values
// (gss_acquire_cred_from, RFC 5588 era MIT extension).
type CredStore interface {
	SetOption(option int, value string) error
	GetOption(option int) (string, bool)
}

// CredStoreOption is a function type for configuring credential store options.
type CredStoreOption func(o CredStore) error

// WithCredStoreCCache selects the credential cache used for initiator credentials.
func WithCredStoreCCache(cache string) CredStoreOption {
	return func(s CredStore) error {
		return s.SetOption(int(CredStoreCCache), cache)
	}
}

// WithCredStoreClientKeytab selects the keytab used to obtain fresh initiator credentials.
func WithCredStoreClientKeytab(keytab string) CredStoreOption {
	return func(s CredStore) error {
		return s.SetOption(int(CredStoreClientKeytab), keytab)
	}
}

// WithCredStoreServerKeytab selects the keytab holding acceptor keys.
func WithCredStoreServerKeytab(keytab string) CredStoreOption {
	return func(s CredStore) error {
		return s.SetOption(int(CredStoreServerKeytab), keytab)
	}
}

// WithCredStorePassword supplies a password for obtaining fresh initiator credentials.
func WithCredStorePassword(password string) CredStoreOption {
	return func(s CredStore) error {
		return s.SetOption(int(CredStorePassword), password)
	}
}

// WithCredStoreRCache selects the replay cache used by acceptor credentials.
func WithCredStoreRCache(rCache string) CredStoreOption {
	return func(s CredStore) error {
		return s.SetOption(int(CredStoreRCache), rCache)
	}
}

// credStore is the CredStore the engine hands to mechanisms.
type credStore map[int]string

func (s credStore) SetOption(option int, value string) error {
	if _, ok := s[option]; ok {
		return makeStatus(errDuplicateElement, fmt.Errorf("gssapi: credential store option %s set twice", CredStoreOpt(option)))
	}

	_, hasCCache := s[int(CredStoreCCache)]
	_, hasClientKT := s[int(CredStoreClientKeytab)]
	_, hasPassword := s[int(CredStorePassword)]
	switch CredStoreOpt(option) {
	case CredStorePassword:
		if hasCCache || hasClientKT {
			return makeStatus(errUnavailable, fmt.Errorf("gssapi: a password cannot be combined with a ccache or client keytab"))
		}
	case CredStoreCCache, CredStoreClientKeytab:
		if hasPassword {
			return makeStatus(errUnavailable, fmt.Errorf("gssapi: a password cannot be combined with a ccache or client keytab"))
		}
	}

	s[option] = value
	return nil
}

func (s credStore) GetOption(option int) (string, bool) {
	v, ok := s[option]
	return v, ok
}

// newCredStore applies opts and returns nil when there are none.
func newCredStore(opts []CredStoreOption) (CredStore, error) {
	if len(opts) == 0 {
		return nil, nil
	}

	s := credStore{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}
