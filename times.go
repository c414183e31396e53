// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"math"
	"time"
)

// Indefinite is the GSS_C_INDEFINITE lifetime: a credential or context that never expires.
const Indefinite uint32 = math.MaxUint32

// GssLifetimeStatus defines the possible states of a GssLifetime
// instance
type GssLifetimeStatus int

const (
	// Indicates that the lifetime ExpiresAt value is valid
	GssLifetimeAvailable GssLifetimeStatus = iota

	// Indicates that the lifetime has expired and the ExpiresAt value is not valid
	GssLifetimeExpired

	// Indicates that the lifetime is indefinite;  the ExpiresAt value is not valid
	GssLifetimeIndefinite
)

// GssLifetime represents credential and context lifetimes.  The status is kept separate from
// the expiry time rather than overloading a seconds value as RFC 2743/2744 do; Seconds converts
// back to the RFC representation.
type GssLifetime struct {
	Status    GssLifetimeStatus
	ExpiresAt time.Time
}

// IndefiniteLifetime returns a lifetime that never expires.
func IndefiniteLifetime() GssLifetime {
	return GssLifetime{Status: GssLifetimeIndefinite}
}

// MakeGssLifetime returns a lifetime ending at expiry.
func MakeGssLifetime(expiry time.Time) GssLifetime {
	return GssLifetime{Status: GssLifetimeAvailable, ExpiresAt: expiry}
}

// LifetimeFromSeconds converts an RFC 2743 lifetime in seconds, relative to now.  Indefinite maps
// to an indefinite lifetime and zero to an expired one.
func LifetimeFromSeconds(secs uint32, now time.Time) GssLifetime {
	switch secs {
	case Indefinite:
		return IndefiniteLifetime()
	case 0:
		return GssLifetime{Status: GssLifetimeExpired, ExpiresAt: now}
	}

	return MakeGssLifetime(now.Add(time.Duration(secs) * time.Second))
}

// requestedLifetime interprets a caller's time_req value where zero selects the default, which
// places no limit on what the mechanism grants.
func requestedLifetime(secs uint32, now time.Time) GssLifetime {
	if secs == 0 {
		return IndefiniteLifetime()
	}

	return LifetimeFromSeconds(secs, now)
}

// Expired reports whether the lifetime has run out at time now.
func (l GssLifetime) Expired(now time.Time) bool {
	switch l.Status {
	case GssLifetimeIndefinite:
		return false
	case GssLifetimeExpired:
		return true
	}

	return !now.Before(l.ExpiresAt)
}

// Seconds returns the number of whole seconds remaining at time now, Indefinite for an
// indefinite lifetime, or zero once expired.
func (l GssLifetime) Seconds(now time.Time) uint32 {
	if l.Status == GssLifetimeIndefinite {
		return Indefinite
	}
	if l.Expired(now) {
		return 0
	}

	secs := l.ExpiresAt.Sub(now) / time.Second
	if secs >= time.Duration(Indefinite) {
		return Indefinite - 1
	}

	return uint32(secs)
}

// earliest returns whichever lifetime ends first.
func earliest(a, b GssLifetime) GssLifetime {
	switch {
	case a.Status == GssLifetimeExpired:
		return a
	case b.Status == GssLifetimeExpired:
		return b
	case a.Status == GssLifetimeIndefinite:
		return b
	case b.Status == GssLifetimeIndefinite:
		return a
	case b.ExpiresAt.Before(a.ExpiresAt):
		return b
	}

	return a
}
