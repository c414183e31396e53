// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"log/slog"
	"time"

	"github.com/golang-auth/go-gsscore/internal/logging"
)

// Engine is the mechanism-agnostic GSS-API implementation.  It owns every name, credential and
// security context handle it returns; callers give them back with ReleaseName, ReleaseCred and
// DeleteSecContext.
//
// Distinct handles may be used concurrently.  Operations on the same handle must be serialized
// by the caller unless they only read it (inquiry, display, compare and ContextTime).
type Engine struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time

	names    arena[nameEntry]
	creds    arena[credEntry]
	contexts arena[contextEntry]
}

// EngineOption configures an Engine.
type EngineOption func(e *Engine)

// WithRegistry selects the mechanisms available to the engine.  By default the engine uses the
// mechanisms registered with RegisterMech.
func WithRegistry(r *Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithLogger sets the structured logger.  Engines log nothing by default.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock replaces the time source used for credential and context lifetimes.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// New returns an Engine configured by opts.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		registry: defaultRegistry,
		now:      time.Now,
	}

	for _, o := range opts {
		o(e)
	}

	e.logger = logging.OrNoop(e.logger)
	return e
}

// Registry returns the mechanisms available to the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// IndicateMechs implements GSS_Indicate_mechs (RFC 2743 § 2.4.2).
func (e *Engine) IndicateMechs() *OidSet {
	return e.registry.IndicateMechs()
}

// InquireNamesForMech implements GSS_Inquire_names_for_mech (RFC 2743 § 2.4.12).
func (e *Engine) InquireNamesForMech(mech Oid) (*OidSet, error) {
	return e.registry.InquireNamesForMech(mech)
}
