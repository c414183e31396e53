// SPDX-License-Identifier: Apache-2.0

package gssapi

import "time"

// QoP represents quality of protection values used by GetMIC, VerifyMIC, Wrap, Unwrap, and
// WrapSizeLimit.  A zero value represents the default quality of protection.
type QoP uint

// QoPDefault requests the mechanism's default protection (GSS_C_QOP_DEFAULT).
const QoPDefault QoP = 0

// CredUsage defines the intended usage for credentials as specified in RFC 2743 § 2.1.1.
type CredUsage int

// Credential usage values as defined in RFC 2744 § 3.9.3
const (
	// CredUsageInitiateAndAccept indicates the credential may be used for both initiating and accepting contexts
	CredUsageInitiateAndAccept CredUsage = iota
	// CredUsageInitiateOnly indicates the credential may only be used for initiating contexts
	CredUsageInitiateOnly
	// CredUsageAcceptOnly indicates the credential may only be used for accepting contexts
	CredUsageAcceptOnly
)

func (u CredUsage) initiate() bool {
	return u == CredUsageInitiateAndAccept || u == CredUsageInitiateOnly
}

func (u CredUsage) accept() bool {
	return u == CredUsageInitiateAndAccept || u == CredUsageAcceptOnly
}

func (u CredUsage) String() string {
	switch u {
	case CredUsageInitiateAndAccept:
		return "initiate-and-accept"
	case CredUsageInitiateOnly:
		return "initiate"
	case CredUsageAcceptOnly:
		return "accept"
	}

	return "unknown"
}

// Mechanism is the capability set a security mechanism provides to the engine.  The engine owns
// handles, names, lifetimes and the context state machine; a Mechanism only deals with its own
// name syntax, credential material and tokens.
//
// Mechanisms report failures with MechStatus and supplementary information with MechInfo.  Any
// other error is reported to the caller as GSS_S_FAILURE.
type Mechanism interface {
	// Oid returns the mechanism's object identifier.
	Oid() Oid

	// String returns a short human-readable name for the mechanism.
	String() string

	// NameTypes lists the name types the mechanism can canonicalize (GSS_Inquire_names_for_mech).
	NameTypes() []Oid

	// CanonicalizeName converts a name of the given type into the mechanism's canonical form.
	// A nil nameType selects the mechanism's default syntax.
	CanonicalizeName(nameType Oid, value []byte) ([]byte, error)

	// DisplayName renders a canonical name and reports its name type.
	DisplayName(mn []byte) (string, Oid, error)

	// AcquireCred obtains a credential element.
	AcquireCred(req CredRequest) (MechCred, error)

	// NewInitiator prepares an initiator context; the engine then drives MechContext.Step.
	NewInitiator(params InitParams) (MechContext, error)

	// NewAcceptor prepares an acceptor context; the engine then drives MechContext.Step.
	NewAcceptor(params AcceptParams) (MechContext, error)

	// ImportContext reconstructs a context from the output of MechContext.Export.
	ImportContext(state []byte) (MechContext, error)

	// DisplayMinor describes a minor status code produced by the mechanism.
	DisplayMinor(minor uint32) (string, error)
}

// CredRequest carries the parameters of a credential acquisition to a mechanism.
type CredRequest struct {
	Name              []byte    // Canonical name of the desired principal, or nil for the default
	Usage             CredUsage // Desired usage
	InitiatorLifetime uint32    // Requested initiator lifetime in seconds; 0 for the default
	AcceptorLifetime  uint32    // Requested acceptor lifetime in seconds; 0 for the default
	Store             CredStore // Credential store options, may be nil
	Now               time.Time // Engine clock at the time of the request
}

// MechCred is a mechanism credential element.
type MechCred interface {
	// Name returns the canonical name of the credential's principal.
	Name() []byte
	Usage() CredUsage
	InitiatorLifetime() GssLifetime
	AcceptorLifetime() GssLifetime
	// Release destroys any secrets held by the element.
	Release() error
}

// InitParams are passed to Mechanism.NewInitiator.
type InitParams struct {
	Cred            MechCred    // Initiator credential element
	Target          []byte      // Canonical name of the acceptor
	Flags           ContextFlag // Requested flags
	Lifetime        GssLifetime // Requested lifetime
	ChannelBindings []byte      // Serialized channel bindings, nil when not bound
	Now             func() time.Time
}

// AcceptParams are passed to Mechanism.NewAcceptor.
type AcceptParams struct {
	Cred            MechCred // Acceptor credential element
	ChannelBindings []byte   // Serialized channel bindings, nil when not bound
	Now             func() time.Time
}

// StepResult is returned from each establishment step.
type StepResult struct {
	Output        []byte      // Token for the peer, possibly empty
	Complete      bool        // Establishment has finished
	Flags         ContextFlag // Flags granted so far, including ContextFlagProtReady and ContextFlagTrans
	Lifetime      GssLifetime // Lifetime of the context as limited by the mechanism
	DelegatedCred MechCred    // Credential delegated by the initiator, acceptor only
}

// MechContext holds the mechanism-private state of one end of a security context.
type MechContext interface {
	// Step consumes a token from the peer (empty on the initiator's first call) and produces the
	// next token.  When Step returns an error it may still return an Output token, such as a
	// Kerberos KRB-ERROR, for the peer.
	Step(input []byte) (StepResult, error)

	// InitiatorName and AcceptorName return canonical names, or nil while unknown.
	InitiatorName() []byte
	AcceptorName() []byte

	GetMIC(qop QoP, message []byte) ([]byte, error)
	VerifyMIC(message, token []byte) (QoP, error)
	Wrap(confReq bool, qop QoP, message []byte) (token []byte, confState bool, err error)
	Unwrap(token []byte) (message []byte, confState bool, qop QoP, err error)
	WrapSizeLimit(confReq bool, qop QoP, maxOutput uint32) (uint32, error)

	// ProcessToken handles context tokens that are not part of establishment or per-message
	// protection.
	ProcessToken(token []byte) error

	// Export serializes the context state for ImportContext.
	Export() ([]byte, error)

	// Delete releases the context and may return a token for the peer.
	Delete() ([]byte, error)
}
