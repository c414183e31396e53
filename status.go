// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"strings"
)

// InfoStatus represents informational status codes returned when an informational code is available
// but a function otherwise succeeded.  This is only the case for the per-message methods of
// Engine, such as Engine.VerifyMIC and Engine.Unwrap: the outputs of those calls are valid and the
// caller decides whether a duplicate or out-of-sequence token is acceptable.
//
// The Go bindings use Go's standard error interface instead of the major and minor status codes
// specified in RFC 2743 § 1.2.1.  The packed major status can be recovered using StatusOf.
type InfoStatus struct {
	InformationCode InformationCode // The informational status code
	Mech            Oid             // Mechanism that produced the minor status, if any
	MinorStatus     uint32          // Mechanism-specific minor status, passed through verbatim
	MechErrors      []error         // Mechanism-specific errors
}

// FatalStatus represents fatal error status codes returned when a function fails.
// Fatal errors may also include an embedded InfoStatus error.
type FatalStatus struct {
	InfoStatus                        // Embedded informational status
	CallingErrorCode CallingErrorCode // Calling error, normally zero
	FatalErrorCode   FatalErrorCode   // The routine error code
}

// FatalErrorCode represents routine error codes.  Values are the same as the C bindings for
// compatibility.  See RFC 2744 § 3.9.1.
type FatalErrorCode uint32

// InformationCode represents supplementary status bits.  Values are the same as the C bindings
// for compatibility.  See RFC 2744 § 3.9.1.
type InformationCode uint32

const (
	complete FatalErrorCode = iota
	errBadMech
	errBadName
	errBadNameType
	errBadBindings
	errBadStatus
	errBadMic
	errNoCred
	errNoContext
	errDefectiveToken
	errDefectiveCredential
	errCredentialsExpired
	errContextExpired
	errFailure
	errBadQop
	errUnauthorized
	errUnavailable
	errDuplicateElement
	errNameNotMn

	errBadSig = errBadMic
)

const (
	infoContinueNeeded InformationCode = 1 << iota
	infoDuplicateToken
	infoOldToken
	infoUnseqToken
	infoGapToken
)

// Fatal error variables that correspond to the fatal error codes defined by RFC 2743.
// These variables implement the error interface and can be used with Go's standard error handling.

var ErrBadMech = errors.New("an unsupported mechanism was requested")
var ErrBadName = errors.New("an invalid name was supplied")
var ErrBadNameType = errors.New("a supplied name was of an unsupported type")
var ErrBadBindings = errors.New("incorrect channel bindings were supplied")
var ErrBadStatus = errors.New("an invalid status code was supplied")
var ErrBadMic = errors.New("a token had an invalid signature")
var ErrBadSig = ErrBadMic // ErrBadSig is an alias for ErrBadMic for compatibility
var ErrNoCred = errors.New("no credentials were supplied, or the credentials were unavailable or inaccessible")
var ErrNoContext = errors.New("no context has been established")
var ErrDefectiveToken = errors.New("invalid token was supplied")
var ErrDefectiveCredential = errors.New("invalid credential was supplied")
var ErrCredentialsExpired = errors.New("the referenced credentials have expired")
var ErrContextExpired = errors.New("the context has expired")
var ErrFailure = errors.New("unspecified GSS failure.  Minor code may provide more information")
var ErrBadQop = errors.New("the quality-of-protection (QOP) requested could not be provided")
var ErrUnauthorized = errors.New("the operation is forbidden by local security policy")
var ErrUnavailable = errors.New("the operation or option is not available or supported")
var ErrDuplicateElement = errors.New("the requested credential element already exists")
var ErrNameNotMn = errors.New("the provided name was not mechanism specific (MN)")

// Calling errors.  The operation that returns one of these had no side effects.

var ErrInaccessibleRead = errors.New("a required input parameter could not be read")
var ErrInaccessibleWrite = errors.New("a required output parameter could not be written")
var ErrBadStructure = errors.New("a parameter was malformed")

// Informational status variables that correspond to the informational codes defined by RFC 2743.
// These are returned by InfoStatus.Unwrap() and FatalStatus.Unwrap() and can be used with Go's
// standard error handling mechanisms like errors.Is().

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoContinueNeeded = errors.New("the routine must be called again to complete its function")

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoDuplicateToken = errors.New(`the token was a duplicate of an earlier token`)

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoOldToken = errors.New("the token's validity period has expired")

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoUnseqToken = errors.New("a later token has already been processed")

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoGapToken = errors.New("an expected per-message token was not received")

var fatalErrors = [...]error{
	nil,
	ErrBadMech,
	ErrBadName,
	ErrBadNameType,
	ErrBadBindings,
	ErrBadStatus,
	ErrBadMic,
	ErrNoCred,
	ErrNoContext,
	ErrDefectiveToken,
	ErrDefectiveCredential,
	ErrCredentialsExpired,
	ErrContextExpired,
	ErrFailure,
	ErrBadQop,
	ErrUnauthorized,
	ErrUnavailable,
	ErrDuplicateElement,
	ErrNameNotMn,
}

var callingErrors = [...]error{
	nil,
	ErrInaccessibleRead,
	ErrInaccessibleWrite,
	ErrBadStructure,
}

var infoErrors = [...]error{
	InfoContinueNeeded,
	InfoDuplicateToken,
	InfoOldToken,
	InfoUnseqToken,
	InfoGapToken,
}

// Fatal returns the sentinel error for the routine error code.
func (s FatalStatus) Fatal() error {
	if s.FatalErrorCode == complete || !s.FatalErrorCode.valid() {
		return ErrBadStatus
	}

	return fatalErrors[s.FatalErrorCode]
}

// Major returns the packed major status of the informational status.
func (s InfoStatus) Major() MajorStatus {
	return PackStatus(0, complete, s.InformationCode)
}

// Major returns the packed major status of the fatal status.
func (s FatalStatus) Major() MajorStatus {
	return PackStatus(s.CallingErrorCode, s.FatalErrorCode, s.InformationCode)
}

func (s InfoStatus) Unwrap() []error {
	ret := []error{}

	for i, e := range infoErrors {
		if s.InformationCode&(1<<i) != 0 {
			ret = append(ret, e)
		}
	}

	return ret
}

func (s InfoStatus) Error() string {
	infoErrs := s.Unwrap()
	infoStrings := make([]string, len(infoErrs))
	for i, err := range infoErrs {
		infoStrings[i] = err.Error()
	}

	return strings.Join(infoStrings, "; ")
}

func (s FatalStatus) Unwrap() []error {
	ret := []error{}

	if s.CallingErrorCode.valid() {
		ret = append(ret, callingErrors[s.CallingErrorCode])
	}
	if s.FatalErrorCode != complete {
		ret = append(ret, s.Fatal())
	}

	ret = append(ret, s.InfoStatus.Unwrap()...)
	ret = append(ret, s.MechErrors...)

	return ret
}

func (s FatalStatus) Error() string {
	var parts []string

	if s.CallingErrorCode.valid() {
		parts = append(parts, callingErrors[s.CallingErrorCode].Error())
	}

	if s.FatalErrorCode != complete {
		fatal := s.Fatal()
		// only include the spiel about maybe the minor code being helpful if we do
		// actually have a mech error (from the minor code)
		if !(fatal == ErrFailure && len(s.MechErrors) > 0) {
			parts = append(parts, fatal.Error())
		}
	}

	if s.MechErrors != nil {
		mechStrs := make([]string, len(s.MechErrors))
		for i, e := range s.MechErrors {
			mechStrs[i] = e.Error()
		}
		parts = append(parts, strings.Join(mechStrs, "; "))
	}

	infoErrs := s.InfoStatus.Error()
	if infoErrs != "" {
		parts = append(parts, "Additionally: "+infoErrs)
	}

	return strings.Join(parts, ".  ")
}

// makeStatus builds a FatalStatus for a routine error, optionally attaching a cause.
func makeStatus(code FatalErrorCode, cause error) FatalStatus {
	s := FatalStatus{FatalErrorCode: code}
	if cause != nil {
		s.MechErrors = []error{cause}
	}

	return s
}

func codeForFatal(err error) (FatalErrorCode, bool) {
	for i, e := range fatalErrors {
		if e != nil && errors.Is(err, e) {
			return FatalErrorCode(i), true
		}
	}

	return complete, false
}

// MechStatus is used by mechanism implementations to report a failure.  fatal must be one of the
// ErrXxx routine error variables; minor is the mechanism's own status code, which the engine
// passes to the caller unchanged.  cause, if not nil, is kept as a mechanism error.
func MechStatus(fatal error, minor uint32, cause error) error {
	code, ok := codeForFatal(fatal)
	if !ok {
		code = errFailure
	}

	s := makeStatus(code, cause)
	s.MinorStatus = minor
	return s
}

// MechInfo is used by mechanism implementations to report supplementary information alongside
// otherwise successful results.  infos must be InfoXxx variables.
func MechInfo(minor uint32, infos ...error) error {
	var code InformationCode
	for _, info := range infos {
		for i, e := range infoErrors {
			if info == e {
				code |= 1 << i
			}
		}
	}

	if code == 0 {
		return nil
	}

	return InfoStatus{InformationCode: code, MinorStatus: minor}
}

// StatusOf returns the packed major status and the minor status represented by err.  A nil error
// is GSS_S_COMPLETE.  Errors that are not GSS-API statuses map to GSS_S_FAILURE.
func StatusOf(err error) (major MajorStatus, minor uint32) {
	if err == nil {
		return Complete, 0
	}

	var fs FatalStatus
	if errors.As(err, &fs) {
		return fs.Major(), fs.MinorStatus
	}

	var is InfoStatus
	if errors.As(err, &is) {
		return is.Major(), is.MinorStatus
	}

	for i, e := range callingErrors {
		if e != nil && errors.Is(err, e) {
			return PackStatus(CallingErrorCode(i), complete, 0), 0
		}
	}

	if code, ok := codeForFatal(err); ok {
		return PackStatus(0, code, 0), 0
	}

	return PackStatus(0, errFailure, 0), 0
}

// IsFatal reports whether err represents a failure rather than supplementary information.
func IsFatal(err error) bool {
	major, _ := StatusOf(err)
	return major.IsError()
}

// withMech converts any error returned by a mechanism into a GSS-API status annotated with the
// mechanism OID.  Minor status values are never altered.
func withMech(mech Oid, err error) error {
	if err == nil {
		return nil
	}

	var fs FatalStatus
	if errors.As(err, &fs) {
		if fs.Mech == nil {
			fs.Mech = mech
		}
		return fs
	}

	var is InfoStatus
	if errors.As(err, &is) {
		if is.Mech == nil {
			is.Mech = mech
		}
		return is
	}

	code, ok := codeForFatal(err)
	if !ok {
		code = errFailure
	}
	s := makeStatus(code, err)
	s.Mech = mech
	return s
}
