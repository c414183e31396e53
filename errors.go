// SPDX-License-Identifier: Apache-2.0

package gssapi

import "strings"

// MajorStatus is the packed 32-bit GSS-API major status word of RFC 2744 § 3.9.1:
//
//	|<- calling (8) ->|<- routine (8) ->|<-     supplementary (16)     ->|
//
// The zero value is GSS_S_COMPLETE.
type MajorStatus uint32

const (
	callingOffset = 24
	routineOffset = 16
	callingMask   = 0xff
	routineMask   = 0xff
	suppMask      = 0xffff
)

// CallingErrorCode describes an error in the way the caller invoked an operation.
type CallingErrorCode uint8

const (
	CallInaccessibleRead  CallingErrorCode = iota + 1 // A required input parameter could not be read
	CallInaccessibleWrite                             // A required output parameter could not be written
	CallBadStructure                                  // A parameter was malformed
)

// Complete is the major status of an operation that succeeded with no supplementary information.
const Complete MajorStatus = 0

// PackStatus builds a major status word from its three fields.
func PackStatus(calling CallingErrorCode, routine FatalErrorCode, supp InformationCode) MajorStatus {
	return MajorStatus(uint32(calling)&callingMask)<<callingOffset |
		MajorStatus(uint32(routine)&routineMask)<<routineOffset |
		MajorStatus(uint32(supp)&suppMask)
}

// CallingError extracts the calling error field.
func (s MajorStatus) CallingError() CallingErrorCode {
	return CallingErrorCode((s >> callingOffset) & callingMask)
}

// RoutineError extracts the routine error field.
func (s MajorStatus) RoutineError() FatalErrorCode {
	return FatalErrorCode((s >> routineOffset) & routineMask)
}

// SupplementaryInfo extracts the supplementary information bits.
func (s MajorStatus) SupplementaryInfo() InformationCode {
	return InformationCode(s & suppMask)
}

// IsError is true when the calling or routine fields are non-zero.  Supplementary bits alone
// never make a status an error.
func (s MajorStatus) IsError() bool {
	return s.CallingError() != 0 || s.RoutineError() != 0
}

// ContinueNeeded reports whether the GSS_S_CONTINUE_NEEDED bit is set.
func (s MajorStatus) ContinueNeeded() bool {
	return s.SupplementaryInfo()&infoContinueNeeded != 0
}

func (s MajorStatus) String() string {
	if s == Complete {
		return routineMessages[0]
	}

	var strs []string
	if c := s.CallingError(); c != 0 {
		strs = append(strs, c.String())
	}
	if r := s.RoutineError(); r != 0 {
		strs = append(strs, r.String())
	}
	if i := s.SupplementaryInfo(); i != 0 {
		strs = append(strs, i.String())
	}

	return strings.Join(strs, "; ")
}

// error strings from MIT Kerberos 1.19.1 (lib/gssapi/generic/disp_major_status.c)

var callingMessages = [...]string{
	"A required input parameter could not be read",
	"A required output parameter could not be written",
	"A parameter was malformed",
}

var routineMessages = [...]string{
	"The routine completed successfully",
	"An unsupported mechanism was requested",
	"An invalid name was supplied",
	"A supplied name was of an unsupported type",
	"Incorrect channel bindings were supplied",
	"An invalid status code was supplied",
	"A token had an invalid signature",
	"No credentials were supplied, or the credentials were unavailable or inaccessible",
	"No context has been established",
	"A token was invalid",
	"A credential was invalid",
	"The referenced credentials have expired",
	"The context has expired",
	"Unspecified GSS failure.  Minor code may provide more information",
	"The quality-of-protection requested could not be provided",
	"The operation is forbidden by the local security policy",
	"The operation or option is not available or unsupported",
	"The requested credential element already exists",
	"The provided name was not mechanism specific (MN)",
}

var supplementaryMessages = [...]string{
	"The routine must be called again to complete its function",
	"The token was a duplicate of an earlier token",
	"The token's validity period has expired",
	"A later token has already been processed",
	"An expected per-message token was not received",
}

func (c CallingErrorCode) valid() bool {
	return c >= 1 && int(c) <= len(callingMessages)
}

func (c CallingErrorCode) String() string {
	if !c.valid() {
		return "Unknown calling error"
	}
	return callingMessages[c-1]
}

func (c FatalErrorCode) valid() bool {
	return int(c) < len(routineMessages)
}

func (c FatalErrorCode) String() string {
	if !c.valid() {
		return "Unknown routine error"
	}
	return routineMessages[c]
}

func (c InformationCode) valid() bool {
	return c&^(infoContinueNeeded|infoDuplicateToken|infoOldToken|infoUnseqToken|infoGapToken) == 0
}

// lines returns one message per supplementary bit that is set, lowest bit first.
func (c InformationCode) lines() []string {
	var strs []string
	for i := range supplementaryMessages {
		if c&(1<<i) != 0 {
			strs = append(strs, supplementaryMessages[i])
		}
	}

	return strs
}

func (c InformationCode) String() string {
	return strings.Join(c.lines(), ", ")
}
