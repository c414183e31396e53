// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstValues(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(FatalErrorCode(0), complete)
	assert.Equal(FatalErrorCode(1), errBadMech)

	assert.Equal(FatalErrorCode(6), errBadSig)
	assert.Equal(FatalErrorCode(6), errBadMic)
	assert.Equal(FatalErrorCode(7), errNoCred)

	assert.Equal(FatalErrorCode(18), errNameNotMn)

	assert.Equal(InformationCode(1), infoContinueNeeded)
	assert.Equal(InformationCode(16), infoGapToken)
}

func TestFatal(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		code        FatalErrorCode
		errContains string
	}{
		{errBadMech, "unsupported mech"},
		{errBadName, "invalid name"},
		{errBadNameType, "unsupported type"},
		{errBadBindings, "channel bindings"},
		{errBadStatus, "invalid status"},
		{errBadMic, "invalid signature"},
		{errNoCred, "no credentials"},
		{errNoContext, "no context"},
		{errDefectiveToken, "invalid token"},
		{errDefectiveCredential, "invalid credential"},
		{errCredentialsExpired, "credentials have expired"},
		{errContextExpired, "context has expired"},
		{errFailure, "unspecified GSS"},
		{errBadQop, "quality-of-protection"},
		{errUnauthorized, "operation is forbidden"},
		{errUnavailable, "not available"},
		{errDuplicateElement, "already exists"},
		{errNameNotMn, "not mechanism"},
		{1000, "invalid status"},
	}

	for _, tt := range tests {
		fs := FatalStatus{FatalErrorCode: tt.code}
		assert.Contains(fs.Fatal().Error(), tt.errContains)
	}
}

func TestFatalUnwrap(t *testing.T) {
	assert := assert.New(t)

	var err error = FatalStatus{
		FatalErrorCode: errBadMech,
		InfoStatus: InfoStatus{
			InformationCode: infoDuplicateToken | infoGapToken,
		},
	}

	assert.ErrorIs(err, ErrBadMech)
	assert.ErrorIs(err, InfoDuplicateToken)
	assert.ErrorIs(err, InfoGapToken)
	assert.NotErrorIs(err, InfoOldToken)

	assert.ErrorAs(err, &FatalStatus{})
}

func TestFatalError(t *testing.T) {
	assert := assert.New(t)

	var err error = FatalStatus{
		FatalErrorCode: errBadMech,
		InfoStatus: InfoStatus{
			InformationCode: infoDuplicateToken | infoGapToken,
			MechErrors:      []error{errors.New("TEST")},
		},
	}

	msg := err.Error()

	assert.Contains(msg, "unsupported mech")
	assert.Contains(msg, "earlier token")
	assert.Contains(msg, "was not received")
}

func TestInfoUnwrap(t *testing.T) {
	assert := assert.New(t)

	var err error = InfoStatus{
		InformationCode: infoDuplicateToken | infoGapToken,
	}

	assert.ErrorIs(err, InfoDuplicateToken)
	assert.ErrorIs(err, InfoGapToken)
	assert.NotErrorIs(err, InfoOldToken)

	asInfo := errors.As(err, &InfoStatus{})
	assert.True(asInfo)

	asFatal := errors.As(err, &FatalStatus{})
	assert.False(asFatal)
}

func TestInfoError(t *testing.T) {
	assert := assert.New(t)

	var err error = InfoStatus{
		InformationCode: infoDuplicateToken | infoGapToken,
	}
	msg := err.Error()

	assert.Contains(msg, "earlier token")
	assert.Contains(msg, "was not received")
}

func TestMechStatus(t *testing.T) {
	assert := assert.New(t)

	cause := errors.New("ticket not yet valid")
	err := MechStatus(ErrDefectiveToken, 42, cause)

	assert.ErrorIs(err, ErrDefectiveToken)
	assert.ErrorIs(err, cause)

	major, minor := StatusOf(err)
	assert.Equal(errDefectiveToken, major.RoutineError())
	assert.Equal(uint32(42), minor)

	// anything other than a routine error variable is a generic failure
	err = MechStatus(errors.New("x"), 7, nil)
	major, minor = StatusOf(err)
	assert.Equal(errFailure, major.RoutineError())
	assert.Equal(uint32(7), minor)
}

func TestMechInfo(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(MechInfo(0))

	err := MechInfo(3, InfoDuplicateToken, InfoGapToken)
	assert.ErrorIs(err, InfoDuplicateToken)
	assert.ErrorIs(err, InfoGapToken)
	assert.False(IsFatal(err))

	major, minor := StatusOf(err)
	assert.Equal(infoDuplicateToken|infoGapToken, major.SupplementaryInfo())
	assert.Equal(uint32(3), minor)
}

func TestStatusOf(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		name  string
		err   error
		major MajorStatus
	}{
		{"nil", nil, Complete},
		{"sentinel", ErrNoContext, PackStatus(0, errNoContext, 0)},
		{"wrapped sentinel", fmt.Errorf("oops: %w", ErrBadQop), PackStatus(0, errBadQop, 0)},
		{"calling", ErrBadStructure, PackStatus(CallBadStructure, complete, 0)},
		{"plain", errors.New("plain"), PackStatus(0, errFailure, 0)},
		{"fatal", FatalStatus{CallingErrorCode: CallInaccessibleRead, FatalErrorCode: errBadName}, PackStatus(CallInaccessibleRead, errBadName, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, _ := StatusOf(tt.err)
			assert.Equal(tt.major, major)
		})
	}
}

func TestWithMech(t *testing.T) {
	assert := assert.New(t)

	mech := GSS_MECH_KRB5.Oid()
	assert.Nil(withMech(mech, nil))

	err := withMech(mech, errors.New("keytab missing"))
	var fs FatalStatus
	assert.ErrorAs(err, &fs)
	assert.Equal(errFailure, fs.FatalErrorCode)
	assert.Equal(mech, fs.Mech)

	err = withMech(mech, fmt.Errorf("decrypt: %w", ErrBadMic))
	assert.ErrorIs(err, ErrBadMic)

	err = withMech(mech, MechInfo(0, InfoOldToken))
	var is InfoStatus
	assert.ErrorAs(err, &is)
	assert.Equal(mech, is.Mech)
	assert.False(IsFatal(err))

	// a mechanism OID that is already set is kept
	other := GSS_MECH_SPNEGO.Oid()
	err = withMech(mech, FatalStatus{FatalErrorCode: errBadMech, InfoStatus: InfoStatus{Mech: other}})
	assert.ErrorAs(err, &fs)
	assert.Equal(other, fs.Mech)
}
