// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"fmt"
)

// StatusType selects the kind of status code passed to DisplayStatus.
type StatusType int

const (
	// GSSCode selects a major status value (GSS_C_GSS_CODE).
	GSSCode StatusType = iota + 1
	// MechCode selects a mechanism minor status value (GSS_C_MECH_CODE).
	MechCode
)

// lines splits a major status into one message per field: the calling error, the routine
// error, then each supplementary bit from lowest to highest.
func (s MajorStatus) lines() ([]string, error) {
	if s == Complete {
		return []string{routineMessages[0]}, nil
	}

	calling, routine, supp := s.CallingError(), s.RoutineError(), s.SupplementaryInfo()
	if (calling != 0 && !calling.valid()) || !routine.valid() || !supp.valid() {
		return nil, makeStatus(errBadStatus, fmt.Errorf("gssapi: %#08x is not a valid major status", uint32(s)))
	}

	var strs []string
	if calling != 0 {
		strs = append(strs, calling.String())
	}
	if routine != 0 {
		strs = append(strs, routine.String())
	}

	return append(strs, supp.lines()...), nil
}

// DisplayStatus implements GSS_Display_status (RFC 2743 § 2.4.1).  Each call returns one message;
// pass the returned message context to the next call until it comes back as zero.
//
// For MechCode a nil mech selects the default mechanism.
func (e *Engine) DisplayStatus(code uint32, statusType StatusType, mech Oid, msgCtx uint32) (string, uint32, error) {
	var lines []string

	switch statusType {
	case GSSCode:
		var err error
		if lines, err = MajorStatus(code).lines(); err != nil {
			return "", 0, err
		}

	case MechCode:
		m, err := e.registry.Lookup(mech)
		if err != nil {
			return "", 0, err
		}

		s, err := m.DisplayMinor(code)
		if err != nil {
			return "", 0, withMech(m.Oid(), err)
		}
		lines = []string{s}

	default:
		return "", 0, makeStatus(errBadStatus, fmt.Errorf("gssapi: unknown status type %d", statusType))
	}

	if int(msgCtx) >= len(lines) {
		return "", 0, makeStatus(errBadStatus, fmt.Errorf("gssapi: message context %d is out of range", msgCtx))
	}

	next := msgCtx + 1
	if int(next) == len(lines) {
		next = 0
	}

	return lines[msgCtx], next, nil
}

// StatusMessages returns every message describing err: the major status messages followed by
// the mechanism's description of the minor status, if there is one.
func (e *Engine) StatusMessages(err error) []string {
	major, minor := StatusOf(err)

	var msgs []string
	for msgCtx := uint32(0); ; {
		s, next, derr := e.DisplayStatus(uint32(major), GSSCode, nil, msgCtx)
		if derr != nil {
			break
		}
		msgs = append(msgs, s)
		if next == 0 {
			break
		}
		msgCtx = next
	}

	if minor == 0 {
		return msgs
	}

	var mech Oid
	var is InfoStatus
	var fs FatalStatus
	switch {
	case errors.As(err, &fs):
		mech = fs.Mech
	case errors.As(err, &is):
		mech = is.Mech
	}

	if s, _, derr := e.DisplayStatus(minor, MechCode, mech, 0); derr == nil {
		msgs = append(msgs, s)
	}

	return msgs
}
