// SPDX-License-Identifier: Apache-2.0

// Package seqstate implements the replay and sequence window used by per-message token
// verification.  It reports the GSS-API supplementary conditions (duplicate, old, unsequenced
// and gap tokens) for each received sequence number.
package seqstate

import "math"

// windowSize is the number of past sequence numbers remembered for replay detection.
const windowSize = 64

// Status is the outcome of checking one sequence number.
type Status int

const (
	OK        Status = iota // Expected token, or sequence checking is disabled
	Duplicate               // The token was already received
	Old                     // The token is too old to tell whether it was received
	Unseq                   // A later token was already processed
	Gap                     // Earlier tokens were skipped
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Duplicate:
		return "duplicate"
	case Old:
		return "old"
	case Unseq:
		return "unsequenced"
	case Gap:
		return "gap"
	}

	return "unknown"
}

// Window tracks the sequence numbers received on one direction of a context.  Sequence numbers
// are handled relative to the peer's initial sequence number so that wraparound needs no special
// casing.  A Window is not safe for concurrent use.
type Window struct {
	base     uint64
	next     uint64 // next expected relative sequence number
	recvd    uint64 // bit n set: next-1-n has been received
	mask     uint64
	replay   bool
	sequence bool
}

// New returns a window expecting base as the first sequence number.  Sequence numbers are
// 64 bits wide when wide is set, 32 bits otherwise.
func New(base uint64, replay, sequence, wide bool) *Window {
	mask := uint64(math.MaxUint32)
	if wide {
		mask = math.MaxUint64
	}

	return &Window{
		base:     base & mask,
		mask:     mask,
		replay:   replay,
		sequence: sequence,
	}
}

// Check records seq as received and classifies it.
func (w *Window) Check(seq uint64) Status {
	if !w.replay && !w.sequence {
		return OK
	}

	rel := (seq - w.base) & w.mask

	// a token more than half the sequence space ahead is one from the past, including one
	// numbered before base
	if ahead := (rel - w.next) & w.mask; ahead <= w.mask/2 {
		offset := ahead
		if offset >= windowSize-1 {
			w.recvd = 1
		} else {
			w.recvd = w.recvd<<(offset+1) | 1
		}
		w.next = (rel + 1) & w.mask

		if offset > 0 && w.sequence {
			return Gap
		}
		return OK
	}

	offset := (w.next - rel) & w.mask
	if offset > windowSize {
		if w.sequence {
			return Unseq
		}
		return Old
	}

	bit := uint64(1) << (offset - 1)
	if w.replay && w.recvd&bit != 0 {
		return Duplicate
	}
	w.recvd |= bit

	if w.sequence {
		return Unseq
	}
	return OK
}

// State is the serializable form of a Window, used when a security context is exported.
type State struct {
	Base     uint64 `cbor:"1,keyasint"`
	Next     uint64 `cbor:"2,keyasint"`
	Recvd    uint64 `cbor:"3,keyasint"`
	Wide     bool   `cbor:"4,keyasint"`
	Replay   bool   `cbor:"5,keyasint"`
	Sequence bool   `cbor:"6,keyasint"`
}

// State returns a snapshot of the window.
func (w *Window) State() State {
	return State{
		Base:     w.base,
		Next:     w.next,
		Recvd:    w.recvd,
		Wide:     w.mask == math.MaxUint64,
		Replay:   w.replay,
		Sequence: w.sequence,
	}
}

// Restore rebuilds a window from a snapshot.
func Restore(s State) *Window {
	w := New(s.Base, s.Replay, s.Sequence, s.Wide)
	w.next = s.Next & w.mask
	w.recvd = s.Recvd

	return w
}
