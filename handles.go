// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"fmt"
	"sync"
)

// handle identifies a slot in an arena.  Slot numbers start at one so that the zero handle
// stands for "no object" (GSS_C_NO_NAME, GSS_C_NO_CREDENTIAL, GSS_C_NO_CONTEXT).  The generation
// changes every time a slot is reused, so a released handle can never reach a newer object.
type handle struct {
	slot uint32
	gen  uint32
}

func (h handle) IsZero() bool {
	return h.slot == 0
}

func (h handle) String() string {
	if h.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%d.%d", h.slot, h.gen)
}

// NameHandle refers to a name owned by an Engine.  The zero value is GSS_C_NO_NAME.
type NameHandle struct{ handle }

// CredHandle refers to a credential owned by an Engine.  The zero value is
// GSS_C_NO_CREDENTIAL, which selects the default credential where permitted.
type CredHandle struct{ handle }

// ContextHandle refers to a security context owned by an Engine.  The zero value is
// GSS_C_NO_CONTEXT.
type ContextHandle struct{ handle }

type arenaSlot[T any] struct {
	gen  uint32
	item *T
}

// arena stores objects by handle.  Lookups and updates of distinct handles may run
// concurrently; callers serialize operations on any single handle.
type arena[T any] struct {
	mu    sync.RWMutex
	slots []arenaSlot[T]
	free  []uint32
}

func (a *arena[T]) insert(item *T) handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot[T]{})
		idx = uint32(len(a.slots) - 1)
	}

	s := &a.slots[idx]
	s.gen++
	s.item = item

	return handle{slot: idx + 1, gen: s.gen}
}

func (a *arena[T]) get(h handle) (*T, bool) {
	if h.IsZero() {
		return nil, false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	idx := h.slot - 1
	if int(idx) >= len(a.slots) {
		return nil, false
	}

	s := a.slots[idx]
	if s.item == nil || s.gen != h.gen {
		return nil, false
	}

	return s.item, true
}

func (a *arena[T]) remove(h handle) (*T, bool) {
	if h.IsZero() {
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := h.slot - 1
	if int(idx) >= len(a.slots) {
		return nil, false
	}

	s := &a.slots[idx]
	if s.item == nil || s.gen != h.gen {
		return nil, false
	}

	item := s.item
	s.item = nil
	a.free = append(a.free, idx)

	return item, true
}

func (a *arena[T]) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.slots) - len(a.free)
}
