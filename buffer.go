// SPDX-License-Identifier: Apache-2.0

package gssapi

// Buffer is a byte region allocated by the engine: tokens, exported names and exported contexts.
// A Buffer can be passed anywhere a []byte is expected.
//
// Callers surrender a Buffer with Release once they have finished with it.  Release overwrites
// the contents, which matters for exported contexts holding session keys, and leaves an empty
// buffer.  Releasing an empty or already released buffer does nothing.  Buffers supplied by the
// caller are never modified by the engine.
type Buffer []byte

// Release zeroes the buffer contents and sets the buffer to nil.
func (b *Buffer) Release() {
	if b == nil || *b == nil {
		return
	}

	clear(*b)
	*b = nil
}

// Len returns the length of the buffer.
func (b Buffer) Len() int {
	return len(b)
}

// newBuffer copies src into an engine-owned buffer.  An empty source produces a nil buffer.
func newBuffer(src []byte) Buffer {
	if len(src) == 0 {
		return nil
	}

	b := make(Buffer, len(src))
	copy(b, src)
	return b
}
