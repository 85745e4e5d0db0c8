package reactor

import "sync/atomic"

// bufRef is the shared, reference-counted backing store for a Buffer.
// Multiple Buffer values can point at the same bufRef with different
// start/end windows; the storage itself is freed (or returned to a pool)
// only when the last reference drops it.
type bufRef struct {
	data     []byte
	refcount atomic.Int32
	release  func([]byte)
}

// Buffer is an immutable, reference-counted window over a byte region with
// a movable start cursor. The zero Buffer is a valid empty
// buffer and is what Kill(Empty()) sends.
type Buffer struct {
	ref        *bufRef
	start, end int
}

// NewBuffer wraps data in a Buffer with no pooled backing store; releasing
// it is a no-op beyond dropping the reference.
func NewBuffer(data []byte) Buffer {
	return newBuffer(data, nil)
}

// Empty returns the zero-length Buffer used by Kill to mean "no final
// payload, just close after the queue drains".
func Empty() Buffer {
	return Buffer{}
}

func newBuffer(data []byte, release func([]byte)) Buffer {
	ref := &bufRef{data: data, release: release}
	ref.refcount.Store(1)
	return Buffer{ref: ref, start: 0, end: len(data)}
}

// Len reports the number of bytes remaining to send in this window.
func (b Buffer) Len() int {
	if b.ref == nil {
		return 0
	}
	return b.end - b.start
}

// Bytes returns the window's bytes. The caller must not retain or mutate
// the returned slice past the Buffer's lifetime.
func (b Buffer) Bytes() []byte {
	if b.ref == nil {
		return nil
	}
	return b.ref.data[b.start:b.end]
}

// IsZero reports whether b is the zero-value Buffer.
func (b Buffer) IsZero() bool {
	return b.ref == nil
}

// Advance moves the start cursor forward by n bytes, narrowing the window.
// It shares the same underlying reference and does not change the
// refcount: this is partial-write bookkeeping, not a new ownership claim.
func (b Buffer) Advance(n int) Buffer {
	if n < 0 || n > b.Len() {
		panic("reactor: Buffer.Advance out of range")
	}
	b.start += n
	return b
}

// Clone shares the storage and increments the refcount. Clone is O(1).
func (b Buffer) Clone() Buffer {
	if b.ref != nil {
		b.ref.refcount.Add(1)
	}
	return b
}

// Release drops this reference. When the refcount reaches zero the
// backing store's release callback runs (for pooled buffers, this returns
// the storage to its pool).
func (b Buffer) Release() {
	if b.ref == nil {
		return
	}
	if b.ref.refcount.Add(-1) == 0 && b.ref.release != nil {
		b.ref.release(b.ref.data)
	}
}
