// Package ringbuf implements the fixed-capacity byte ring used to stage
// inbound socket data for the parser.
package ringbuf

import "fmt"

// Ring is a single-owner circular byte buffer. One slot is always kept free
// so a full ring is distinguishable from an empty one; usable capacity is
// len(buf)-1.
type Ring struct {
	buf   []byte
	mask  int
	start int
	end   int
}

// New returns a ring of size bytes. size must be a power of two and at least 2.
func New(size int) (*Ring, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("ring size must be a power of two >= 2, got %d", size)
	}
	return &Ring{buf: make([]byte, size), mask: size - 1}, nil
}

// Cap returns the usable capacity.
func (r *Ring) Cap() int {
	return len(r.buf) - 1
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	return (r.end - r.start) & r.mask
}

// Free returns how many bytes can be written before the ring is full.
func (r *Ring) Free() int {
	return r.Cap() - r.Len()
}

func (r *Ring) IsEmpty() bool {
	return r.start == r.end
}

func (r *Ring) IsFull() bool {
	return (r.end+1)&r.mask == r.start
}

// Reset discards all buffered bytes.
func (r *Ring) Reset() {
	r.start, r.end = 0, 0
}

// Write copies as much of p as fits and returns the count written.
func (r *Ring) Write(p []byte) int {
	head, tail := r.WritableSegments()
	n := copy(head, p)
	n += copy(tail, p[n:])
	r.Commit(n)
	return n
}

// WritableSegments returns the free space as up to two slices: head runs from
// the write cursor towards the end of the array, tail wraps from index 0.
// Both exclude the reserved slot. Callers fill them and then Commit.
func (r *Ring) WritableSegments() (head, tail []byte) {
	if r.IsEmpty() {
		r.Reset()
	}
	free := r.Free()
	if free == 0 {
		return nil, nil
	}
	first := len(r.buf) - r.end
	if first > free {
		first = free
	}
	head = r.buf[r.end : r.end+first]
	if rest := free - first; rest > 0 {
		tail = r.buf[:rest]
	}
	return head, tail
}

// Commit marks n bytes of the writable segments as filled.
func (r *Ring) Commit(n int) {
	if n < 0 || n > r.Free() {
		panic(fmt.Sprintf("ringbuf: commit %d exceeds free space %d", n, r.Free()))
	}
	r.end = (r.end + n) & r.mask
}

// Read removes and returns exactly n bytes. It returns false, consuming
// nothing, when fewer than n bytes are buffered.
func (r *Ring) Read(n int) ([]byte, bool) {
	if n < 0 || r.Len() < n {
		return nil, false
	}
	out := make([]byte, n)
	r.take(out)
	return out, true
}

// ReadFull fills dst completely or consumes nothing.
func (r *Ring) ReadFull(dst []byte) bool {
	if r.Len() < len(dst) {
		return false
	}
	r.take(dst)
	return true
}

// ReadSome copies up to len(dst) buffered bytes into dst.
func (r *Ring) ReadSome(dst []byte) int {
	n := r.Len()
	if n > len(dst) {
		n = len(dst)
	}
	r.take(dst[:n])
	return n
}

// ReadByte removes one byte.
func (r *Ring) ReadByte() (byte, bool) {
	if r.IsEmpty() {
		return 0, false
	}
	b := r.buf[r.start]
	r.advance(1)
	return b, true
}

// Peek copies up to len(dst) bytes without consuming them.
func (r *Ring) Peek(dst []byte) int {
	n := r.Len()
	if n > len(dst) {
		n = len(dst)
	}
	first := len(r.buf) - r.start
	if first > n {
		first = n
	}
	copy(dst, r.buf[r.start:r.start+first])
	copy(dst[first:n], r.buf[:n-first])
	return n
}

func (r *Ring) take(dst []byte) {
	n := r.Peek(dst)
	r.advance(n)
}

func (r *Ring) advance(n int) {
	r.start = (r.start + n) & r.mask
	if r.start == r.end {
		r.Reset()
	}
}
