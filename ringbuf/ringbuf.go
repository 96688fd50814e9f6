// Package ringbuf provides the bounded circular byte buffer that decouples
// a UART receive interrupt from the polling loop. One context puts, the
// other gets; the buffer itself does no locking.
package ringbuf

// Ring is a fixed-capacity circular byte buffer.
type Ring struct {
	buf  []byte
	head int // next byte to read
	tail int // next byte to write
	full bool
}

// New returns a ring holding at most size bytes.
func New(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{buf: make([]byte, size)}
}

// Put copies as much of data as fits and returns the number of bytes
// stored. Excess bytes are dropped.
func (r *Ring) Put(data []byte) int {
	n := 0
	for _, b := range data {
		if r.full {
			break
		}
		r.buf[r.tail] = b
		r.tail = (r.tail + 1) % len(r.buf)
		r.full = r.tail == r.head
		n++
	}
	return n
}

// Get copies up to len(buf) bytes out of the ring and returns the number
// copied. Returns 0 when the ring is empty.
func (r *Ring) Get(buf []byte) int {
	n := 0
	for n < len(buf) && (r.full || r.head != r.tail) {
		buf[n] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.full = false
		n++
	}
	return n
}

// DataLen returns the number of bytes waiting in the ring.
func (r *Ring) DataLen() int {
	if r.full {
		return len(r.buf)
	}
	if r.tail >= r.head {
		return r.tail - r.head
	}
	return len(r.buf) - r.head + r.tail
}

// SpaceLen returns the number of bytes the ring can still accept.
func (r *Ring) SpaceLen() int {
	return len(r.buf) - r.DataLen()
}

// Reset discards all buffered bytes.
func (r *Ring) Reset() {
	r.head = 0
	r.tail = 0
	r.full = false
}
