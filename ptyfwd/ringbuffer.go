// Package ptyfwd forwards a container's controlling pty to any number of
// attached clients, grounded on pty_process::buffer::Buffer and
// pty_process::kqueue_forwarder::PtyForwarder: a Forwarder multiplexes one
// pty master onto many Unix-socket clients using blocking goroutines and a
// mutex (it does not use kqueue), keeping a fixed-size tail of scrollback
// so a client attaching late still sees recent output instead of starting
// from a blank screen.
package ptyfwd

import "fmt"

// RingCapacity is the scrollback window kept per container, matching the
// 1 MiB fixed buffer size the original Buffer<N> instantiates with.
const RingCapacity = 1 << 20

// RingBuffer is a fixed-capacity byte ring that keeps only the most
// recently appended bytes, tracking the total byte count ever written so
// readers can resume from an arbitrary offset into the stream's history.
type RingBuffer struct {
	buf        []byte
	inputCount int
}

// NewRingBuffer allocates a ring of the given capacity. Production
// callers use RingCapacity; tests use a smaller size to keep fixtures
// legible.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Append writes src into the ring, overwriting the oldest bytes once the
// ring wraps. A single append larger than the capacity keeps only its own
// tail.
func (r *RingBuffer) Append(src []byte) {
	n := len(r.buf)
	total := len(src)
	startIndex := r.inputCount % n

	if len(src) >= n {
		src = src[len(src)-n:]
		delim := (r.inputCount + total) % n
		copy(r.buf[delim:], src[:n-delim])
		copy(r.buf[:delim], src[n-delim:])
	} else if n-startIndex > len(src) {
		copy(r.buf[startIndex:startIndex+len(src)], src)
	} else {
		firstLen := n - startIndex
		copy(r.buf[startIndex:], src[:firstLen])
		copy(r.buf[:len(src)-firstLen], src[firstLen:])
	}
	r.inputCount += total
}

// Len returns the total number of bytes ever appended, used by clients to
// track how much of the stream they have consumed.
func (r *RingBuffer) Len() int { return r.inputCount }

// ReadSince returns the bytes appended after offset, capped to whatever
// the ring still retains. An offset beyond what has been written is an
// error; an offset a full ring capacity or more behind the current write
// position silently returns only what the ring still holds (the oldest
// bytes beyond that window are already gone), the same best-effort
// contract as Buffer::read_to_sync.
func (r *RingBuffer) ReadSince(offset int) ([]byte, error) {
	n := len(r.buf)
	if offset > r.inputCount {
		return nil, fmt.Errorf("ptyfwd: offset %d is ahead of %d bytes written", offset, r.inputCount)
	}

	if r.inputCount-offset >= n {
		// caller is too far behind; hand back the whole retained window.
		start := r.inputCount % n
		out := make([]byte, 0, n)
		out = append(out, r.buf[start:]...)
		out = append(out, r.buf[:start]...)
		return out, nil
	}

	if r.inputCount < n {
		out := make([]byte, r.inputCount-offset)
		copy(out, r.buf[offset:r.inputCount])
		return out, nil
	}

	prevIndex := offset % n
	currIndex := r.inputCount % n
	if currIndex > prevIndex {
		out := make([]byte, currIndex-prevIndex)
		copy(out, r.buf[prevIndex:currIndex])
		return out, nil
	}
	out := make([]byte, 0, (n-prevIndex)+currIndex)
	out = append(out, r.buf[prevIndex:]...)
	out = append(out, r.buf[:currIndex]...)
	return out, nil
}
