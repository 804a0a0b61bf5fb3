package kfmt

import "io"

// earlyBufferSize defines the size of the ring buffer that captures Printf
// output emitted before a console is attached. It must be a power of 2.
const earlyBufferSize = 2048

// ringBuffer models a fixed-size ring buffer that overwrites its oldest
// contents once full. It buffers boot output until SetOutputSink drains it
// into a real console writer.
type ringBuffer struct {
	data           [earlyBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ring buffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (earlyBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (earlyBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns the number of bytes read
// and io.EOF once the buffer contents have been fully consumed.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	var n int

	switch {
	case rb.rIndex < rb.wIndex:
		n = rb.wIndex - rb.rIndex
		if pLen := len(p); pLen < n {
			n = pLen
		}

		copy(p, rb.data[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n

		return n, nil
	case rb.rIndex > rb.wIndex:
		// The contents wrap around; serve the tail segment first.
		n = len(rb.data) - rb.rIndex
		if pLen := len(p); pLen < n {
			n = pLen
		}

		copy(p, rb.data[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n

		if rb.rIndex == len(rb.data) {
			rb.rIndex = 0
		}

		return n, nil
	default: // rIndex == wIndex
		return 0, io.EOF
	}
}
