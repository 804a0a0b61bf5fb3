// Package pmm contains the types used for tracking physical memory frames.
package pmm

import (
	"math"

	"helios/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when they fail to
	// reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// SuperpageHead returns the frame that serves as the head of the 2MB
// superpage containing this frame, that is, f rounded down to the nearest
// 512-frame boundary.
func (f Frame) SuperpageHead() Frame {
	return f & ^Frame(mem.FramesPerSuperpage-1)
}

// IsSuperpageAligned returns true if this frame is the head of a 2MB
// superpage.
func (f Frame) IsSuperpageAligned() bool {
	return f&Frame(mem.FramesPerSuperpage-1) == 0
}

// FrameFromAddress returns the Frame that contains the given physical
// address. This function can handle both page-aligned and unaligned
// addresses; in the latter case, the input address is rounded down to the
// frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(mem.PageSize - 1))) >> mem.PageShift)
}
