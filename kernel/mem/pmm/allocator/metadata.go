package allocator

import (
	"reflect"
	"unsafe"

	"helios/kernel/mem"
)

const (
	// framesPerSuperpage is the number of 4KB frames in a 2MB superpage.
	framesPerSuperpage = uint32(mem.SuperpageSize / mem.PageSize)

	// nilLink marks the absence of a neighbor in a free list. Frame 0 is a
	// valid frame number so the all-ones pattern serves as the nil value
	// for metadata links.
	nilLink = ^uint32(0)
)

// pageState describes what a tracked frame is currently used for.
type pageState uint8

const (
	// stateUnavailable marks frames the allocator must never hand out:
	// reserved/ACPI regions, the kernel image, the metadata array itself
	// and the non-head members of a 2MB superpage.
	stateUnavailable pageState = iota

	// stateFree4KB marks a frame that sits on the 4KB free list.
	stateFree4KB

	// stateFree2MB marks the head frame of a fully free superpage that
	// sits on the 2MB free list.
	stateFree2MB

	// stateAllocated4KB marks a frame handed out by a 4KB allocation.
	stateAllocated4KB

	// stateAllocated2MB marks a superpage head handed out by a 2MB
	// allocation.
	stateAllocated2MB
)

// pageMetadata tracks the state of a single 4KB physical frame. One entry
// exists for every tracked frame, stored in a contiguous array indexed by
// frame number.
type pageMetadata struct {
	state pageState

	// counter is only meaningful on frames that head a 2MB-aligned
	// 512-frame superpage. It counts how many of the superpage's frames
	// have been individually freed; reaching framesPerSuperpage triggers
	// a merge attempt.
	counter uint16

	// next and prev link this frame into a free list; both hold nilLink
	// while the frame is not a member of any list.
	next uint32
	prev uint32
}

// placeMetadataFn is used to overlay the metadata array on physical memory
// and can be swapped out by tests.
var placeMetadataFn = placeMetadata

// placeMetadata overlays a pageMetadata slice with the given number of
// entries on top of the physical memory region that starts at base.
func placeMetadata(base uintptr, entries uint64) []pageMetadata {
	return *(*[]pageMetadata)(unsafe.Pointer(&reflect.SliceHeader{
		Data: base,
		Len:  int(entries),
		Cap:  int(entries),
	}))
}
