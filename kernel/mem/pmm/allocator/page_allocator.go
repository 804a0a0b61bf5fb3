package allocator

import (
	"unsafe"

	"helios/kernel"
	"helios/kernel/hal/multiboot"
	"helios/kernel/mem"
	"helios/kernel/mem/pmm"
	"helios/kernel/sync"
)

var (
	errPageAllocOutOfMemory    = &kernel.Error{Module: "page_alloc", Message: "out of memory"}
	errPageAllocNoUsableMemory = &kernel.Error{Module: "page_alloc", Message: "no available memory regions in multiboot memory map"}
)

// PageSize selects the granularity of an allocation request.
type PageSize uint8

const (
	// Size4KB requests a single 4KB frame.
	Size4KB PageSize = iota

	// Size2MB requests a 2MB superpage.
	Size2MB
)

// maxTrackedBytes caps the amount of physical memory the allocator tracks so
// the metadata array size stays bounded. Memory above the cap is simply never
// handed out.
const maxTrackedBytes = uint64(4 * mem.Gb)

// freeList maintains the head of a doubly-linked list of free frames at one
// allocation granularity. The links themselves live inside the page metadata
// entries; the list only stores the head index and the lock that guards it.
type freeList struct {
	lock sync.IrqSpinlock
	head uint32
}

// Stats describes the amount of free memory tracked by the allocator at one
// point in time.
type Stats struct {
	// Free4KBFrames is the number of frames on the 4KB free list.
	Free4KBFrames uint64

	// Free2MBSuperpages is the number of superpages on the 2MB free list.
	Free2MBSuperpages uint64
}

// PageAllocator implements the kernel's physical page allocator. It tracks
// every 4KB frame below the tracking cap via a statically-placed metadata
// array and maintains two LIFO free lists, one per supported page size.
// Free 2MB superpages are split into 512 4KB frames on demand and 512
// individually freed frames coalesce back into a superpage.
//
// Allocator operations may run both in kernel context and inside interrupt
// handlers; every list mutation happens under that list's interrupt-safe
// lock and the two locks are never held at the same time.
type PageAllocator struct {
	// pages holds one metadata entry per tracked frame, indexed by frame
	// number. The array is overlaid on the physical memory that
	// immediately follows the kernel image.
	pages []pageMetadata

	free4KB freeList
	free2MB freeList

	// reservedEndFrame is the first frame past the kernel image and the
	// metadata array. Frames below it are never marked available.
	reservedEndFrame pmm.Frame

	// totalPages is the number of tracked frames.
	totalPages uint64
}

// Init scans the multiboot memory map, places the page metadata array at the
// first page-aligned address after kernelEnd and constructs the free lists
// for both page sizes. It must be called exactly once, before interrupts are
// enabled and before any allocation request.
//
// Init returns an error if the memory map defines no available regions; the
// kernel cannot continue booting without validated memory topology.
func (alloc *PageAllocator) Init(kernelEnd uintptr) *kernel.Error {
	var maxAddr uint64
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type == multiboot.MemAvailable {
			if end := region.PhysAddress + region.Length; end > maxAddr {
				maxAddr = end
			}
		}
		return true
	})

	if maxAddr == 0 {
		return errPageAllocNoUsableMemory
	}

	if maxAddr > maxTrackedBytes {
		maxAddr = maxTrackedBytes
	}

	pageSizeMinus1 := uintptr(mem.PageSize - 1)
	alloc.totalPages = (maxAddr + uint64(mem.PageSize) - 1) >> mem.PageShift

	// The metadata array claims the first page-aligned region after the
	// kernel image; the claimed region is rounded up to a page boundary
	// and excluded from availability marking below.
	arrayBase := (kernelEnd + pageSizeMinus1) & ^pageSizeMinus1
	arrayBytes := uintptr(alloc.totalPages) * unsafe.Sizeof(pageMetadata{})
	reservedEnd := (arrayBase + arrayBytes + pageSizeMinus1) & ^pageSizeMinus1
	alloc.reservedEndFrame = pmm.FrameFromAddress(reservedEnd)

	alloc.pages = placeMetadataFn(arrayBase, alloc.totalPages)
	for i := range alloc.pages {
		alloc.pages[i] = pageMetadata{state: stateUnavailable, next: nilLink, prev: nilLink}
	}

	alloc.free4KB.head = nilLink
	alloc.free2MB.head = nilLink

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type == multiboot.MemAvailable {
			alloc.markAvailable(region.PhysAddress, region.Length)
		}
		return true
	})

	alloc.buildFreeLists()
	return nil
}

// markAvailable classifies the frames covered by an available memory map
// region. Frame ranges that are 2MB-aligned and fully contained in the
// region become superpages tracked via their head frame; everything else is
// tracked frame by frame. Frames below the reserved-end boundary (kernel
// image plus metadata array) and beyond the tracking cap are skipped.
func (alloc *PageAllocator) markAvailable(base, length uint64) {
	startFrame := base >> mem.PageShift
	endFrame := (base + length) >> mem.PageShift

	if reserved := uint64(alloc.reservedEndFrame); startFrame < reserved {
		startFrame = reserved
	}

	superpageFrames := uint64(framesPerSuperpage)
	for frame := startFrame; frame < endFrame && frame < alloc.totalPages; {
		if frame&(superpageFrames-1) == 0 && frame+superpageFrames <= endFrame && frame+superpageFrames <= alloc.totalPages {
			alloc.pages[frame].state = stateFree2MB
			alloc.pages[frame].counter = uint16(framesPerSuperpage)

			// Non-head members are only ever addressed through the head.
			for i := uint64(1); i < superpageFrames; i++ {
				alloc.pages[frame+i].state = stateUnavailable
			}

			frame += superpageFrames
			continue
		}

		alloc.pages[frame].state = stateFree4KB
		frame++
	}
}

// buildFreeLists links every frame classified by markAvailable into the free
// list for its granularity. It runs once during Init, before interrupts are
// enabled, so the lists are built without taking their locks.
func (alloc *PageAllocator) buildFreeLists() {
	for frame := uint64(0); frame < alloc.totalPages; frame++ {
		switch alloc.pages[frame].state {
		case stateFree4KB:
			alloc.push(&alloc.free4KB, uint32(frame))
		case stateFree2MB:
			alloc.push(&alloc.free2MB, uint32(frame))
		}
	}
}

// AllocatePage reserves a free page with the requested size and returns its
// physical address. The returned address is always aligned to the requested
// size. When no page can be served, errPageAllocOutOfMemory is returned;
// exhaustion is an expected, recoverable condition that callers such as the
// heap layer handle by trying another size class or propagating the failure.
func (alloc *PageAllocator) AllocatePage(size PageSize) (uintptr, *kernel.Error) {
	if size == Size2MB {
		return alloc.allocate2MB()
	}
	return alloc.allocate4KB()
}

func (alloc *PageAllocator) allocate4KB() (uintptr, *kernel.Error) {
	index, ok := alloc.popFree4KB()
	if !ok && alloc.split() {
		// A superpage was torn into 512 free frames; retry once.
		index, ok = alloc.popFree4KB()
	}

	if !ok {
		return 0, errPageAllocOutOfMemory
	}

	return pmm.Frame(index).Address(), nil
}

// popFree4KB removes the head of the 4KB free list, marks it allocated and
// applies the saturating decrement to its superpage head counter.
func (alloc *PageAllocator) popFree4KB() (uint32, bool) {
	alloc.free4KB.lock.Lock()

	index, ok := alloc.pop(&alloc.free4KB)
	if ok {
		alloc.pages[index].state = stateAllocated4KB

		head := index &^ (framesPerSuperpage - 1)
		if alloc.pages[head].counter > 0 {
			alloc.pages[head].counter--
		}
	}

	alloc.free4KB.lock.Unlock()
	return index, ok
}

func (alloc *PageAllocator) allocate2MB() (uintptr, *kernel.Error) {
	alloc.free2MB.lock.Lock()

	index, ok := alloc.pop(&alloc.free2MB)
	if ok {
		alloc.pages[index].state = stateAllocated2MB
	}

	alloc.free2MB.lock.Unlock()

	if !ok {
		// 2MB requests never decompose smaller blocks.
		return 0, errPageAllocOutOfMemory
	}

	return pmm.Frame(index).Address(), nil
}

// split converts one free 2MB superpage into 512 individually free 4KB
// frames and returns true on success. All 512 frames enter the 4KB list
// under a single lock acquisition so no caller can observe a partial split.
func (alloc *PageAllocator) split() bool {
	alloc.free2MB.lock.Lock()
	head, ok := alloc.pop(&alloc.free2MB)
	alloc.free2MB.lock.Unlock()

	if !ok {
		return false
	}

	alloc.free4KB.lock.Lock()
	for offset := uint32(0); offset < framesPerSuperpage; offset++ {
		alloc.pages[head+offset].state = stateFree4KB
		alloc.push(&alloc.free4KB, head+offset)
	}

	// The counter tracks how many of the 512 frames have been freed
	// individually; a freshly split superpage has had none freed yet, so
	// it restarts at zero and re-accumulates through subsequent frees.
	alloc.pages[head].counter = 0
	alloc.free4KB.lock.Unlock()

	return true
}

// FreePage returns the page at the given physical address to the allocator.
// Callers must pass the same size that was used when the page was allocated;
// freeing with a mismatched size makes the allocator misclassify frames and
// is not detectable beyond the alignment flooring applied here.
//
// Freeing a 4KB page that is already free is a no-op.
func (alloc *PageAllocator) FreePage(addr uintptr, size PageSize) {
	frame := pmm.FrameFromAddress(addr)

	if size == Size2MB {
		alloc.free2MBPage(uint32(frame.SuperpageHead()))
		return
	}

	alloc.free4KBPage(uint32(frame))
}

func (alloc *PageAllocator) free4KBPage(index uint32) {
	if uint64(index) >= alloc.totalPages {
		return
	}

	alloc.free4KB.lock.Lock()

	if alloc.pages[index].state == stateFree4KB {
		// Double free. Dropping the request keeps the list intact.
		alloc.free4KB.lock.Unlock()
		return
	}

	alloc.pages[index].state = stateFree4KB
	alloc.push(&alloc.free4KB, index)

	head := index &^ (framesPerSuperpage - 1)
	if alloc.pages[head].counter < uint16(framesPerSuperpage) {
		alloc.pages[head].counter++
	}
	tryMerge := alloc.pages[head].counter == uint16(framesPerSuperpage)

	alloc.free4KB.lock.Unlock()

	if tryMerge {
		alloc.merge(head)
	}
}

func (alloc *PageAllocator) free2MBPage(index uint32) {
	if uint64(index) >= alloc.totalPages {
		return
	}

	alloc.free2MB.lock.Lock()

	if alloc.pages[index].state != stateFree2MB {
		alloc.pages[index].state = stateFree2MB
		alloc.pages[index].counter = uint16(framesPerSuperpage)
		alloc.push(&alloc.free2MB, index)
	}

	alloc.free2MB.lock.Unlock()
}

// merge attempts to recombine the 512 frames of the superpage headed by head
// into a single free 2MB block. The superpage counter that triggered the
// merge is not trusted on its own: the state of all 512 frames is re-checked
// under the 4KB list lock before any of them is unlinked, so counter drift
// can never corrupt the lists.
func (alloc *PageAllocator) merge(head uint32) {
	end := uint64(head) + uint64(framesPerSuperpage)
	if end > alloc.totalPages {
		return
	}

	alloc.free4KB.lock.Lock()

	for index := head; uint64(index) < end; index++ {
		if alloc.pages[index].state != stateFree4KB {
			alloc.free4KB.lock.Unlock()
			return
		}
	}

	for index := head; uint64(index) < end; index++ {
		alloc.unlink(&alloc.free4KB, index)
		if index != head {
			alloc.pages[index].state = stateUnavailable
		}
	}

	alloc.pages[head].state = stateFree2MB
	alloc.pages[head].counter = uint16(framesPerSuperpage)

	alloc.free4KB.lock.Unlock()

	alloc.free2MB.lock.Lock()
	alloc.push(&alloc.free2MB, head)
	alloc.free2MB.lock.Unlock()
}

// FreeStats scans the metadata array and reports the current amount of free
// memory per page size. It is intended for boot-time diagnostics; the scan
// is linear in the number of tracked frames and takes no locks.
func (alloc *PageAllocator) FreeStats() Stats {
	var stats Stats

	for frame := uint64(0); frame < alloc.totalPages; frame++ {
		switch alloc.pages[frame].state {
		case stateFree4KB:
			stats.Free4KBFrames++
		case stateFree2MB:
			stats.Free2MBSuperpages++
		}
	}

	return stats
}

// push inserts the frame at the head of the list. The caller must hold the
// list lock.
func (alloc *PageAllocator) push(list *freeList, index uint32) {
	meta := &alloc.pages[index]
	meta.next = list.head
	meta.prev = nilLink

	if list.head != nilLink {
		alloc.pages[list.head].prev = index
	}

	list.head = index
}

// pop removes and returns the frame at the head of the list. The caller must
// hold the list lock.
func (alloc *PageAllocator) pop(list *freeList) (uint32, bool) {
	index := list.head
	if index == nilLink {
		return nilLink, false
	}

	meta := &alloc.pages[index]
	list.head = meta.next

	if meta.next != nilLink {
		alloc.pages[meta.next].prev = nilLink
	}

	meta.next, meta.prev = nilLink, nilLink
	return index, true
}

// unlink removes the frame from any position in the list, retargeting the
// list head when the frame currently occupies it. The caller must hold the
// list lock.
func (alloc *PageAllocator) unlink(list *freeList, index uint32) {
	meta := &alloc.pages[index]

	if meta.prev != nilLink {
		alloc.pages[meta.prev].next = meta.next
	} else if list.head == index {
		list.head = meta.next
	}

	if meta.next != nilLink {
		alloc.pages[meta.next].prev = meta.prev
	}

	meta.next, meta.prev = nilLink, nilLink
}
