// Package heap provides a minimal page-backed allocator for variable-sized
// kernel objects. Each request is served by a whole page of the smallest
// granularity that fits it; the page is zeroed before it is handed out.
package heap

import (
	"helios/kernel"
	"helios/kernel/mem"
	"helios/kernel/mem/pmm/allocator"
)

var errAllocTooLarge = &kernel.Error{Module: "heap", Message: "allocation request exceeds the maximum supported page size"}

// The page allocator entrypoints are accessed via variables so tests can
// substitute them.
var (
	allocPageFn = allocator.AllocatePage
	freePageFn  = allocator.FreePage
)

// Alloc reserves enough zeroed, physically contiguous memory to hold size
// bytes and returns its address. Requests up to 4KB are backed by a 4KB
// frame, larger requests up to 2MB by a 2MB superpage. Requests above 2MB
// cannot be served by a single page and fail with a recoverable error.
func Alloc(size mem.Size) (uintptr, *kernel.Error) {
	pageSize, err := pageSizeFor(size)
	if err != nil {
		return 0, err
	}

	addr, err := allocPageFn(pageSize)
	if err != nil {
		return 0, err
	}

	kernel.Memset(addr, 0, pageBytes(pageSize))
	return addr, nil
}

// Free releases memory previously obtained via Alloc. The size argument must
// match the one passed to Alloc so the backing page is returned at the
// granularity it was reserved with.
func Free(addr uintptr, size mem.Size) *kernel.Error {
	pageSize, err := pageSizeFor(size)
	if err != nil {
		return err
	}

	freePageFn(addr, pageSize)
	return nil
}

func pageSizeFor(size mem.Size) (allocator.PageSize, *kernel.Error) {
	switch {
	case size <= mem.PageSize:
		return allocator.Size4KB, nil
	case size <= mem.SuperpageSize:
		return allocator.Size2MB, nil
	default:
		return 0, errAllocTooLarge
	}
}

func pageBytes(pageSize allocator.PageSize) uintptr {
	if pageSize == allocator.Size2MB {
		return uintptr(mem.SuperpageSize)
	}
	return uintptr(mem.PageSize)
}
