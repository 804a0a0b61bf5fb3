// Package allocator implements the kernel's physical page allocator. Pages
// are served at two granularities (4KB frames and 2MB superpages) from
// per-size free lists built on top of a boot-time page metadata array.
package allocator

import (
	"helios/kernel"
	"helios/kernel/hal/multiboot"
	"helios/kernel/kfmt"
	"helios/kernel/mem"
)

// pageAllocator is the allocator instance that serves all page allocation
// requests for the lifetime of the kernel. It is initialized exactly once,
// by the Init call made from the kernel entry point.
var pageAllocator PageAllocator

// Init constructs the kernel page allocator using the memory map supplied by
// the bootloader and prints the discovered memory topology. kernelEnd must
// point to the first address past the loaded kernel image; the page metadata
// array is placed immediately after it.
func Init(kernelEnd uintptr) *kernel.Error {
	if err := pageAllocator.Init(kernelEnd); err != nil {
		return err
	}

	printMemoryMap()
	return nil
}

// AllocatePage reserves a page with the requested size using the kernel page
// allocator and returns its physical address. The address is always aligned
// to the requested size.
func AllocatePage(size PageSize) (uintptr, *kernel.Error) {
	return pageAllocator.AllocatePage(size)
}

// FreePage releases a page previously obtained via AllocatePage back to the
// kernel page allocator. The size argument must match the one used at
// allocation time.
func FreePage(addr uintptr, size PageSize) {
	pageAllocator.FreePage(addr, size)
}

// FreeStats reports the amount of free memory currently tracked by the
// kernel page allocator.
func FreeStats() Stats {
	return pageAllocator.FreeStats()
}

// printMemoryMap logs the memory region information provided by the
// bootloader together with the free page counts assembled from it.
func printMemoryMap() {
	kfmt.Printf("[page_alloc] system memory map:\n")

	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n",
			region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})

	stats := pageAllocator.FreeStats()
	kfmt.Printf("[page_alloc] available memory: %dKb\n", uint64(totalFree/mem.Kb))
	kfmt.Printf("[page_alloc] free pages: %d x 4KB, %d x 2MB\n",
		stats.Free4KBFrames, stats.Free2MBSuperpages)
}
