package allocator

import (
	"bytes"
	"strings"
	"testing"
	"unsafe"

	"helios/kernel/hal/multiboot"
	"helios/kernel/kfmt"
)

func TestInit(t *testing.T) {
	defer func(orig func(uintptr, uint64) []pageMetadata) { placeMetadataFn = orig }(placeMetadataFn)
	placeMetadataFn = func(_ uintptr, entries uint64) []pageMetadata {
		return make([]pageMetadata, entries)
	}

	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&qemuInfoData[0])))

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	if err := Init(0x1fa7c8); err != nil {
		t.Fatal(err)
	}

	// The boot log lists every memory map region with its type.
	for _, exp := range []string{"system memory map", "available", "reserved", "free pages"} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected the boot log to mention %q; log was:\n%s", exp, buf.String())
		}
	}

	addr, err := AllocatePage(Size4KB)
	if err != nil {
		t.Fatal(err)
	}

	if addr&uintptr(0xfff) != 0 {
		t.Errorf("expected a page-aligned address; got 0x%x", addr)
	}

	statsBefore := FreeStats()
	FreePage(addr, Size4KB)

	if statsAfter := FreeStats(); statsAfter.Free4KBFrames != statsBefore.Free4KBFrames+1 {
		t.Errorf("expected the freed frame to rejoin the free list; stats went from %+v to %+v", statsBefore, statsAfter)
	}
}
