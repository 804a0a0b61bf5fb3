package multiboot

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"
)

var (
	// A synthetic multiboot info blob describing the classic qemu layout:
	// 640K of low memory, a reserved hole and the main high-memory region.
	// The final entry carries a bogus type value that the parser must
	// normalize to MemReserved.
	mmapInfoData = encodeInfo([]MemoryMapEntry{
		{PhysAddress: 0, Length: 0x9fc00, Type: MemAvailable},
		{PhysAddress: 0x9fc00, Length: 0x400, Type: MemReserved},
		{PhysAddress: 0x100000, Length: 0x7ee0000, Type: MemAvailable},
		{PhysAddress: 0xfffc0000, Length: 0x40000, Type: MemoryEntryType(99)},
	})

	// An info blob that carries no tags at all.
	emptyInfoData = encodeInfo(nil)
)

func TestVisitMemRegions(t *testing.T) {
	SetInfoPtr(uintptr(unsafe.Pointer(&mmapInfoData[0])))

	type regionSpec struct {
		physAddress uint64
		length      uint64
		entryType   MemoryEntryType
	}

	expRegions := []regionSpec{
		{0, 0x9fc00, MemAvailable},
		{0x9fc00, 0x400, MemReserved},
		{0x100000, 0x7ee0000, MemAvailable},
		{0xfffc0000, 0x40000, MemReserved},
	}

	var got []regionSpec
	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		got = append(got, regionSpec{entry.PhysAddress, entry.Length, entry.Type})
		return true
	})

	if len(got) != len(expRegions) {
		t.Fatalf("expected visitor to be invoked for %d regions; got %d", len(expRegions), len(got))
	}

	for index, exp := range expRegions {
		if got[index] != exp {
			t.Errorf("[region %d] expected %+v; got %+v", index, exp, got[index])
		}
	}
}

func TestVisitMemRegionsAbort(t *testing.T) {
	SetInfoPtr(uintptr(unsafe.Pointer(&mmapInfoData[0])))

	visitCount := 0
	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		visitCount++
		return false
	})

	if visitCount != 1 {
		t.Fatalf("expected the scan to stop after the first region; visited %d", visitCount)
	}
}

func TestVisitMemRegionsMissingTag(t *testing.T) {
	SetInfoPtr(uintptr(unsafe.Pointer(&emptyInfoData[0])))

	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		t.Fatal("expected the visitor not to be invoked when no memory map tag is present")
		return true
	})
}

func TestMemoryEntryTypeString(t *testing.T) {
	specs := []struct {
		entryType MemoryEntryType
		exp       string
	}{
		{MemAvailable, "available"},
		{MemReserved, "reserved"},
		{MemAcpiReclaimable, "ACPI (reclaimable)"},
		{MemNvs, "NVS"},
		{MemoryEntryType(0xbad), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.entryType.String(); got != spec.exp {
			t.Errorf("[spec %d] expected String() to return %q; got %q", specIndex, spec.exp, got)
		}
	}
}

// encodeInfo assembles a minimal multiboot2 info section containing a memory
// map tag with the supplied entries (when non-nil) followed by the end tag.
func encodeInfo(entries []MemoryMapEntry) []byte {
	var buf bytes.Buffer

	// Info header: total size (patched below) and the reserved dword.
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	if entries != nil {
		binary.Write(&buf, binary.LittleEndian, uint32(tagMemoryMap))
		binary.Write(&buf, binary.LittleEndian, uint32(8+8+24*len(entries)))
		binary.Write(&buf, binary.LittleEndian, uint32(24)) // entry size
		binary.Write(&buf, binary.LittleEndian, uint32(0))  // entry version

		for _, entry := range entries {
			binary.Write(&buf, binary.LittleEndian, entry.PhysAddress)
			binary.Write(&buf, binary.LittleEndian, entry.Length)
			binary.Write(&buf, binary.LittleEndian, uint32(entry.Type))
			binary.Write(&buf, binary.LittleEndian, uint32(0)) // reserved
		}
	}

	// End tag.
	binary.Write(&buf, binary.LittleEndian, uint32(tagSectionEnd))
	binary.Write(&buf, binary.LittleEndian, uint32(8))

	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(data)))
	return data
}
