package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		// bool values
		{
			func() { printfn("%t and %t", true, false) },
			"true and false",
		},
		// strings and byte slices
		{
			func() { printfn("[%s] %s", "pmm", []byte("marking available regions")) },
			"[pmm] marking available regions",
		},
		{
			func() { printfn("'%6s'", "free") },
			"'  free'",
		},
		{
			func() { printfn("'%2s' longer than padding", "available") },
			"'available' longer than padding",
		},
		// uints
		{
			func() { printfn("%d free frames", uint64(32768)) },
			"32768 free frames",
		},
		{
			func() { printfn("flags: %o", uint16(0644)) },
			"flags: 644",
		},
		{
			func() { printfn("[0x%10x - 0x%10x]", uint64(0x100000), uint64(0x7fe0000)) },
			"[0x0000100000 - 0x0007fe0000]",
		},
		{
			func() { printfn("'%6d'", uint32(123)) },
			"'   123'",
		},
		// pointers
		{
			func() { printfn("frame address 0x%x", uintptr(0xb8000)) },
			"frame address 0xb8000",
		},
		// ints
		{
			func() { printfn("%d", int8(-10)) },
			"-10",
		},
		{
			func() { printfn("'%5d'", int16(-42)) },
			"'  -42'",
		},
		{
			func() { printfn("%d/%d", int32(-1), int64(12345678)) },
			"-1/12345678",
		},
		{
			func() { printfn("%d", -9000) },
			"-9000",
		},
		// literal % and consecutive verbs
		{
			func() { printfn("100%% of %d is %d", 512, 512) },
			"100% of 512 is 512",
		},
		// errors
		{
			func() { printfn("%d", "not a number") },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%t", 42) },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%s", 42) },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%d %d", 1) },
			"1 (MISSING)",
		},
		{
			func() { printfn("%d", 1, 2) },
			"1%!(EXTRA)",
		},
		{
			func() { printfn("%") },
			"%!(NOVERB)",
		},
		{
			func() { printfn("%q", "verb not supported") },
			"%!(NOVERB)%!(EXTRA)",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
	}()
	outputSink = nil

	Printf("[%s] this message is buffered until a sink attaches", "kmain")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	exp := "[kmain] this message is buffered until a sink attaches"
	if got := buf.String(); got != exp {
		t.Fatalf("expected the early print buffer to be drained into the sink; got %q", got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer

	Fprintf(&buf, "%d+%d", 1, 2)

	if exp, got := "1+2", buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}
