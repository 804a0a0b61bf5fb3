package pmm

import (
	"testing"

	"helios/kernel/mem"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<mem.PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestFrameSuperpageHelpers(t *testing.T) {
	specs := []struct {
		frame      Frame
		expHead    Frame
		expAligned bool
	}{
		{Frame(0), Frame(0), true},
		{Frame(1), Frame(0), false},
		{Frame(511), Frame(0), false},
		{Frame(512), Frame(512), true},
		{Frame(1023), Frame(512), false},
		{Frame(1024), Frame(1024), true},
	}

	for specIndex, spec := range specs {
		if got := spec.frame.SuperpageHead(); got != spec.expHead {
			t.Errorf("[spec %d] expected SuperpageHead() to return %d; got %d", specIndex, spec.expHead, got)
		}

		if got := spec.frame.IsSuperpageAligned(); got != spec.expAligned {
			t.Errorf("[spec %d] expected IsSuperpageAligned() to return %t; got %t", specIndex, spec.expAligned, got)
		}
	}
}
