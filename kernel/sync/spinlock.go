// Package sync provides the interrupt-safe spinlock that guards the kernel's
// page allocation structures.
package sync

import (
	"sync/atomic"

	"helios/kernel/cpu"
)

var (
	// Interrupt control is routed through these hooks so that builds
	// targeting a hosted environment (including the test suite) can
	// substitute implementations that do not require ring 0 privileges.
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts

	// TODO: replace with real yield function when context-switching is implemented.
	yieldFn func()
)

// SetInterruptControl replaces the interrupt control hooks used while
// acquiring and releasing locks and returns the previous hooks so callers can
// restore them. Kernel builds keep the defaults which map directly to the
// CLI/STI instructions.
func SetInterruptControl(enabled func() bool, disable, enable func()) (func() bool, func(), func()) {
	prevEnabled, prevDisable, prevEnable := interruptsEnabledFn, disableInterruptsFn, enableInterruptsFn
	interruptsEnabledFn, disableInterruptsFn, enableInterruptsFn = enabled, disable, enable
	return prevEnabled, prevDisable, prevEnable
}

// IrqSpinlock implements a spinlock that disables interrupt delivery on the
// current processor for the duration of its critical section.
//
// Allocator code runs both in normal kernel context and inside interrupt
// handlers that may themselves allocate. A lock that merely spins would
// self-deadlock if an interrupt fired while the lock was held and its handler
// tried to acquire the same lock, so interrupts are masked before spinning
// and restored to their exact prior state on release.
type IrqSpinlock struct {
	state uint32

	// restoreInterrupts records whether interrupts were enabled when the
	// lock was last acquired. It is only read and written while the lock
	// is held with interrupts disabled, which makes the plain field safe
	// on the single logical processor this kernel targets.
	restoreInterrupts bool
}

// Lock records the current interrupt state, disables interrupts and blocks
// until the lock can be acquired. Any attempt to re-acquire a lock already
// held by the current execution context will cause a deadlock.
func (l *IrqSpinlock) Lock() {
	wasEnabled := interruptsEnabledFn()
	disableInterruptsFn()

	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		if yieldFn != nil {
			yieldFn()
		}
	}

	l.restoreInterrupts = wasEnabled
}

// TryLock attempts to acquire the lock without blocking and returns true if
// it succeeded. When the lock cannot be acquired the interrupt state captured
// on entry is restored before returning.
func (l *IrqSpinlock) TryLock() bool {
	wasEnabled := interruptsEnabledFn()
	disableInterruptsFn()

	if !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		if wasEnabled {
			enableInterruptsFn()
		}
		return false
	}

	l.restoreInterrupts = wasEnabled
	return true
}

// Unlock relinquishes a held lock and re-enables interrupts only if they were
// enabled when this particular acquisition took place. A lock acquired inside
// an interrupt handler (interrupts already disabled) therefore never
// re-enables interrupts prematurely on release.
func (l *IrqSpinlock) Unlock() {
	restore := l.restoreInterrupts
	l.restoreInterrupts = false
	atomic.StoreUint32(&l.state, 0)

	if restore {
		enableInterruptsFn()
	}
}
