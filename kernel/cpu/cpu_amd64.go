// Package cpu provides access to the privileged amd64 instructions that the
// memory management core depends on.
package cpu

// Halt stops instruction execution.
func Halt()

// EnableInterrupts enables external interrupt delivery on the current
// processor.
func EnableInterrupts()

// DisableInterrupts disables external interrupt delivery on the current
// processor.
func DisableInterrupts()

// InterruptsEnabled returns true if the interrupt flag (IF) in the RFLAGS
// register is set.
func InterruptsEnabled() bool
