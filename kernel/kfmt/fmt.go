// Package kfmt provides a minimal, allocation-free Printf implementation
// that remains usable from the earliest stages of kernel boot.
package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf = []byte("01234567890123456789012345678901")

	// singleByte is used as a shared buffer for passing single characters
	// to doWrite.
	singleByte = []byte(" ")

	// earlyPrintBuffer is a ring buffer that stores Printf output emitted
	// before a console is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. While nil,
	// output is redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf to w and copies any data
// accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats its arguments according to format and writes the result to
// the registered output sink or, before a sink is attached, to the early
// print buffer. The implementation does not allocate any memory so it is safe
// to call before the Go allocator is operational.
//
// The following subset of fmt verbs is supported:
//
//	%s  string or byte slice
//	%o  integer, base 8
//	%d  integer, base 10
//	%x  integer, base 16 with lower-case letters
//	%t  boolean, "true" or "false"
//
// An optional decimal width may precede the verb. Short strings and base-10
// integers are left-padded with spaces; base-8 and base-16 integers are
// left-padded with zeroes.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextArg int
		index   int
		fmtLen  = len(format)
	)

	for index < fmtLen {
		ch := format[index]
		if ch != '%' {
			// Writing format[from:to] would allocate; emit a byte at a time.
			singleByte[0] = ch
			doWrite(w, singleByte)
			index++
			continue
		}

		// Consume the optional width that precedes the verb.
		index++
		padLen := 0
		for ; index < fmtLen && format[index] >= '0' && format[index] <= '9'; index++ {
			padLen = padLen*10 + int(format[index]-'0')
		}

		if index == fmtLen {
			doWrite(w, errNoVerb)
			break
		}

		verb := format[index]
		index++

		if verb == '%' {
			singleByte[0] = '%'
			doWrite(w, singleByte)
			continue
		}

		switch verb {
		case 'o', 'd', 'x', 's', 't':
			if nextArg >= len(args) {
				doWrite(w, errMissingArg)
				continue
			}

			switch verb {
			case 'o':
				fmtInt(w, args[nextArg], 8, padLen)
			case 'd':
				fmtInt(w, args[nextArg], 10, padLen)
			case 'x':
				fmtInt(w, args[nextArg], 16, padLen)
			case 's':
				fmtString(w, args[nextArg], padLen)
			case 't':
				fmtBool(w, args[nextArg])
			}

			nextArg++
		default:
			doWrite(w, errNoVerb)
		}
	}

	// Check for unused args
	for ; nextArg < len(args); nextArg++ {
		doWrite(w, errExtraArg)
	}
}

// fmtBool prints a formatted version of boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	bVal, isBool := v.(bool)
	if !isBool {
		doWrite(w, errWrongArgType)
		return
	}

	if bVal {
		doWrite(w, trueValue)
	} else {
		doWrite(w, falseValue)
	}
}

// fmtString prints a formatted version of string or []byte value v, applying
// the padding specified by padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch sVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(sVal))
		// Converting the string to a byte slice would allocate; emit a
		// byte at a time instead.
		for i := 0; i < len(sVal); i++ {
			singleByte[0] = sVal[i]
			doWrite(w, singleByte)
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(sVal))
		doWrite(w, sVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtRepeat writes count bytes with value ch.
func fmtRepeat(w io.Writer, ch byte, count int) {
	singleByte[0] = ch
	for i := 0; i < count; i++ {
		doWrite(w, singleByte)
	}
}

// fmtInt prints out a formatted version of v in the requested base, applying
// the padding specified by padLen. This function supports all built-in signed
// and unsigned integer types and base 8, 10 and 16 output.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		uval     uint64
		negative bool
		padCh    byte = '0'
	)

	if base == 10 {
		padCh = ' '
	}

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	switch iVal := v.(type) {
	case uint8:
		uval = uint64(iVal)
	case uint16:
		uval = uint64(iVal)
	case uint32:
		uval = uint64(iVal)
	case uint64:
		uval = iVal
	case uint:
		uval = uint64(iVal)
	case uintptr:
		uval = uint64(iVal)
	case int8:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	case int16:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	case int32:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	case int64:
		negative = iVal < 0
		uval = abs64(iVal)
	case int:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	// Emit digits least-significant first, then pad and reverse in place.
	right := 0
	for {
		digit := byte(uval % uint64(base))
		if digit < 10 {
			numFmtBuf[right] = digit + '0'
		} else {
			numFmtBuf[right] = digit - 10 + 'a'
		}
		right++

		uval /= uint64(base)
		if uval == 0 {
			break
		}
	}

	if negative {
		numFmtBuf[right] = '-'
		right++
	}

	for ; right < padLen; right++ {
		numFmtBuf[right] = padCh
	}

	for left, r := 0, right-1; left < r; left, r = left+1, r-1 {
		numFmtBuf[left], numFmtBuf[r] = numFmtBuf[r], numFmtBuf[left]
	}

	doWrite(w, numFmtBuf[0:right])
}

// abs64 returns the absolute value of v as a uint64.
func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// doWrite is a proxy that uses the runtime.noescape hack to hide p from the
// compiler's escape analysis. Without it the compiler cannot prove that p
// does not escape through the io.Writer and every Printf call would allocate,
// crashing the kernel when called before the Go allocator is initialized.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
