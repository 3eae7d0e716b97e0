// Package early implements a minimal, allocation-free Printf used by the
// parts of the boot path that run before kernel/kfmt's richer output sink
// (and the console/TTY drivers it eventually wires to) exist. Its callers
// are the bump frame allocator (kernel/mem/pmm/allocator) and kernel.Panic:
// when the allocator runs no driver has been probed yet, so the only thing early can
// safely write to is the VGA text buffer directly, reached through the
// kernel's direct map.
package early

import (
	"io"
	"unsafe"
)

const (
	vgaPhysAddr   = 0xB8000
	vgaDirectBase = 0xC0000000
	vgaColumns    = 80
	vgaRows       = 25
	vgaAttr       = uint16(0x0700) // light gray on black
)

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// sink receives the formatted output. It defaults to the raw VGA text
	// buffer so calls made before any driver is registered still surface
	// somewhere visible; tests substitute it with a bytes.Buffer.
	sink io.ByteWriter = rawVGA{}

	col, row int
)

// SetOutputSink overrides the destination for Printf output. Passing nil
// restores the raw VGA text buffer.
func SetOutputSink(w io.ByteWriter) {
	if w == nil {
		w = rawVGA{}
		col, row = 0, 0
	}
	sink = w
}

// rawVGA writes directly into the VGA text-mode framebuffer through the
// direct map, scrolling the screen up a line once row runs past the bottom.
type rawVGA struct{}

func (rawVGA) WriteByte(ch byte) error {
	fb := (*[vgaRows * vgaColumns]uint16)(unsafe.Pointer(uintptr(vgaDirectBase + vgaPhysAddr)))

	if ch == '\n' {
		col, row = 0, row+1
	} else {
		fb[row*vgaColumns+col] = vgaAttr | uint16(ch)
		col++
	}

	if col >= vgaColumns {
		col, row = 0, row+1
	}

	if row >= vgaRows {
		for i := 0; i < (vgaRows-1)*vgaColumns; i++ {
			fb[i] = fb[i+vgaColumns]
		}
		for i := (vgaRows - 1) * vgaColumns; i < vgaRows*vgaColumns; i++ {
			fb[i] = vgaAttr | uint16(' ')
		}
		row = vgaRows - 1
	}

	return nil
}

func write(p []byte) {
	for _, b := range p {
		sink.WriteByte(b)
	}
}

// Printf supports the same minimal verb subset as kfmt.Printf (%d %x %o %s
// %t), without allocating. See kfmt.Printf for the full verb documentation;
// this copy exists so early boot code never has to import the package that
// owns the output-sink ring buffer.
func Printf(format string, args ...interface{}) {
	var (
		nextCh                       byte
		nextArgIndex                 int
		blockStart, blockEnd, padLen int
		fmtLen                       = len(format)
	)

	for blockEnd < fmtLen {
		nextCh = format[blockEnd]
		if nextCh != '%' {
			blockEnd++
			continue
		}

		if blockStart < blockEnd {
			write([]byte(format[blockStart:blockEnd]))
		}

		padLen = 0
		blockEnd++
	parseFmt:
		for ; blockEnd < fmtLen; blockEnd++ {
			nextCh = format[blockEnd]
			switch {
			case nextCh == '%':
				write([]byte{'%'})
				break parseFmt
			case nextCh >= '0' && nextCh <= '9':
				padLen = (padLen * 10) + int(nextCh-'0')
				continue
			case nextCh == 'd' || nextCh == 'x' || nextCh == 'o' || nextCh == 's' || nextCh == 't':
				if nextArgIndex >= len(args) {
					write(errMissingArg)
					break parseFmt
				}

				switch nextCh {
				case 'o':
					fmtInt(args[nextArgIndex], 8, padLen)
				case 'd':
					fmtInt(args[nextArgIndex], 10, padLen)
				case 'x':
					fmtInt(args[nextArgIndex], 16, padLen)
				case 's':
					fmtString(args[nextArgIndex], padLen)
				case 't':
					fmtBool(args[nextArgIndex])
				}

				nextArgIndex++
				break parseFmt
			}

			write(errNoVerb)
		}
		blockStart, blockEnd = blockEnd+1, blockEnd+1
	}

	if blockStart != blockEnd {
		write([]byte(format[blockStart:blockEnd]))
	}

	for ; nextArgIndex < len(args); nextArgIndex++ {
		write(errExtraArg)
	}
}

func fmtBool(v interface{}) {
	switch bVal := v.(type) {
	case bool:
		if bVal {
			write(trueValue)
		} else {
			write(falseValue)
		}
	default:
		write(errWrongArgType)
	}
}

func fmtString(v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(' ', padLen-len(castedVal))
		write([]byte(castedVal))
	case []byte:
		fmtRepeat(' ', padLen-len(castedVal))
		write(castedVal)
	default:
		write(errWrongArgType)
	}
}

func fmtRepeat(ch byte, count int) {
	for i := 0; i < count; i++ {
		write([]byte{ch})
	}
}

func fmtInt(v interface{}, base, padLen int) {
	var (
		sval             int64
		uval             uint64
		divider          uint64
		remainder        uint64
		buf              [32]byte
		padCh            byte
		left, right, end int
	)

	switch base {
	case 8:
		divider, padCh = 8, '0'
	case 10:
		divider, padCh = 10, ' '
	case 16:
		divider, padCh = 16, '0'
	}

	switch val := v.(type) {
	case uint8:
		uval = uint64(val)
	case uint16:
		uval = uint64(val)
	case uint32:
		uval = uint64(val)
	case uint64:
		uval = val
	case uintptr:
		uval = uint64(val)
	case int8:
		sval = int64(val)
	case int16:
		sval = int64(val)
	case int32:
		sval = int64(val)
	case int64:
		sval = val
	case int:
		sval = int64(val)
	default:
		write(errWrongArgType)
		return
	}

	if sval < 0 {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	for {
		remainder = uval % divider
		if remainder < 10 {
			buf[right] = byte(remainder) + '0'
		} else {
			buf[right] = byte(remainder-10) + 'a'
		}
		right++

		uval /= divider
		if uval == 0 {
			break
		}
	}

	for ; right-left < padLen; right++ {
		buf[right] = padCh
	}

	if sval < 0 {
		for end = right - 1; buf[end] == ' '; end-- {
		}
		if end == right-1 {
			right++
		}
		buf[end+1] = '-'
	}

	end = right
	for right = right - 1; left < right; left, right = left+1, right-1 {
		buf[left], buf[right] = buf[right], buf[left]
	}

	write(buf[0:end])
}
