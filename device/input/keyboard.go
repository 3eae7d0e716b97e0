// Package input implements PS/2-attached input devices.
package input

import (
	"io"
	"kestrel/device"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/irq"
	"kestrel/kernel/sync"
	"kestrel/kernel/syscall"
)

const (
	dataPort   = 0x60
	statusPort = 0x64

	leftShiftMake  = 0x2A
	leftShiftBreak = 0xAA
	rightShiftMake = 0x36
	rightShiftBreak = 0xB6

	backspaceCode = 0x0E
	enterCode     = 0x1C
)

// scancodeSet1 maps a Scancode Set 1 make code to its unshifted ASCII
// character. A zero entry means the code has no printable mapping (function
// keys, modifiers, ...).
var scancodeSet1 = [128]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: '-', 0x0D: '=',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x39: ' ',
}

// scancodeSet1Shifted is scancodeSet1 with the shift key held.
var scancodeSet1Shifted = [128]byte{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%',
	0x07: '^', 0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')',
	0x0C: '_', 0x0D: '+',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
	0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
	0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L',
	0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B',
	0x31: 'N', 0x32: 'M',
	0x39: ' ',
}

// Keyboard decodes Scancode Set 1 make/break codes from IRQ1 into completed
// lines. The in-progress line and the most recently completed one are
// guarded by a try-mutex: Feed runs in interrupt context and must never
// block, so a reader that currently holds the lock simply causes Feed to
// drop that keystroke rather than stall the IRQ handler.
type Keyboard struct {
	mu        sync.Spinlock
	shift     bool
	line      []byte
	completed []byte
}

// NewKeyboard returns a driver instance ready for DriverInit.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Feed decodes a single scancode byte read from the PS/2 data port. Letters,
// digits, space, shift, enter and backspace are recognized; Enter publishes
// the accumulated line and starts a new one.
func (k *Keyboard) Feed(scancode byte) {
	switch scancode {
	case leftShiftMake, rightShiftMake:
		k.shift = true
		return
	case leftShiftBreak, rightShiftBreak:
		k.shift = false
		return
	}

	// Break codes (high bit set) otherwise carry no information this
	// driver acts on.
	if scancode&0x80 != 0 {
		return
	}

	if !k.mu.TryToAcquire() {
		return
	}
	defer k.mu.Release()

	switch scancode {
	case enterCode:
		k.completed = append(k.completed[:0], k.line...)
		k.line = k.line[:0]
		return
	case backspaceCode:
		if len(k.line) > 0 {
			k.line = k.line[:len(k.line)-1]
		}
		return
	}

	var ch byte
	if k.shift {
		ch = scancodeSet1Shifted[scancode]
	} else {
		ch = scancodeSet1[scancode]
	}
	if ch != 0 {
		k.line = append(k.line, ch)
	}
}

// GetLine returns the most recently completed line, or nil if the line
// buffer is currently being updated by Feed.
func (k *Keyboard) GetLine() []byte {
	if !k.mu.TryToAcquire() {
		return nil
	}
	defer k.mu.Release()

	if len(k.completed) == 0 {
		return nil
	}
	out := make([]byte, len(k.completed))
	copy(out, k.completed)
	return out
}

// DriverName returns the name of this driver.
func (k *Keyboard) DriverName() string { return "ps2_keyboard" }

// DriverVersion returns the version of this driver.
func (k *Keyboard) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit registers the IRQ1 handler and wires this keyboard into the
// GETLINE syscall.
func (k *Keyboard) DriverInit(w io.Writer) *kernel.Error {
	irq.HandleIRQ(irq.IRQKeyboard, func(frame *irq.Frame, regs *irq.Regs) {
		k.Feed(cpu.Inb(dataPort))
		irq.SendEOI(uint8(irq.IRQKeyboard))
	})
	syscall.GetLineFn = k.GetLine
	io.WriteString(w, "registered IRQ1 handler\n")
	return nil
}

// probeForPS2Keyboard assumes a PS/2 keyboard is present, matching the
// original target environment (QEMU/Bochs always wire one up).
func probeForPS2Keyboard() device.Driver {
	return NewKeyboard()
}

// HWProbes returns this package's device probe functions for the hal
// package to run.
func HWProbes() []device.ProbeFn {
	return []device.ProbeFn{probeForPS2Keyboard}
}
