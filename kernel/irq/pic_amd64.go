package irq

import "kestrel/kernel/cpu"

// 8259 PIC ports. The kernel assumes exactly one master/slave pair at the
// legacy addresses, per SPEC_FULL's Non-goals (no APIC, no additional
// controllers).
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picEOI = 0x20

	icw1Init     = 0x11 // edge-triggered, cascade mode, ICW4 present
	icw4_8086    = 0x01
	picVectorOff = 0x20 // master remapped to 32, slave to 40
)

// outbFn/inbFn are mocked by tests so the ICW remap sequence and mask math
// can be checked without real port I/O.
var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
)

// InitPIC remaps the master/slave PIC pair to vectors 32-47 (clear of the
// CPU exception range), chains the slave on IRQ2, and restores the
// interrupt masks that were in effect before remapping so drivers that
// already unmasked a line keep working across a re-init.
func InitPIC() {
	savedMasterMask := inbFn(picMasterData)
	savedSlaveMask := inbFn(picSlaveData)

	outbFn(picMasterCommand, icw1Init)
	ioWait()
	outbFn(picSlaveCommand, icw1Init)
	ioWait()

	outbFn(picMasterData, picVectorOff)
	ioWait()
	outbFn(picSlaveData, picVectorOff+8)
	ioWait()

	outbFn(picMasterData, 1<<2) // slave is wired to master IRQ2
	ioWait()
	outbFn(picSlaveData, 2) // slave's cascade identity
	ioWait()

	outbFn(picMasterData, icw4_8086)
	ioWait()
	outbFn(picSlaveData, icw4_8086)
	ioWait()

	outbFn(picMasterData, savedMasterMask)
	outbFn(picSlaveData, savedSlaveMask)
}

// ioWait gives the PIC time to process a command by performing a throwaway
// write to an unused port, the traditional approach on real hardware where
// back-to-back port writes can outrun the 8259.
func ioWait() {
	outbFn(0x80, 0)
}

// SetMask enables or disables delivery of a single IRQ line (0-15).
func SetMask(line uint8, masked bool) {
	port := uint16(picMasterData)
	if line >= 8 {
		port = picSlaveData
		line -= 8
	}

	cur := inbFn(port)
	if masked {
		cur |= 1 << line
	} else {
		cur &^= 1 << line
	}
	outbFn(port, cur)
}

// SendEOI acknowledges an interrupt so the PIC can deliver further ones. It
// must be written to the slave PIC as well whenever the vector belongs to
// an IRQ chained through it (8-15, i.e. vectors 40-47).
func SendEOI(vector uint8) {
	if vector >= picVectorOff+8 {
		outbFn(picSlaveCommand, picEOI)
	}
	outbFn(picMasterCommand, picEOI)
}
