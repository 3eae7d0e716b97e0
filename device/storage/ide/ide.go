// Package ide implements a minimal polled-PIO driver for the primary-master
// IDE channel. Grounded on original_source/kernel/src/fat16.rs's IDE struct
// and read_sectors/read methods, translated into typed port helpers and
// kernel.Error returns instead of the original's panic-on-timeout behavior.
package ide

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
)

const (
	dataPort        = 0x1F0
	errPort         = 0x1F1
	sectorCountPort = 0x1F2
	lbaLowPort      = 0x1F3
	lbaMidPort      = 0x1F4
	lbaHighPort     = 0x1F5
	drivePort       = 0x1F6
	statusPort      = 0x1F7
	commandPort     = 0x1F7

	cmdReadSectors = 0x20

	statusErr = 1 << 0
	statusDF  = 1 << 5
	statusDRQ = 1 << 3
	statusBSY = 1 << 7

	// SectorSize is the size in bytes of a single disk sector.
	SectorSize = 512

	maxPollAttempts = 100000
)

var errNotReady = &kernel.Error{Module: "ide", Message: "drive did not become ready before timeout"}

// Device drives the primary-master IDE channel (ports 0x1F0-0x1F7).
type Device struct{}

// NewPrimaryMaster returns a driver for the primary-master IDE channel.
func NewPrimaryMaster() *Device {
	return &Device{}
}

// isReady reports whether the drive is free of BSY/ERR/DF and has data
// ready to transfer (DRQ set).
func (d *Device) isReady() bool {
	status := cpu.Inb(statusPort)
	if status&(statusBSY|statusErr|statusDF) != 0 {
		return false
	}
	return status&statusDRQ != 0
}

func (d *Device) waitReady() *kernel.Error {
	for i := 0; i < maxPollAttempts; i++ {
		if d.isReady() {
			return nil
		}
	}
	return errNotReady
}

// ReadSectors reads cnt consecutive 512-byte sectors starting at the given
// LBA into buf, which must be at least cnt*SectorSize bytes long.
func (d *Device) ReadSectors(lba uint32, cnt uint8, buf []byte) *kernel.Error {
	cpu.Outb(drivePort, 0xE0|uint8(lba>>24)&0xF)
	cpu.Outb(errPort, 0)
	cpu.Outb(sectorCountPort, cnt)
	cpu.Outb(lbaLowPort, uint8(lba))
	cpu.Outb(lbaMidPort, uint8(lba>>8))
	cpu.Outb(lbaHighPort, uint8(lba>>16))
	cpu.Outb(commandPort, cmdReadSectors)

	for i := 0; i < int(cnt); i++ {
		if err := d.waitReady(); err != nil {
			return err
		}

		for j := 0; j < SectorSize/2; j++ {
			w := cpu.Inw(dataPort)
			buf[i*SectorSize+j*2] = uint8(w)
			buf[i*SectorSize+j*2+1] = uint8(w >> 8)
		}

		// A handful of status reads gives the drive time to deassert
		// DRQ between sectors.
		for k := 0; k < 4; k++ {
			cpu.Inb(statusPort)
		}
	}

	return nil
}

// Read reads len(buf) bytes starting at the given byte address, which need
// not be sector-aligned.
func (d *Device) Read(address uint64, buf []byte) *kernel.Error {
	firstSector, startOffset, readSectors := sectorsSpanning(address, len(buf))

	scratch := make([]byte, readSectors*SectorSize)
	if err := d.ReadSectors(uint32(firstSector), uint8(readSectors), scratch); err != nil {
		return err
	}

	copy(buf, scratch[startOffset:startOffset+uint64(len(buf))])
	return nil
}

// sectorsSpanning computes which sectors must be read to cover length bytes
// starting at a byte address that need not be sector-aligned. The two extra
// sectors of margin guarantee the result always covers [address, address+length)
// regardless of how address sits relative to a sector boundary.
func sectorsSpanning(address uint64, length int) (firstSector, startOffset, sectorCount uint64) {
	firstSector = address / SectorSize
	startOffset = address % SectorSize
	scratchLen := uint64(length) + 2*SectorSize
	sectorCount = scratchLen / SectorSize
	return
}
