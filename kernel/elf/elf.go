// Package elf parses just enough of the ELF64 format to load a single
// statically linked executable: the entry point and PT_LOAD program
// headers. Grounded on original_source/kernel/src/elf.rs, but reads the
// real ELF64 header layout by field name via encoding/binary instead of
// the original's fixed magic byte offsets.
package elf

import (
	"encoding/binary"
	"kestrel/kernel"
)

const (
	magic0, magic1, magic2, magic3 = 0x7F, 'E', 'L', 'F'

	ptLoad = 1

	pfExecute = 1 << 0
	pfWrite   = 1 << 1
	pfRead    = 1 << 2
)

var (
	errTooShort   = &kernel.Error{Module: "elf", Message: "image too short to contain an ELF64 header"}
	errBadMagic   = &kernel.Error{Module: "elf", Message: "missing ELF magic"}
	errNot64Bit   = &kernel.Error{Module: "elf", Message: "only 64-bit little-endian ELF images are supported"}
	errBadPHTable = &kernel.Error{Module: "elf", Message: "program header table extends past the end of the image"}
)

// ProgramHeader describes one entry of the program header table.
type ProgramHeader struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VirtAddr uint64
	FileSize uint64
	MemSize  uint64
}

// Loadable reports whether this header describes a PT_LOAD segment.
func (p ProgramHeader) Loadable() bool { return p.Type == ptLoad }

// Writable reports whether PF_W is set.
func (p ProgramHeader) Writable() bool { return p.Flags&pfWrite != 0 }

// Image is a parsed ELF64 executable.
type Image struct {
	Entry   uint64
	Headers []ProgramHeader
	data    []byte
}

// Segment returns the file bytes backing a PT_LOAD header, ready to be
// copied into the pages sched.NewTaskFromELF maps for it.
func (img *Image) Segment(h ProgramHeader) []byte {
	return img.data[h.Offset : h.Offset+h.FileSize]
}

const ehdrSize = 64

// Parse reads an ELF64 header and its program header table out of data.
func Parse(data []byte) (*Image, *kernel.Error) {
	if len(data) < ehdrSize {
		return nil, errTooShort
	}
	if data[0] != magic0 || data[1] != magic1 || data[2] != magic2 || data[3] != magic3 {
		return nil, errBadMagic
	}
	const (
		elfClass64  = 2
		elfDataLSB  = 1
	)
	if data[4] != elfClass64 || data[5] != elfDataLSB {
		return nil, errNot64Bit
	}

	entry := binary.LittleEndian.Uint64(data[24:32])
	phOff := binary.LittleEndian.Uint64(data[32:40])
	phEntSize := binary.LittleEndian.Uint16(data[54:56])
	phNum := binary.LittleEndian.Uint16(data[56:58])

	headers := make([]ProgramHeader, 0, phNum)
	for i := uint16(0); i < phNum; i++ {
		start := phOff + uint64(i)*uint64(phEntSize)
		end := start + uint64(phEntSize)
		if end > uint64(len(data)) {
			return nil, errBadPHTable
		}
		hdr := data[start:end]

		headers = append(headers, ProgramHeader{
			Type:     binary.LittleEndian.Uint32(hdr[0:4]),
			Flags:    binary.LittleEndian.Uint32(hdr[4:8]),
			Offset:   binary.LittleEndian.Uint64(hdr[8:16]),
			VirtAddr: binary.LittleEndian.Uint64(hdr[16:24]),
			FileSize: binary.LittleEndian.Uint64(hdr[32:40]),
			MemSize:  binary.LittleEndian.Uint64(hdr[40:48]),
		})
	}

	return &Image{Entry: entry, Headers: headers, data: data}, nil
}
