package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/mem"
	"kestrel/kernel/mem/pmm"
	"unsafe"
)

var (
	errNoHugePageSupport           = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errAttemptToRWMapReservedFrame = &kernel.Error{Module: "vmm", Message: "reserved blank frame cannot be mapped with a RW flag"}

	// flushTLBEntryFn allows tests to intercept TLB flushes, which would
	// otherwise fault outside ring 0.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// activePDTFn and switchPDTFn allow tests to substitute CR3 access.
	activePDTFn = cpu.ActivePDT
	switchPDTFn = cpu.SwitchPDT
)

// AddressSpace represents a single 4-level amd64 paging hierarchy. The
// kernel itself runs inside one AddressSpace and every user-mode task owns
// its own, each sharing the same kernelPML4Entry..entriesPerTable slots so
// kernel code and data remain mapped no matter which task is running.
type AddressSpace struct {
	root pmm.Frame
}

// ActiveAddressSpace returns the AddressSpace currently loaded into CR3.
func ActiveAddressSpace() AddressSpace {
	return AddressSpace{root: pmm.FrameFromAddress(activePDTFn())}
}

// NewAddressSpace allocates and initializes a fresh top-level table backed
// by root. The kernel half of the table (entries [kernelPML4Entry,
// entriesPerTable)) is copied verbatim from the currently active address
// space so that kernel code, the direct map and device mappings stay
// reachable after the new space is activated; the user half starts empty.
func NewAddressSpace(root pmm.Frame) (*AddressSpace, *kernel.Error) {
	table, err := tableAt(root)
	if err != nil {
		return nil, err
	}

	kernelTable, err := tableAt(pmm.FrameFromAddress(activePDTFn()))
	if err != nil {
		return nil, err
	}

	for i := 0; i < entriesPerTable; i++ {
		if i >= kernelPML4Entry {
			table[i] = kernelTable[i]
		} else {
			table[i] = 0
		}
	}

	return &AddressSpace{root: root}, nil
}

// Root returns the physical frame backing this address space's top-level
// table. It is used by the scheduler to populate a task's saved CR3.
func (as *AddressSpace) Root() pmm.Frame { return as.root }

// Activate loads this address space into CR3, making its mappings visible
// to the MMU.
func (as *AddressSpace) Activate() { switchPDTFn(as.root.Address()) }

// Map establishes a mapping between a virtual page and a physical memory
// frame inside this address space. Missing intermediate tables are
// allocated on demand via the registered frame allocator and zeroed through
// the direct map.
//
// Attempts to map ReservedZeroedFrame with a RW flag result in an error.
func (as *AddressSpace) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame && (flags&FlagRW) != 0 {
		return errAttemptToRWMapReservedFrame
	}

	active := *as == ActiveAddressSpace()
	var mapErr *kernel.Error

	if err := walk(as.root, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags | FlagPresent)
			if active {
				flushTLBEntryFn(page.Address())
			}
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			mapErr = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			newTableFrame, err := frameAllocator()
			if err != nil {
				mapErr = err
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)

			newTable, err := pte.next()
			if err != nil {
				mapErr = err
				return false
			}
			*newTable = pageTable{}
		}

		return true
	}); err != nil {
		return err
	}

	return mapErr
}

// Map establishes a mapping in the currently active address space. It is a
// convenience wrapper around ActiveAddressSpace().Map, used by callers (such
// as the Go runtime bootstrap) that only ever operate on the kernel's own
// address space.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	active := ActiveAddressSpace()
	return active.Map(page, frame, flags)
}

// Unmap removes a mapping previously installed via Map.
func (as *AddressSpace) Unmap(page Page) *kernel.Error {
	active := *as == ActiveAddressSpace()
	var unmapErr *kernel.Error

	if err := walk(as.root, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			if active {
				flushTLBEntryFn(page.Address())
			}
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			unmapErr = ErrInvalidMapping
			return false
		}

		return true
	}); err != nil {
		return err
	}

	return unmapErr
}

// Translate returns the physical address that corresponds to virtAddr
// within this address space, or ErrInvalidMapping if it is not mapped.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		resolved pmm.Frame
		found    bool
	)

	err := walk(as.root, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			return false
		}
		if pteLevel == pageLevels-1 {
			resolved = pte.Frame()
			found = true
		}
		return true
	})

	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrInvalidMapping
	}

	return resolved.Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within a page for the given virtual address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (uintptr(mem.PageSize) - 1)
}

// noEscape hides a pointer from escape analysis, mirroring the technique
// used throughout the kernel to keep closures passed to assembly-adjacent
// code off the heap.
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
