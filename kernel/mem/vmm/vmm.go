// Package vmm implements virtual memory management: page table entries,
// address spaces and the page/general-protection fault handlers that back
// copy-on-write and on-demand allocation.
package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/irq"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mem"
	"kestrel/kernel/mem/pmm"
)

// ReservedZeroedFrame is a zero-cleared frame allocated by Init. Mapping it
// read-only together with FlagCopyOnWrite implements on-demand allocation:
// every page initially shares this frame, and a write to any of them
// triggers a page fault that installs a private, zeroed copy.
var ReservedZeroedFrame pmm.Frame

var (
	// protectReservedZeroedPage is set once ReservedZeroedFrame is ready,
	// preventing it from ever being mapped RW.
	protectReservedZeroedPage bool

	// frameAllocator points to a frame allocator function registered
	// using SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// the following indirections are overridden by tests; the compiler
	// inlines them away in the real kernel build.
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode
	readCR2Fn                 = cpu.ReadCR2

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}

	// earlyReserveLastUsed tracks the lowest virtual address reserved so
	// far by EarlyReserveRegion, and is decreased after each request. It
	// starts at goHeapCeiling, the top of the address range the Go
	// runtime bootstrap (kernel/goruntime) is allowed to grow into.
	earlyReserveLastUsed = goHeapCeiling

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining virtual address space not large enough to satisfy reservation request"}
)

// goHeapCeiling is the exclusive upper bound of the address range
// EarlyReserveRegion hands out. It sits immediately above the direct map, so
// the Go runtime's own heap never collides with a direct-mapped physical
// address.
const goHeapCeiling = mem.DirectMapBase + mem.DirectMapLimit

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers the frame allocator used to satisfy new page
// table and copy-on-write allocations.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// Init reserves the blank copy-on-write frame and installs the page-fault
// and general-protection-fault handlers. It must run after the physical
// memory allocators are initialized and a frame allocator has been
// registered via SetFrameAllocator.
func Init() *kernel.Error {
	if err := reserveZeroedFrame(); err != nil {
		return err
	}

	handleExceptionWithCodeFn(irq.PageFaultException, pageFaultHandler)
	handleExceptionWithCodeFn(irq.GPFException, generalProtectionFaultHandler)
	return nil
}

// EarlyReserveRegion reserves a page-aligned contiguous range of virtual
// address space of at least size bytes and returns its start address. It
// does not establish any mapping for the range; the caller (the Go runtime
// bootstrap, see kernel/goruntime) is expected to map it on demand.
//
// Regions are handed out from the top of the Go heap's address range
// downward. This is meant to be used only during early kernel
// initialization, before any real virtual memory layout has been decided.
func EarlyReserveRegion(size mem.Size) (mem.VirtAddr, *kernel.Error) {
	aligned := (size + mem.PageSize - 1) &^ (mem.PageSize - 1)

	if uintptr(aligned) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(aligned)
	return mem.VirtAddr(earlyReserveLastUsed), nil
}

func reserveZeroedFrame() *kernel.Error {
	frame, err := frameAllocator()
	if err != nil {
		return err
	}

	virt, err := mem.PhysAddr(frame.Address()).ToVirt()
	if err != nil {
		return err
	}
	kernel.Memset(uintptr(virt), 0, uintptr(mem.PageSize))

	ReservedZeroedFrame = frame
	protectReservedZeroedPage = true
	return nil
}

func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	var (
		faultAddress = uintptr(readCR2Fn())
		faultPage    = PageFromAddress(faultAddress)
		as           = ActiveAddressSpace()
		pageEntry    *pageTableEntry
	)

	walk(as.root, faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			pageEntry = pte
			return false
		}
		return pte.HasFlags(FlagPresent)
	})

	if pageEntry != nil && !pageEntry.HasFlags(FlagRW) && pageEntry.HasFlags(FlagCopyOnWrite) {
		copyFrame, err := frameAllocator()
		if err == nil {
			err = copyFrameContents(copyFrame, pageEntry.Frame())
		}

		if err == nil {
			pageEntry.ClearFlags(FlagCopyOnWrite)
			pageEntry.SetFlags(FlagPresent | FlagRW)
			pageEntry.SetFrame(copyFrame)
			flushTLBEntryFn(faultPage.Address())
			return
		}

		nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
		return
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errUnrecoverableFault)
}

// copyFrameContents copies the contents of src (the frame currently mapped at
// the faulting page) into dst, using the direct map on both sides so no
// temporary mapping is required.
func copyFrameContents(dst, src pmm.Frame) *kernel.Error {
	srcVirt, err := mem.PhysAddr(src.Address()).ToVirt()
	if err != nil {
		return err
	}

	dstVirt, err := mem.PhysAddr(dst.Address()).ToVirt()
	if err != nil {
		return err
	}

	kernel.Memcopy(uintptr(srcVirt), uintptr(dstVirt), uintptr(mem.PageSize))
	return nil
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	switch errorCode {
	case 0:
		kfmt.Printf("read from non-present page")
	case 1:
		kfmt.Printf("page protection violation (read)")
	case 2:
		kfmt.Printf("write to non-present page")
	case 3:
		kfmt.Printf("page protection violation (write)")
	case 4:
		kfmt.Printf("page-fault in user-mode")
	case 8:
		kfmt.Printf("page table has reserved bit set")
	case 16:
		kfmt.Printf("instruction fetch")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n\nRegisters:\n")
	regs.Print()
	frame.Print()

	panic(err)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	kfmt.Printf("Registers:\n")
	regs.Print()
	frame.Print()

	panic(errUnrecoverableFault)
}
