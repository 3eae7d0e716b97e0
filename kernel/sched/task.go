// Package sched implements the user-mode task object and the round-robin
// scheduler that drives it, grounded on original_source's scheduler.rs
// since the teacher repository never grew a scheduler of its own.
package sched

import (
	"kestrel/kernel"
	"kestrel/kernel/irq"
	"kestrel/kernel/mem"
	"kestrel/kernel/mem/pmm"
	"kestrel/kernel/mem/vmm"
	"unsafe"
)

// State describes whether a Task has never run (and so needs the initial
// ring-3 jump) or has run before and carries a saved register context.
type State uint8

const (
	// LaunchInfo tasks have not yet executed; RunNext performs the initial
	// iretq-based jump to user mode using entry/userStackTop.
	LaunchInfo State = iota

	// Saved tasks were preempted previously; RunNext restores the saved
	// register image and iretq's back into it.
	Saved
)

const (
	// UserCodeBase is the fixed virtual address a flat (non-ELF) task
	// image is mapped at, matching original_source's schedule().
	UserCodeBase = 0x400000

	// UserStackBase is the fixed virtual address of a task's single user
	// stack page; the stack grows down from UserStackBase+PageSize.
	UserStackBase = 0x800000
)

// savedContext is the exact memory layout RunNext's assembly restore path
// switches RSP onto: the 15 general registers (in Regs field order)
// followed immediately by the iretq frame. The two structs must stay
// adjacent and in this order for restoreContext's raw pointer arithmetic to
// line up.
type savedContext struct {
	regs  irq.Regs
	frame irq.Frame
}

// Task owns a private address space, the pinned physical frames backing its
// code and stack, and either a launch descriptor or a saved register image.
type Task struct {
	state State
	as    *vmm.AddressSpace

	entry        uintptr
	userStackTop uintptr

	ctx savedContext

	// codeFrames and stackFrames are kept only so nothing else reuses them
	// while the task is alive; the task never frees them itself (matching
	// the core's no-kernel-preemption, no-teardown scope).
	codeFrames  []pmm.Frame
	stackFrames []pmm.Frame
}

// NewTask builds a task from a flat code image: the image is copied into
// freshly allocated frames mapped read-only|user at UserCodeBase, and a
// freshly allocated stack page is mapped read-write|user at UserStackBase.
func NewTask(codeImage []byte) (*Task, *kernel.Error) {
	asRoot, err := allocFrame()
	if err != nil {
		return nil, err
	}
	as, err := vmm.NewAddressSpace(asRoot)
	if err != nil {
		return nil, err
	}

	codeFrames, err := mapImage(as, codeImage, UserCodeBase, vmm.FlagUserAccessible)
	if err != nil {
		return nil, err
	}

	stackFrame, err := allocFrame()
	if err != nil {
		return nil, err
	}
	if err := as.Map(vmm.PageFromAddress(UserStackBase), stackFrame,
		vmm.FlagRW|vmm.FlagUserAccessible); err != nil {
		return nil, err
	}

	return &Task{
		state:        LaunchInfo,
		as:           as,
		entry:        UserCodeBase,
		userStackTop: UserStackBase + uintptr(mem.PageSize),
		codeFrames:   codeFrames,
		stackFrames:  []pmm.Frame{stackFrame},
	}, nil
}

// Segment is one PT_LOAD entry out of a parsed ELF64 image (kernel/elf).
type Segment struct {
	VirtAddr uintptr
	Data     []byte
	Writable bool
}

// NewTaskFromELF builds a task from a parsed executable: every loadable
// segment is mapped at its own virtual address with the requested
// permissions, and a stack page is mapped at the fixed UserStackBase
// regardless of what the image itself requested.
func NewTaskFromELF(entry uintptr, segments []Segment) (*Task, *kernel.Error) {
	asRoot, err := allocFrame()
	if err != nil {
		return nil, err
	}
	as, err := vmm.NewAddressSpace(asRoot)
	if err != nil {
		return nil, err
	}

	var allFrames []pmm.Frame
	for _, seg := range segments {
		flags := vmm.PageTableEntryFlag(vmm.FlagUserAccessible)
		if seg.Writable {
			flags |= vmm.FlagRW
		}
		frames, err := mapImage(as, seg.Data, seg.VirtAddr, flags)
		if err != nil {
			return nil, err
		}
		allFrames = append(allFrames, frames...)
	}

	stackFrame, err := allocFrame()
	if err != nil {
		return nil, err
	}
	if err := as.Map(vmm.PageFromAddress(UserStackBase), stackFrame,
		vmm.FlagRW|vmm.FlagUserAccessible); err != nil {
		return nil, err
	}

	return &Task{
		state:        LaunchInfo,
		as:           as,
		entry:        entry,
		userStackTop: UserStackBase + uintptr(mem.PageSize),
		codeFrames:   allFrames,
		stackFrames:  []pmm.Frame{stackFrame},
	}, nil
}

// mapImage copies data into one freshly allocated frame per page and maps
// each at virtAddr+i*PageSize in as with flags|FlagPresent.
func mapImage(as *vmm.AddressSpace, data []byte, virtAddr uintptr, flags vmm.PageTableEntryFlag) ([]pmm.Frame, *kernel.Error) {
	pageSize := uintptr(mem.PageSize)
	pageCount := (uintptr(len(data)) + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}

	frames := make([]pmm.Frame, 0, pageCount)
	for i := uintptr(0); i < pageCount; i++ {
		frame, err := allocFrame()
		if err != nil {
			return nil, err
		}

		dstVirt, err := mem.PhysAddr(frame.Address()).ToVirt()
		if err != nil {
			return nil, err
		}

		start := i * pageSize
		end := start + pageSize
		if end > uintptr(len(data)) {
			end = uintptr(len(data))
		}

		kernel.Memset(uintptr(dstVirt), 0, pageSize)
		if start < end {
			kernel.Memcopy(uintptr(unsafe.Pointer(&data[start])), uintptr(dstVirt), end-start)
		}

		if err := as.Map(vmm.PageFromAddress(virtAddr+start), frame, flags); err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	return frames, nil
}

// allocFrameFn is nil until SetFrameAllocator is called (Kmain passes it the
// same allocator it registers with vmm); tests may override it.
var allocFrameFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers the physical frame allocator used to back new
// tasks' address spaces, code and stack pages.
func SetFrameAllocator(fn func() (pmm.Frame, *kernel.Error)) { allocFrameFn = fn }

func allocFrame() (pmm.Frame, *kernel.Error) { return allocFrameFn() }

// jumpToUserMode performs the initial ring-3 entry for a LaunchInfo task:
// user data selectors loaded, then an iretq-based transition to entry
// running on stackTop with interrupts enabled (rflags = 0x200).
func jumpToUserMode(entry, stackTop uintptr)

// restoreContext switches RSP to ctx (a *savedContext), pops the 15 general
// registers and issues iretq using the frame that immediately follows them
// in memory.
func restoreContext(ctx uintptr)
