// Package kmain wires together every other package into the kernel's
// single entry point. Grounded on the teacher's kernel/kmain package; the
// init sequence itself follows the fixed order this expansion's design
// notes call out: GDT, IDT, PIC (masked), syscall MSRs, frame allocator,
// heap, runtime bootstrap, device probing, PIC unmask, first schedule.
package kmain

import (
	"kestrel/device/storage/fat16"
	"kestrel/device/storage/ide"
	"kestrel/kernel"
	"kestrel/kernel/elf"
	"kestrel/kernel/gdt"
	"kestrel/kernel/goruntime"
	"kestrel/kernel/hal"
	"kestrel/kernel/hal/multiboot"
	"kestrel/kernel/irq"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mem/heap"
	"kestrel/kernel/mem/pmm/allocator"
	"kestrel/kernel/mem/vmm"
	"kestrel/kernel/sched"
	syscallpkg "kestrel/kernel/syscall"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// initProgramName is the file the FAT16 loader looks up on the primary IDE
// drive for the first scheduled task.
const initProgramName = "INIT.BIN"

// Kmain is the only Go symbol the rt0 boot assembly calls. It never
// returns: the last thing it does is hand the CPU to the scheduler via
// RunNext, which itself ends in an iretq into a task.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	gdt.Init()
	irq.Init()
	irq.InitPIC() // leaves every line masked until devices register handlers

	syscallpkg.Init()

	vmm.SetFrameAllocator(allocator.AllocFrame)
	sched.SetFrameAllocator(allocator.AllocFrame)

	if err := heap.Init(kernelStart, kernelEnd); err != nil {
		panic(err)
	}
	if err := vmm.Init(); err != nil {
		panic(err)
	}
	if err := goruntime.Init(); err != nil {
		panic(err)
	}

	hal.DetectHardware()
	kfmt.Printf("kernel initialized\n")

	irq.SetMask(uint8(irq.IRQTimer), false)
	irq.SetMask(uint8(irq.IRQKeyboard), false)

	s := sched.New()
	s.InstallTimerHandler()

	if task, err := loadInitTask(); err != nil {
		kfmt.Printf("failed to load %s: %s\n", initProgramName, err.Message)
	} else {
		s.AddTask(task)
	}

	s.RunNext()

	// Use kernel.Panic instead of panic so the compiler can't treat this
	// as dead code and eliminate it; RunNext above only returns when no
	// task was added.
	kernel.Panic(errKmainReturned)
}

// loadInitTask reads the init program off the primary IDE drive's FAT16
// filesystem, parses it as an ELF64 executable, and builds a Task from its
// program headers.
func loadInitTask() (*sched.Task, *kernel.Error) {
	fs, err := fat16.Mount(ide.NewPrimaryMaster())
	if err != nil {
		return nil, err
	}

	image, err := fs.ReadFile(initProgramName)
	if err != nil {
		return nil, err
	}

	parsed, perr := elf.Parse(image)
	if perr != nil {
		return nil, perr
	}

	var segments []sched.Segment
	for _, h := range parsed.Headers {
		if !h.Loadable() {
			continue
		}
		segments = append(segments, sched.Segment{
			VirtAddr: uintptr(h.VirtAddr),
			Data:     parsed.Segment(h),
			Writable: h.Writable(),
		})
	}

	return sched.NewTaskFromELF(uintptr(parsed.Entry), segments)
}
