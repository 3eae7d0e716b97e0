package irq

import (
	"kestrel/kernel/kfmt"
	"unsafe"
)

// idtEntry is a single x86-64 interrupt gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

type idtPtr struct {
	limit uint16
	base  uint64
}

const (
	kernelCodeSelector = 0x08
	gateTypeInterrupt  = 0x8E // present, DPL 0, 64-bit interrupt gate
	istDoubleFault     = 1
)

var (
	idt           [256]idtEntry
	idtDescriptor idtPtr

	excHandlers         [256]ExceptionHandler
	excHandlersWithCode [256]ExceptionHandlerWithCode
	irqHandlers         [256]IRQHandler
)

// The entry trampolines themselves live in vectors_amd64.s; each one saves
// the register/frame image for its vector and calls into dispatchTrap,
// dispatchFault or dispatchIRQ below. They take no Go-level arguments, so
// their addresses are recovered with funcPC instead of a normal call.
func vecDivideByZero()
func vecBreakpoint()
func vecDoubleFault()
func vecGPF()
func vecPageFault()
func vecTimer()
func vecKeyboard()
func vecIDE()

// funcPC returns the entry address of a package-level, non-closure function
// value. fn must not capture any variables.
func funcPC(fn func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&fn))
}

// vectorStub associates a fixed exception/IRQ number with the address of the
// assembly entry point that saves the register/frame image for it.
type vectorStub struct {
	vector uint8
	ist    uint8
	addr   uintptr
}

// vectorTable lists the only gates the kernel installs; every other IDT
// entry stays non-present, matching §4.9's fixed vector list.
var vectorTable = []vectorStub{
	{uint8(DivideByZero), 0, funcPC(vecDivideByZero)},
	{uint8(Breakpoint), 0, funcPC(vecBreakpoint)},
	{uint8(DoubleFault), istDoubleFault, funcPC(vecDoubleFault)},
	{uint8(GPFException), 0, funcPC(vecGPF)},
	{uint8(PageFaultException), 0, funcPC(vecPageFault)},
	{uint8(IRQTimer), 0, funcPC(vecTimer)},
	{uint8(IRQKeyboard), 0, funcPC(vecKeyboard)},
	{uint8(IRQIDE), 0, funcPC(vecIDE)},
}

func setGate(vector uint8, handlerAddr uintptr, ist uint8) {
	e := &idt[vector]
	e.offsetLow = uint16(handlerAddr)
	e.selector = kernelCodeSelector
	e.ist = ist
	e.typeAttr = gateTypeInterrupt
	e.offsetMid = uint16(handlerAddr >> 16)
	e.offsetHigh = uint32(handlerAddr >> 32)
}

// installIDTFn is mocked by tests so Init's gate-building logic can be
// checked without issuing LIDT.
var installIDTFn = installIDT

// Init installs the fixed vector table and loads the IDT. It must run after
// the GDT/TSS (which owns the IST stacks) has been installed.
func Init() {
	for _, v := range vectorTable {
		setGate(v.vector, v.addr, v.ist)
	}

	idtDescriptor.limit = uint16(unsafe.Sizeof(idt) - 1)
	idtDescriptor.base = uint64(uintptr(unsafe.Pointer(&idt[0])))
	installIDTFn(uintptr(unsafe.Pointer(&idtDescriptor)))
}

// installIDT issues LIDT against the descriptor built by Init.
func installIDT(descriptorAddr uintptr)

// exceptionHasCode reports whether the CPU pushes an error code for vector.
// Only used for documentation/testing purposes; the assembly stubs encode
// this fact directly since it never changes per vector.
func exceptionHasCode(vector uint8) bool {
	switch ExceptionNum(vector) {
	case DoubleFault, GPFException, PageFaultException:
		return true
	default:
		return false
	}
}

// dispatchTrap is called by the assembly trampoline for exceptions that do
// not push an error code.
func dispatchTrap(vector uint8, framePtr, regsPtr uintptr) {
	h := excHandlers[vector]
	frame := (*Frame)(unsafe.Pointer(framePtr))
	regs := (*Regs)(unsafe.Pointer(regsPtr))
	if h == nil {
		kfmt.Printf("\nunhandled exception %d\n", vector)
		regs.Print()
		frame.Print()
		panic("unhandled exception")
	}
	h(frame, regs)
}

// dispatchFault is called by the assembly trampoline for exceptions that
// push an error code.
func dispatchFault(vector uint8, errCode uint64, framePtr, regsPtr uintptr) {
	h := excHandlersWithCode[vector]
	frame := (*Frame)(unsafe.Pointer(framePtr))
	regs := (*Regs)(unsafe.Pointer(regsPtr))
	if h == nil {
		kfmt.Printf("\nunhandled fault %d, error code %d\n", vector, errCode)
		regs.Print()
		frame.Print()
		panic("unhandled fault")
	}
	h(errCode, frame, regs)
}

// dispatchIRQ is called by the assembly trampoline for hardware interrupts.
// Unlike traps and faults, the handler owns sending EOI: the timer handler
// needs it to fire between capturing the outgoing task's context and
// installing the next one.
func dispatchIRQ(vector uint8, framePtr, regsPtr uintptr) {
	h := irqHandlers[vector]
	frame := (*Frame)(unsafe.Pointer(framePtr))
	regs := (*Regs)(unsafe.Pointer(regsPtr))
	if h == nil {
		SendEOI(vector)
		return
	}
	h(frame, regs)
}

// HandleException registers an exception handler (without an error code)
// for the given interrupt number.
func handleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	excHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given interrupt number.
func handleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	excHandlersWithCode[exceptionNum] = handler
}

func handleIRQ(irq IRQNum, handler IRQHandler) {
	irqHandlers[irq] = handler
}
