package irq

// ExceptionNum defines an exception number that can be
// passed to the HandleException and HandleExceptionWithCode
// functions.
type ExceptionNum uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = ExceptionNum(0)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = ExceptionNum(3)

	// DoubleFault occurs when an exception is unhandled
	// or when an exception occurs while the CPU is
	// trying to call an exception handler.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a PDT or
	// PDT-entry is not present or when a privilege
	// and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

// IRQNum identifies a hardware interrupt vector after PIC remapping.
type IRQNum uint8

const (
	// IRQTimer fires on every PIT tick (IRQ0, remapped to vector 32).
	IRQTimer = IRQNum(32)

	// IRQKeyboard fires when the PS/2 controller has a scancode ready
	// (IRQ1, remapped to vector 33).
	IRQKeyboard = IRQNum(33)

	// IRQIDE fires on primary-master IDE command completion (IRQ14,
	// remapped to vector 46).
	IRQIDE = IRQNum(46)
)

// IRQHandler handles a hardware interrupt. It is responsible for sending its
// own EOI (via SendEOI) at the appropriate point in its handling, since the
// timer handler must EOI between capturing the current task's context and
// installing the next one.
type IRQHandler func(frame *Frame, regs *Regs)

// HandleIRQ registers a hardware interrupt handler for the given vector.
func HandleIRQ(irq IRQNum, handler IRQHandler) { handleIRQ(irq, handler) }

// ExceptionHandler is a function that handles an exception that does not push
// an error code to the stack. If the handler returns, any modifications to the
// supplied Frame and/or Regs pointers will be propagated back to the location
// where the exception occurred.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode is a function that handles an exception that pushes
// an error code to the stack. If the handler returns, any modifications to the
// supplied Frame and/or Regs pointers will be propagated back to the location
// where the exception occurred.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

// HandleException registers an exception handler (without an error code) for
// the given interrupt number.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	handleException(exceptionNum, handler)
}

// HandleExceptionWithCode registers an exception handler (with an error code)
// for the given interrupt number.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	handleExceptionWithCode(exceptionNum, handler)
}
