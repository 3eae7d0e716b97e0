package sched

import (
	"kestrel/kernel/irq"
	"kestrel/kernel/sync"
	"unsafe"
)

// Scheduler round-robins over a fixed set of tasks. Its task list and
// cursor are guarded by a plain mutex (not a try-lock): the timer handler
// holds it only long enough to capture or advance state before handing off
// to the (non-reentrant) user-mode transition, matching §5's "acquires
// briefly, clones state, releases" rule.
type Scheduler struct {
	mu        sync.Spinlock
	tasks     []*Task
	cursor    int
	hasCursor bool
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// InstallTimerHandler registers the scheduler's preemption path on the
// timer IRQ: capture the interrupted task's context, acknowledge the
// interrupt, then hand the CPU to the next task. EOI happens between the
// two scheduler calls so a freshly unblocked timer can't re-enter RunNext
// while the outgoing task's state is still being written.
func (s *Scheduler) InstallTimerHandler() {
	irq.HandleIRQ(irq.IRQTimer, func(frame *irq.Frame, regs *irq.Regs) {
		s.SaveCurrent(frame, regs)
		irq.SendEOI(uint8(irq.IRQTimer))
		s.RunNext()
	})
}

// AddTask registers a task to be round-robined over. It is safe to call
// before the scheduler has run for the first time, and (less usefully,
// since nothing currently removes a task) while it is running.
func (s *Scheduler) AddTask(t *Task) {
	s.mu.Acquire()
	defer s.mu.Release()
	s.tasks = append(s.tasks, t)
}

// SaveCurrent copies the interrupted register/frame image into the
// currently scheduled task's saved context and marks it Saved. It is a
// no-op if RunNext has never run, i.e. there is no "current" task yet.
func (s *Scheduler) SaveCurrent(frame *irq.Frame, regs *irq.Regs) {
	s.mu.Acquire()
	defer s.mu.Release()

	if !s.hasCursor || len(s.tasks) == 0 {
		return
	}

	t := s.tasks[s.cursor]
	t.ctx.regs = *regs
	t.ctx.frame = *frame
	t.state = Saved
}

// RunNext advances the cursor to the next task (mod the task count,
// starting at 0 the first time it is called) and transitions the CPU into
// it. The task's page table is installed, and the TLB flushed, strictly
// before any of its user-mode instructions execute; only then does RunNext
// either perform the initial user-mode jump (LaunchInfo) or restore a saved
// context (Saved). With at least one task RunNext does not return, since
// both paths end in iretq; with no tasks it returns immediately.
func (s *Scheduler) RunNext() {
	s.mu.Acquire()
	n := len(s.tasks)
	if n == 0 {
		s.mu.Release()
		return
	}
	if !s.hasCursor {
		s.cursor = 0
		s.hasCursor = true
	} else {
		s.cursor = (s.cursor + 1) % n
	}
	t := s.tasks[s.cursor]
	s.mu.Release()

	t.as.Activate()

	switch t.state {
	case LaunchInfo:
		jumpToUserMode(t.entry, t.userStackTop)
	case Saved:
		restoreContext(uintptr(unsafe.Pointer(&t.ctx)))
	}
}
