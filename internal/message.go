// Task-to-scheduler message protocol (C7).
//
// A task never calls into the scheduler's internals directly; it posts
// a single message describing what it wants (wait for activation, wait
// for an interrupt, wait for a timer, terminate) and parks until the
// scheduler acts on it and resumes it. On real hardware this is a
// single machine word written just before a software interrupt is
// raised; here it is an atomic.Pointer param plus an atomic.Int32
// message, with the param written first, which is the ordering the
// original's comment calls out as required so the scheduler never
// observes a message before its parameter. The scheduler itself
// receives the pair directly (see Task.postMessage).

package lazuli_internal

import (
	"runtime"
	"time"
)

// Message identifies what a task is asking the scheduler to do.
type Message int32

const (
	MessageNone Message = iota
	MessageWaitActivation
	MessageWaitInterrupt
	MessageWaitTimer
	MessageWaitMutex
	MessageTerminate
	MessageAbortTask
)

func (m Message) String() string {
	switch m {
	case MessageNone:
		return "NONE"
	case MessageWaitActivation:
		return "WAIT_ACTIVATION"
	case MessageWaitInterrupt:
		return "WAIT_INTERRUPT"
	case MessageWaitTimer:
		return "WAIT_TIMER"
	case MessageWaitMutex:
		return "WAIT_MUTEX"
	case MessageTerminate:
		return "TERMINATE"
	case MessageAbortTask:
		return "ABORT_TASK"
	default:
		return "UNKNOWN"
	}
}

// TaskHandle is the interface a task's activity function uses to talk
// to the scheduler. It is handed to the activity function when the
// task is first dispatched; its Wait*, Terminate and WriteString
// methods act on the calling goroutine. RegisterTask also returns a
// handle for the same task, for use with ActivateTask and AbortTask.
type TaskHandle struct {
	task *Task
}

// GetName returns the task's registered name.
func (h *TaskHandle) GetName() string {
	return h.task.Name
}

// WaitActivation parks the calling task until the scheduler next
// activates it (its next CyclicRT period, or a PriorityRT activation).
func (h *TaskHandle) WaitActivation() {
	h.task.postAndPark(MessageWaitActivation, nil)
}

// WaitInterrupt parks the calling task until interrupt irq fires, or
// aborts the task immediately if irq is out of range and the kernel is
// configured to check for it.
func (h *TaskHandle) WaitInterrupt(irq uint8) {
	if h.task.scheduler.kernel.Config.CheckInterruptCodeOverLastEntry &&
		irq > h.task.scheduler.kernel.Config.MaxIRQ {
		ManageFailure(h.task, "WaitInterrupt: irq out of range")
		return
	}
	h.task.postAndPark(MessageWaitInterrupt, irq)
}

// WaitTimer parks the calling task until d has elapsed.
func (h *TaskHandle) WaitTimer(d time.Duration) {
	h.task.postAndPark(MessageWaitTimer, d)
}

// Terminate ends the calling task immediately; it never returns. The
// scheduler is notified first so it can drop the task from every
// queue before the goroutine unwinds.
func (h *TaskHandle) Terminate() {
	h.task.postMessage(MessageTerminate, nil)
	runtime.Goexit()
}
