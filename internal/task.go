// Task control block (C5).

package lazuli_internal

import (
	"runtime"
	"sync/atomic"
	"time"
)

// SchedulingPolicy selects which of the two competing disciplines
// governs a task's activation.
type SchedulingPolicy int

const (
	// CyclicRT tasks run once every Period, rate-monotonically: the
	// shorter the period, the higher the effective priority.
	CyclicRT SchedulingPolicy = iota
	// PriorityRT tasks run whenever activated, ordered by Priority
	// (higher value preempts lower value), with no implicit period.
	PriorityRT
)

func (p SchedulingPolicy) String() string {
	if p == CyclicRT {
		return "CyclicRT"
	}
	return "PriorityRT"
}

// TaskState is the task's current position in the scheduler's model.
type TaskState int

const (
	StateReady TaskState = iota
	StateRunning
	StateWaitingActivation
	StateWaitingInterrupt
	StateWaitingTimer
	StateWaitingMutex
	StateTerminated
	// StateAborted is distinct from StateTerminated: it marks a task
	// killed by AbortTask or a fatal misuse detected inside its own
	// call stack (ManageFailure), as opposed to a voluntary return or
	// TaskHandle.Terminate call. A task lands on exactly one of the two
	// terminal queues, never both.
	StateAborted
)

// TaskConfiguration is supplied to RegisterTask; it is the Go analogue
// of Lz_TaskConfiguration_Init plus the fields a caller fills in
// before calling Lz_RegisterTask.
type TaskConfiguration struct {
	Name     string
	Policy   SchedulingPolicy
	Priority int32         // PriorityRT only; higher value preempts lower
	Period   time.Duration // CyclicRT only
	// Completion is the worst-case execution time a CyclicRT task may
	// consume within one Period; 0 < Completion <= Period is enforced
	// at registration. Unused for PriorityRT.
	Completion time.Duration
	// StackSize is recorded and validated against the kernel's arena
	// (see alloc.go) even though the Go runtime manages the actual
	// goroutine stack; it preserves the registration-time budget check
	// the original performs before a task is ever allowed to run.
	StackSize int
	// Activity is the task's entire body: a long running function that
	// parks itself via the TaskHandle it is given. Returning from
	// Activity implicitly terminates the task, equivalent to calling
	// TaskHandle.Terminate.
	Activity func(h *TaskHandle)
}

func DefaultTaskConfiguration() *TaskConfiguration {
	return &TaskConfiguration{
		Policy: PriorityRT,
	}
}

// resumeSignal is what the scheduler sends a parked task to wake it.
type resumeSignal struct {
	abort bool
}

// Task is the scheduler's internal bookkeeping for one registered
// task. It is never exposed directly to task code; task code only
// sees its TaskHandle.
type Task struct {
	Name     string
	Policy   SchedulingPolicy
	Priority int32
	Period   time.Duration

	// Completion is the registered worst-case execution time budget
	// (CyclicRT only); TimeUntilCompletion counts it down, at each tick,
	// by the wall-clock time elapsed since the previous tick while this
	// task is current, reaching 0 if the task overruns its budget before
	// calling WaitActivation.
	Completion          time.Duration
	TimeUntilCompletion time.Duration

	Activity func(h *TaskHandle)

	scheduler *Scheduler

	// StateQueueLink is the intrusive link used to place this task on
	// exactly one of the scheduler's lists at a time (ready queue,
	// waiting-activation list, waiting-timer list, mutex wait list).
	StateQueueLink Element
	// queue records which list StateQueueLink currently belongs to, if
	// any, so the task can be dequeued without the caller having to
	// remember where it was placed.
	queue *List

	State TaskState

	// WaitingIRQ is valid while State == StateWaitingInterrupt.
	WaitingIRQ uint8
	// WakeupAt is valid while State == StateWaitingTimer.
	WakeupAt time.Time

	// NextReleaseAt is the next instant a CyclicRT task becomes ready.
	NextReleaseAt time.Time

	// Message/MessageParam form the single-word message protocol (C7):
	// a task posts its param, then its message, in that order. The
	// scheduler is handed the same pair directly by postMessage, so these
	// atomics are the externally observable record of what was posted,
	// reset to MessageNone once the scheduler has applied it.
	Message      atomic.Int32
	MessageParam atomic.Pointer[any]

	resumeChan chan resumeSignal

	// preempted is set by the scheduler when it elects a different task
	// in place of this one while this one is still StateRunning: there
	// is no way to forcibly suspend a goroutine that hasn't chosen to
	// block, so the switch only really takes effect once this task
	// notices, at its next kernel entry (see checkpoint).
	preempted atomic.Bool

	abortErr error
}

func newTask(s *Scheduler, cfg *TaskConfiguration) *Task {
	t := &Task{
		Name:                cfg.Name,
		Policy:              cfg.Policy,
		Priority:            cfg.Priority,
		Period:              cfg.Period,
		Completion:          cfg.Completion,
		TimeUntilCompletion: cfg.Completion,
		Activity:            cfg.Activity,
		scheduler:           s,
		// Buffered by one: Dispatch must never block the scheduler on a
		// task that was marked current but hasn't actually reached its
		// next park() yet (e.g. one requeued-while-running by reschedule,
		// still executing past its last checkpoint). It picks up the
		// pending resume the next time it does park.
		resumeChan: make(chan resumeSignal, 1),
	}
	t.StateQueueLink.Value = t
	return t
}

// taskFromElement recovers the Task owning e. Every Element handed to
// the list operations in this package is a Task's StateQueueLink.
func taskFromElement(e *Element) *Task {
	return e.Value.(*Task)
}

// postMessage stores param then msg, in that order, satisfying the
// protocol's ordering requirement, then asks the scheduler to look at
// this task's message.
func (t *Task) postMessage(msg Message, param any) {
	if param == nil {
		t.MessageParam.Store(nil)
	} else {
		t.MessageParam.Store(&param)
	}
	t.Message.Store(int32(msg))
	t.scheduler.applyTaskMessage(t, msg, param)
	t.Message.Store(int32(MessageNone))
}

// postAndPark posts the message and blocks the calling goroutine until
// the scheduler resumes this task.
func (t *Task) postAndPark(msg Message, param any) {
	t.postMessage(msg, param)
	t.park()
}

// park blocks until resumed. If resumed with abort set, it unwinds the
// task's goroutine via runtime.Goexit, running deferred cleanup on the
// way out, exactly as an external Task_Abort would on real hardware.
func (t *Task) park() {
	sig := <-t.resumeChan
	if sig.abort {
		runtime.Goexit()
	}
}

// resume wakes a parked task. It never blocks: a task that was handed
// the CPU but has not reached its next park() yet (still running past
// a pending preemption, see checkpoint) already has a signal queued or
// on its way, so a second one is redundant and safely dropped.
func (t *Task) resume() {
	select {
	case t.resumeChan <- resumeSignal{}:
	default:
	}
}

// checkpoint lets a task discover that the scheduler already moved it
// off "current" since it was last running: the scheduler cannot
// forcibly stop a goroutine that hasn't itself chosen to block, so
// every task-visible entry point that might otherwise return without
// parking calls this (WriteString before its write, the Mutex methods
// after their critical section). If a preemption is pending, it parks here
// instead, completing the handoff the scheduler already decided on.
func (t *Task) checkpoint() {
	if t.preempted.CompareAndSwap(true, false) {
		t.park()
	}
}

// selfAbort unwinds the calling task's own goroutine via
// runtime.Goexit. It is only ever called from within that task's
// Activity call stack (ManageFailure's only call sites), so there is
// no parked goroutine to wake: this one simply never returns.
func (t *Task) selfAbort(err error) {
	t.abortErr = err
	t.postMessage(MessageAbortTask, nil)
	runtime.Goexit()
}

// abort wakes a task parked somewhere other than its own call stack
// (the scheduler's AbortTask API, applied to a task other than the
// caller). Best effort: if the task has not parked yet the signal waits
// in its buffered channel, and if a resume is already pending there the
// signal is dropped; either way the task is already on the aborted queue.
func (t *Task) abort(err error) {
	t.abortErr = err
	select {
	case t.resumeChan <- resumeSignal{abort: true}:
	default:
	}
}

// run is the goroutine body for a registered task: it waits for the
// scheduler's first dispatch, then runs Activity to completion. Either
// path (fell off the end, or TaskHandle.Terminate called runtime.Goexit
// from within Activity) ends with onTaskExit notifying the scheduler.
func (t *Task) run() {
	defer t.scheduler.onTaskExit(t)

	handle := &TaskHandle{task: t}
	t.park()
	t.Activity(handle)
	t.postMessage(MessageTerminate, nil)
}
