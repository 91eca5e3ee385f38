// Scheduler core (C6).
//
// Exactly one task is ever "current" at a time, chosen by two
// competing disciplines: CyclicRT tasks are released on a fixed period
// and always preempt PriorityRT tasks (rate-monotonic among
// themselves, shortest period first); PriorityRT tasks run whenever
// activated, ordered by a fixed priority number (highest wins). A
// single mutex guards every piece of scheduler state, standing in for
// "interrupts disabled": any goroutine, whether the tick loop or a
// task parking itself, takes it for the duration of a scheduling
// decision, the same discipline scheduler.c uses around its own
// critical sections.
//
// Grounded on original_source/sys/kern/scheduler.c: PickTaskToRun,
// UpdateCyclicRealTimeTasks, UpdateTasksWaitingSoftwareTimer,
// Scheduler_HandleInterrupt, Scheduler_WakeupTasksWaitingMutex,
// RegisterTask. The lifecycle idiom (State enum, Start/Shutdown,
// context+cancel+WaitGroup) is kept from vmi/internal/scheduler.go.

package lazuli_internal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	SCHEDULER_ARENA_SIZE_DEFAULT = 64 * 1024
	SCHEDULER_ARENA_GUARD_GAP    = 256
)

// SchedulerState tracks the lifecycle of the scheduler's background
// tick loop.
type SchedulerState int

const (
	SchedulerCreated SchedulerState = iota
	SchedulerRunning
	SchedulerStopped
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerCreated:
		return "Created"
	case SchedulerRunning:
		return "Running"
	case SchedulerStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

var schedulerLog = NewCompLogger("scheduler")

// Scheduler owns every task and picks which one runs next. There is no
// idle task goroutine: when nothing is ready, currentTask is simply
// nil and the tick loop keeps running with the "CPU" doing nothing,
// which is what a Go process does for free and what an actual idle
// task would otherwise have to busy-loop or sleep to achieve.
type Scheduler struct {
	kernel *Kernel
	tick   TickSource

	mu    sync.Mutex
	state SchedulerState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	arena *Arena

	allTasks    []*Task
	cyclicTasks []*Task

	readyCyclic       List
	readyPriority     List
	waitingActivation List
	waitingTimer      List
	waitingInterrupt  []List
	terminatedList    List
	abortedList       List

	currentTask *Task

	ticksElapsed    uint64
	ticksThisSecond int
	lastTickAt      time.Time
}

// NewScheduler constructs a Scheduler for kernel k, driven by tick.
func NewScheduler(k *Kernel, tick TickSource) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		kernel:           k,
		tick:             tick,
		ctx:              ctx,
		cancel:           cancel,
		state:            SchedulerCreated,
		arena:            NewArena(SCHEDULER_ARENA_SIZE_DEFAULT, SCHEDULER_ARENA_GUARD_GAP),
		waitingInterrupt: make([]List, int(k.Config.MaxIRQ)+1),
	}
	return s
}

// RegisterTask creates and starts a task from cfg, returning a handle
// that identifies it to ActivateTask and AbortTask; the task's Activity
// receives its own handle for its Wait*/Terminate calls. Stack budget
// is checked against the kernel's arena before the task is allowed
// onto any queue.
func (s *Scheduler) RegisterTask(cfg *TaskConfiguration) (*TaskHandle, error) {
	if cfg == nil || cfg.Activity == nil {
		return nil, fmt.Errorf("task registration: Activity is required")
	}

	stackSize := cfg.StackSize
	if stackSize < KERNEL_CONFIG_MIN_STACK_SIZE {
		stackSize = s.kernel.Config.DefaultStackSize
	}
	if _, err := s.arena.Reserve(uintptr(stackSize)); err != nil {
		return nil, fmt.Errorf("task %q: %w", cfg.Name, err)
	}

	priority := cfg.Priority
	if cfg.Policy == PriorityRT && priority == 0 {
		priority = s.kernel.Config.DefaultPriority
	}
	if cfg.Policy == CyclicRT && cfg.Period <= 0 {
		return nil, fmt.Errorf("task %q: CyclicRT requires Period > 0", cfg.Name)
	}
	if cfg.Policy == CyclicRT && (cfg.Completion <= 0 || cfg.Completion > cfg.Period) {
		return nil, fmt.Errorf("task %q: CyclicRT requires 0 < Completion <= Period", cfg.Name)
	}

	t := newTask(s, &TaskConfiguration{
		Name:       cfg.Name,
		Policy:     cfg.Policy,
		Priority:   priority,
		Period:     cfg.Period,
		Completion: cfg.Completion,
		Activity:   cfg.Activity,
	})

	// Start the goroutine before the task is visible to the scheduler:
	// it parks immediately, and if reschedule() below picks it before it
	// gets there, Dispatch's resume signal waits in its buffered channel.
	PrepareTaskContext(t)

	s.mu.Lock()
	s.allTasks = append(s.allTasks, t)
	if cfg.Policy == CyclicRT {
		s.cyclicTasks = append(s.cyclicTasks, t)
		t.NextReleaseAt = time.Now().Add(cfg.Period)
		s.insertReadyCyclic(t)
	} else {
		s.insertReadyPriority(t)
	}
	s.reschedule()
	s.mu.Unlock()

	return &TaskHandle{task: t}, nil
}

// ActivateTask moves a PriorityRT task parked on WaitActivation back
// onto the ready queue. It has no effect on a CyclicRT task, whose
// release is driven purely by elapsed time, or on a task not
// currently waiting for activation.
func (s *Scheduler) ActivateTask(h *TaskHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := h.task
	if t.Policy != PriorityRT || t.State != StateWaitingActivation {
		return
	}
	s.dequeue(t)
	s.insertReadyPriority(t)
	s.reschedule()
}

// HandleInterrupt wakes every task parked waiting for irq.
func (s *Scheduler) HandleInterrupt(irq uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(irq) >= len(s.waitingInterrupt) {
		return
	}
	list := &s.waitingInterrupt[irq]
	RemovableForEach(list, func(e *Element) *Element {
		t := taskFromElement(e)
		cursor := Remove(list, e)
		t.queue = nil
		s.requeueReady(t)
		return cursor
	})
	s.reschedule()
}

// AbortTask forcibly terminates a task other than the caller (the
// caller should use TaskHandle.Terminate on itself instead). It lands
// the task on the aborted queue, distinct from the terminated queue a
// voluntary return or TaskHandle.Terminate produces.
func (s *Scheduler) AbortTask(h *TaskHandle, reason error) {
	s.mu.Lock()
	t := h.task
	s.dequeue(t)
	t.State = StateAborted
	s.enqueue(&s.abortedList, t)
	if s.currentTask == t {
		s.currentTask = nil
	}
	s.reschedule()
	s.mu.Unlock()

	schedulerLog.Warnf("task %q aborted: %v", t.Name, reason)
	t.abort(reason)
}

// wakeupMutexWaiters is called by Mutex.Unlock.
func (s *Scheduler) wakeupMutexWaiters(m *Mutex) {
	s.mu.Lock()
	defer s.mu.Unlock()

	RemovableForEach(&m.waiters, func(e *Element) *Element {
		t := taskFromElement(e)
		cursor := Remove(&m.waiters, e)
		t.queue = nil
		s.requeueReady(t)
		return cursor
	})
	s.reschedule()
}

// applyTaskMessage performs the state transition requested by a
// task's message, then re-evaluates who should run. msg/param are
// passed directly (rather than re-derived from the task's atomic
// fields, which remain the externally observable record of what was
// posted).
func (s *Scheduler) applyTaskMessage(t *Task, msg Message, param any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg {
	case MessageWaitActivation:
		t.State = StateWaitingActivation
		if t.Policy == PriorityRT {
			s.enqueue(&s.waitingActivation, t)
		}
	case MessageWaitInterrupt:
		irq, _ := param.(uint8)
		t.WaitingIRQ = irq
		t.State = StateWaitingInterrupt
		s.enqueue(&s.waitingInterrupt[irq], t)
	case MessageWaitTimer:
		d, _ := param.(time.Duration)
		t.WakeupAt = time.Now().Add(d)
		t.State = StateWaitingTimer
		s.enqueue(&s.waitingTimer, t)
	case MessageWaitMutex:
		m, _ := param.(*Mutex)
		t.State = StateWaitingMutex
		s.enqueue(&m.waiters, t)
	case MessageTerminate:
		t.State = StateTerminated
	case MessageAbortTask:
		t.State = StateAborted
	}

	if s.currentTask == t && t.State != StateRunning {
		s.currentTask = nil
	}

	s.reschedule()
}

// onTaskExit is deferred by Task.run; it guarantees a task's
// bookkeeping is cleaned up no matter which path ended the goroutine.
func (s *Scheduler) onTaskExit(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dequeue(t)
	if t.State == StateAborted {
		s.enqueue(&s.abortedList, t)
	} else {
		t.State = StateTerminated
		s.enqueue(&s.terminatedList, t)
	}
	if s.currentTask == t {
		s.currentTask = nil
	}
	s.reschedule()
}

// -- tick handling ----------------------------------------------------

// handleTick is the Go analogue of Scheduler_HandleClockTick: it
// releases any CyclicRT task whose period has elapsed, wakes any task
// whose software timer has expired, advances the 24-hour clock once a
// second's worth of ticks has accumulated, and re-evaluates who should
// run.
func (s *Scheduler) handleTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticksElapsed++

	if s.kernel.Clock != nil {
		s.ticksThisSecond++
		if s.ticksThisSecond >= s.kernel.Config.TickFrequencyHz {
			s.ticksThisSecond = 0
			s.kernel.Clock.Increment()
		}
	}

	s.consumeCurrentCompletion(now)
	s.updateCyclicRealTimeTasks(now)
	s.updateTasksWaitingTimer(now)
	s.reschedule()
}

// consumeCurrentCompletion decrements the running CyclicRT task's
// worst-case execution budget by the wall-clock time actually elapsed
// since the previous tick (rather than assuming exactly one nominal
// tick period elapsed, which would drift under a real ticker and would
// disagree with updateCyclicRealTimeTasks's own wall-clock release
// check, the two having to share a time base for a FakeTickSource-driven
// test to make sense). Exhausting the budget before calling
// WaitActivation again is itself the deadline miss: since Completion
// can never exceed Period, waiting for the next release to notice would
// never fire (this task would already be back in StateWaitingActivation
// by then, masking the overrun as an ordinary release), so the miss is
// reported here, at the moment it actually happens. The task is then
// pulled off the CPU as if it had released control voluntarily; the
// goroutine itself does not know yet, so it is marked preempted like
// any other involuntary handoff (see Task.checkpoint).
func (s *Scheduler) consumeCurrentCompletion(now time.Time) {
	var elapsed time.Duration
	if !s.lastTickAt.IsZero() {
		elapsed = now.Sub(s.lastTickAt)
	}
	s.lastTickAt = now

	t := s.currentTask
	if t == nil || t.Policy != CyclicRT || elapsed <= 0 {
		return
	}
	t.TimeUntilCompletion -= elapsed
	if t.TimeUntilCompletion > 0 {
		return
	}
	s.kernel.OnDeadlineMiss(t)
	// CyclicRT tasks are not tracked on a waitingActivation List entry;
	// updateCyclicRealTimeTasks finds them again by scanning
	// s.cyclicTasks and comparing NextReleaseAt, same as a task that
	// called WaitActivation on its own.
	t.State = StateWaitingActivation
	s.currentTask = nil
	t.preempted.Store(true)
}

// updateCyclicRealTimeTasks releases every CyclicRT task whose period
// has elapsed. A task found in any state other than
// StateWaitingActivation at release time missed its deadline a second,
// independent way (it was never pulled off the CPU by its own
// completion budget, e.g. a PriorityRT task starved it so thoroughly it
// never got to run at all): the kernel is notified but the task is not
// aborted, only its next release is scheduled as if it had run
// normally.
func (s *Scheduler) updateCyclicRealTimeTasks(now time.Time) {
	for _, t := range s.cyclicTasks {
		if t.State == StateTerminated || t.State == StateAborted {
			continue
		}
		if now.Before(t.NextReleaseAt) {
			continue
		}
		if t.State == StateWaitingActivation {
			s.insertReadyCyclic(t)
			t.TimeUntilCompletion = t.Completion
		} else {
			s.kernel.OnDeadlineMiss(t)
		}
		t.NextReleaseAt = t.NextReleaseAt.Add(t.Period)
	}
}

// updateTasksWaitingTimer wakes every task whose WaitTimer deadline
// has passed.
func (s *Scheduler) updateTasksWaitingTimer(now time.Time) {
	RemovableForEach(&s.waitingTimer, func(e *Element) *Element {
		t := taskFromElement(e)
		if now.Before(t.WakeupAt) {
			return e
		}
		cursor := Remove(&s.waitingTimer, e)
		t.queue = nil
		s.requeueReady(t)
		return cursor
	})
}

// -- queue helpers ----------------------------------------------------

// enqueue appends t to list and remembers list as t's current queue so
// it can be found again by dequeue without knowing which list it is on.
func (s *Scheduler) enqueue(list *List, t *Task) {
	t.queue = list
	Append(list, &t.StateQueueLink)
}

// dequeue removes t from whatever list it is currently on, if any.
func (s *Scheduler) dequeue(t *Task) {
	if t.queue == nil {
		return
	}
	list := t.queue
	t.queue = nil
	Remove(list, &t.StateQueueLink)
}

func (s *Scheduler) sortedInsert(list *List, t *Task, less func(a, b *Task) bool) {
	t.queue = list
	inserted := false
	ForEach(list, func(e *Element) bool {
		if less(t, taskFromElement(e)) {
			InsertBefore(list, e, &t.StateQueueLink)
			inserted = true
			return false
		}
		return true
	})
	if !inserted {
		Append(list, &t.StateQueueLink)
	}
}

func (s *Scheduler) insertReadyCyclic(t *Task) {
	t.State = StateReady
	s.sortedInsert(&s.readyCyclic, t, func(a, b *Task) bool { return a.Period < b.Period })
}

func (s *Scheduler) insertReadyPriority(t *Task) {
	t.State = StateReady
	s.sortedInsert(&s.readyPriority, t, func(a, b *Task) bool { return a.Priority > b.Priority })
}

func (s *Scheduler) requeueReady(t *Task) {
	if t.Policy == CyclicRT {
		s.insertReadyCyclic(t)
	} else {
		s.insertReadyPriority(t)
	}
}

// higherPriority reports whether a should run in preference to b, the
// currently running task (b == nil meaning the CPU is idle). CyclicRT
// always beats PriorityRT; within a policy, shorter period (CyclicRT)
// or higher priority number (PriorityRT) wins.
func higherPriority(a, b *Task) bool {
	if b == nil {
		return true
	}
	if a.Policy == CyclicRT && b.Policy != CyclicRT {
		return true
	}
	if a.Policy != CyclicRT && b.Policy == CyclicRT {
		return false
	}
	if a.Policy == CyclicRT {
		return a.Period < b.Period
	}
	return a.Priority > b.Priority
}

// reschedule is PickTaskToRun plus the dispatch it implies: it peeks
// at the best ready candidate, and only commits to a switch (popping
// the candidate, requeueing the preempted task, dispatching the new
// one) once it has decided the switch is warranted. Called with s.mu
// held.
func (s *Scheduler) reschedule() {
	var bestList *List
	var best *Task

	if e := PointFirst(&s.readyCyclic); e != nil {
		bestList, best = &s.readyCyclic, taskFromElement(e)
	} else if e := PointFirst(&s.readyPriority); e != nil {
		bestList, best = &s.readyPriority, taskFromElement(e)
	}

	if best == nil {
		return
	}
	if s.currentTask != nil && !higherPriority(best, s.currentTask) {
		return
	}

	PickFirst(bestList)
	best.queue = nil

	if s.currentTask != nil && s.currentTask.State == StateRunning {
		s.currentTask.preempted.Store(true)
		s.requeueReady(s.currentTask)
	}

	s.currentTask = best
	best.State = StateRunning
	Dispatch(best)
}

// -- lifecycle --------------------------------------------------------

// Start begins the tick loop in a background goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state != SchedulerCreated {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: Start called in state %s", s.state)
	}
	s.state = SchedulerRunning
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop()

	schedulerLog.Info("scheduler started")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-s.tick.Ticks():
			s.handleTick(now)
		}
	}
}

// Shutdown stops the tick loop and waits up to gracePeriod for it to
// exit (indefinitely if gracePeriod <= 0).
func (s *Scheduler) Shutdown(gracePeriod time.Duration) error {
	s.mu.Lock()
	if s.state != SchedulerRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = SchedulerStopped
	s.mu.Unlock()

	s.cancel()
	s.tick.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if gracePeriod <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(gracePeriod):
		return fmt.Errorf("scheduler: shutdown timed out after %s", gracePeriod)
	}
}

// CurrentTaskName returns the name of the currently running task, or
// "" if the CPU is idle. Intended for tests and diagnostics.
func (s *Scheduler) CurrentTaskName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTask == nil {
		return ""
	}
	return s.currentTask.Name
}
