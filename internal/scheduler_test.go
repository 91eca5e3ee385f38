// Tests for scheduler.go

package lazuli_internal

import (
	"strings"
	"testing"
	"time"
)

const schedulerTestTimeout = 2 * time.Second

func waitOrTimeout(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(schedulerTestTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// newSchedulerTestKernel builds a Kernel driven by a FakeTickSource, so
// tick-dependent behavior (CyclicRT release, WaitTimer expiry) can be
// exercised deterministically with Tick().
func newSchedulerTestKernel(t *testing.T) (*Kernel, *FakeTickSource) {
	cfg := DefaultKernelConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	applyConfig(cfg)

	k := &Kernel{Config: cfg}
	k.OnDeadlineMiss = k.defaultOnDeadlineMiss

	fake := NewFakeTickSource()
	k.Scheduler = NewScheduler(k, fake)
	if cfg.Modules.Clock24 {
		k.Clock = NewClock24()
	}

	if err := k.Scheduler.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { k.Scheduler.Shutdown(time.Second) })

	return k, fake
}

func TestSchedulerPriorityPreemption(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)

	highHandleCh := make(chan *TaskHandle, 1)
	highRan := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:     "high",
		Policy:   PriorityRT,
		Priority: 5,
		Activity: func(h *TaskHandle) {
			highHandleCh <- h
			h.WaitActivation()
			close(highRan)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var highHandle *TaskHandle
	select {
	case highHandle = <-highHandleCh:
	case <-time.After(schedulerTestTimeout):
		t.Fatal("timed out waiting for high task to start")
	}

	lowRunning := make(chan struct{})
	unblock := make(chan struct{})
	_, err = k.RegisterTask(&TaskConfiguration{
		Name:     "low",
		Policy:   PriorityRT,
		Priority: 1,
		Activity: func(h *TaskHandle) {
			close(lowRunning)
			<-unblock
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, lowRunning, "low task to start running")

	if got := k.Scheduler.CurrentTaskName(); got != "low" {
		t.Fatalf("want low running, got %q", got)
	}

	k.Scheduler.ActivateTask(highHandle)
	waitOrTimeout(t, highRan, "high task to preempt and run")

	select {
	case <-unblock:
		t.Fatal("low task should not have been allowed to finish yet")
	default:
	}

	close(unblock)
}

func TestSchedulerCyclicRelease(t *testing.T) {
	k, fake := newSchedulerTestKernel(t)

	released := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:       "cyclic",
		Policy:     CyclicRT,
		Period:     time.Nanosecond,
		Completion: time.Nanosecond,
		Activity: func(h *TaskHandle) {
			for {
				released <- struct{}{}
				h.WaitActivation()
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Initial dispatch at registration counts as the first release.
	waitOrTimeout(t, released, "initial cyclic release")

	for i := 0; i < 3; i++ {
		fake.Tick()
		waitOrTimeout(t, released, "subsequent cyclic release")
	}
}

func TestSchedulerCyclicPreemptsPriority(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)

	priorityRunning := make(chan struct{})
	neverUnblock := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:     "background",
		Policy:   PriorityRT,
		Priority: 1,
		Activity: func(h *TaskHandle) {
			close(priorityRunning)
			<-neverUnblock
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, priorityRunning, "background priority task to run")

	cyclicRan := make(chan struct{})
	_, err = k.RegisterTask(&TaskConfiguration{
		Name:       "cyclic",
		Policy:     CyclicRT,
		Period:     time.Nanosecond,
		Completion: time.Nanosecond,
		Activity: func(h *TaskHandle) {
			close(cyclicRan)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	waitOrTimeout(t, cyclicRan, "cyclic task to preempt the priority task")
}

func TestSchedulerDeadlineMiss(t *testing.T) {
	k, fake := newSchedulerTestKernel(t)

	deadlineMissed := make(chan struct{})
	k.OnDeadlineMiss = func(task *Task) {
		k.defaultOnDeadlineMiss(task)
		close(deadlineMissed)
	}

	started := make(chan struct{})
	block := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:       "slow",
		Policy:     CyclicRT,
		Period:     time.Nanosecond,
		Completion: time.Nanosecond,
		Activity: func(h *TaskHandle) {
			close(started)
			<-block // never calls WaitActivation again before the next release
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, started, "slow cyclic task to start")

	fake.Tick()
	waitOrTimeout(t, deadlineMissed, "deadline miss notification")

	if k.SystemStatus()&uint8(SystemStatusDeadlineMissed) == 0 {
		t.Fatal("want SystemStatusDeadlineMissed set")
	}

	close(block)
}

func TestSchedulerHandleInterrupt(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)

	woken := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:     "waiter",
		Policy:   PriorityRT,
		Priority: 1,
		Activity: func(h *TaskHandle) {
			h.WaitInterrupt(3)
			close(woken)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-woken:
		t.Fatal("task should still be parked before the interrupt fires")
	case <-time.After(20 * time.Millisecond):
	}

	k.Scheduler.HandleInterrupt(3)
	waitOrTimeout(t, woken, "task to wake up on interrupt")
}

func TestSchedulerWaitInterruptOutOfRange(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)

	aborted := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:     "bad",
		Policy:   PriorityRT,
		Priority: 1,
		Activity: func(h *TaskHandle) {
			defer close(aborted)
			h.WaitInterrupt(k.Config.MaxIRQ + 1)
			t.Error("Activity should not resume past an out-of-range WaitInterrupt")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	waitOrTimeout(t, aborted, "task to self-abort on out-of-range irq")
}

func TestSchedulerAbortTask(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)

	aborted := make(chan struct{})
	parked := make(chan struct{})
	handleCh := make(chan *TaskHandle, 1)
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:     "victim",
		Policy:   PriorityRT,
		Priority: 1,
		Activity: func(h *TaskHandle) {
			defer close(aborted)
			handleCh <- h
			close(parked)
			h.WaitActivation()
			t.Error("Activity should not resume after AbortTask")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var handle *TaskHandle
	select {
	case handle = <-handleCh:
	case <-time.After(schedulerTestTimeout):
		t.Fatal("timed out waiting for task handle")
	}
	waitOrTimeout(t, parked, "task to reach WaitActivation")
	// Give the goroutine a moment to actually enter the blocking receive
	// inside park(), past the point where parked was signaled.
	time.Sleep(20 * time.Millisecond)

	k.Scheduler.AbortTask(handle, ErrOutOfMemory)
	waitOrTimeout(t, aborted, "victim task to unwind via AbortTask")

	if got := k.Scheduler.CurrentTaskName(); got != "" {
		t.Fatalf("want idle CPU after abort, got %q", got)
	}
}

// TestSchedulerStrictPreemption registers two PriorityRT tasks, A
// (priority 10) and B (priority 15). While B is ready it never lets A
// run, even though A is contending the whole time; A only makes
// progress once B voluntarily parks via WaitActivation. A's loop body
// is test-gated rather than a true tight loop so the assertion on the
// captured serial output is exact rather than racy.
func TestSchedulerStrictPreemption(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)

	serialOutMu.Lock()
	serialOutBuf.Reset()
	serialOutMu.Unlock()

	const bLoops = 20
	const aLoops = 5

	aGate := make(chan struct{})
	aWritten := make(chan struct{}, aLoops)
	aDone := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:     "A",
		Policy:   PriorityRT,
		Priority: 10,
		Activity: func(h *TaskHandle) {
			for i := 0; i < aLoops; i++ {
				<-aGate
				h.WriteString("T")
				aWritten <- struct{}{}
			}
			close(aDone)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	bDone := make(chan struct{})
	_, err = k.RegisterTask(&TaskConfiguration{
		Name:     "B",
		Policy:   PriorityRT,
		Priority: 15,
		Activity: func(h *TaskHandle) {
			for i := 0; i < bLoops; i++ {
				h.WriteString("F")
			}
			close(bDone)
			h.WaitActivation()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, bDone, "B to finish its print loop and yield")

	if got, want := SerialOutputSnapshot(), strings.Repeat("F", bLoops); got != want {
		t.Fatalf("output before B yields: got %q, want %q", got, want)
	}

	for i := 0; i < aLoops; i++ {
		aGate <- struct{}{}
		waitOrTimeout(t, aWritten, "A to catch up on its pending checkpoint and write")
	}
	waitOrTimeout(t, aDone, "A to finish its print loop")

	want := strings.Repeat("F", bLoops) + strings.Repeat("T", aLoops)
	if got := SerialOutputSnapshot(); got != want {
		t.Fatalf("final output: got %q, want %q", got, want)
	}
}

// TestSchedulerRateMonotonicInfeasible registers three CyclicRT tasks
// whose combined utilization (1/4 + 2/6 + 3/12 ~= 0.833) exceeds the
// rate-monotonic feasibility bound for three tasks (~0.779). period4 and
// period6 always finish well inside their own completion budget and
// keep releasing cleanly throughout; period12 never calls WaitActivation
// again, so it holds the CPU until its completion budget, run down by
// the real time elapsed between ticks, reaches zero (around the fourth
// tick, since the first tick has no previous tick to measure from).
// That exhaustion is itself the missed deadline (see
// consumeCurrentCompletion).
func TestSchedulerRateMonotonicInfeasible(t *testing.T) {
	k, fake := newSchedulerTestKernel(t)

	missed := make(chan string, 8)
	k.OnDeadlineMiss = func(task *Task) {
		k.defaultOnDeadlineMiss(task)
		select {
		case missed <- task.Name:
		default:
		}
	}

	// Real, millisecond-scale periods rather than the nanosecond trick
	// used elsewhere in this file for "always overdue": this test pits
	// three different periods against each other and against real
	// elapsed time (the budget decrement in consumeCurrentCompletion is
	// wall-clock based), so the ratios have to correspond to real time
	// actually elapsing between Tick() calls, paced below by sleeping.
	const tick = 20 * time.Millisecond

	started4 := make(chan struct{})
	_, err := k.RegisterTask(&TaskConfiguration{
		Name:       "period4",
		Policy:     CyclicRT,
		Period:     4 * tick,
		Completion: 1 * tick,
		Activity: func(h *TaskHandle) {
			close(started4)
			for {
				h.WaitActivation()
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, started4, "period-4 task to start")

	started6 := make(chan struct{})
	_, err = k.RegisterTask(&TaskConfiguration{
		Name:       "period6",
		Policy:     CyclicRT,
		Period:     6 * tick,
		Completion: 2 * tick,
		Activity: func(h *TaskHandle) {
			close(started6)
			for {
				h.WaitActivation()
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, started6, "period-6 task to start")

	started12 := make(chan struct{})
	block := make(chan struct{})
	_, err = k.RegisterTask(&TaskConfiguration{
		Name:       "period12",
		Policy:     CyclicRT,
		Period:     12 * tick,
		Completion: 3 * tick,
		Activity: func(h *TaskHandle) {
			close(started12)
			<-block // overruns every release: never reaches WaitActivation
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, started12, "period-12 task to start")

	for i := 0; i < 12; i++ {
		time.Sleep(tick)
		fake.Tick()
	}

	select {
	case <-missed:
	case <-time.After(schedulerTestTimeout):
		t.Fatal("expected at least one deadline miss within the 12-tick LCM window")
	}

	close(block)
}

func TestSchedulerStartTwiceFails(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)
	if err := k.Scheduler.Start(); err == nil {
		t.Fatal("want error starting an already running scheduler")
	}
}

func TestSchedulerShutdownIdempotent(t *testing.T) {
	k, _ := newSchedulerTestKernel(t)
	if err := k.Scheduler.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := k.Scheduler.Shutdown(time.Second); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got %v", err)
	}
}
