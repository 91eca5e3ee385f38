// Kernel bootstrap and fatal-error handling.
//
// Lz_Run on real hardware never returns: it starts the tick interrupt
// and falls into the idle task forever. Here Run blocks until Shutdown
// is called (directly, or via a received OS signal), then waits for
// the scheduler goroutine to exit. This mirrors the
// Start()/defer Shutdown() convention used throughout this codebase's
// other long running components.

package lazuli_internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huandu/go-clone"
)

var kernelLog = NewCompLogger("kernel")

// systemStatus mirrors the packed status byte in scheduler.c: a set of
// sticky bits recording what happened since boot, readable by tasks
// for diagnostics.
type systemStatusBits uint8

const (
	SystemStatusPanicked systemStatusBits = 1 << iota
	SystemStatusDeadlineMissed
)

// Kernel owns the scheduler, the tick source and the process-wide
// configuration. It is the Go analogue of the collection of static
// state scattered across scheduler.c, mutex.c and clock_24.c: here
// that state is grouped and constructed explicitly instead of relying
// on a single flashed image's zero-initialized globals.
type Kernel struct {
	Config *KernelConfig

	Scheduler *Scheduler
	Clock     *Clock24

	// OnDeadlineMiss is invoked (synchronously, from the scheduler's
	// goroutine) whenever a CyclicRT task overruns: either it exhausts
	// its completion budget before parking again (the common case, see
	// Scheduler.consumeCurrentCompletion) or, more rarely, it is found
	// still runnable at the start of a new period despite never having
	// exhausted that budget (see Scheduler.updateCyclicRealTimeTasks).
	// The default logs a warning and sets SystemStatusDeadlineMissed; the
	// task itself is never aborted. A task that exhausted its budget is
	// taken off the CPU until its next release; a starved one simply has
	// its next release scheduled.
	OnDeadlineMiss func(task *Task)

	systemStatus systemStatusBits

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewKernel builds a Kernel from cfg, wiring a real tick source at
// cfg.TickFrequencyHz. Pass a nil cfg to use DefaultKernelConfig(). cfg
// is cloned before being stored, so the kernel is never affected by the
// caller mutating its own copy afterwards.
func NewKernel(cfg *KernelConfig) (*Kernel, error) {
	if cfg == nil {
		cfg = DefaultKernelConfig()
	} else {
		cfg = clone.Clone(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	applyConfig(cfg)
	if err := SetLogger(cfg.LoggerConfig); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	k := &Kernel{
		Config:         cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	k.OnDeadlineMiss = k.defaultOnDeadlineMiss

	k.Scheduler = NewScheduler(k, NewTickerSource(tickPeriod(cfg.TickFrequencyHz)))
	if cfg.Modules.Clock24 {
		k.Clock = NewClock24()
	}

	return k, nil
}

func tickPeriod(hz int) time.Duration {
	return time.Second / time.Duration(hz)
}

func (k *Kernel) defaultOnDeadlineMiss(task *Task) {
	k.systemStatus |= SystemStatusDeadlineMissed
	kernelLog.Warnf("task %q missed its deadline, period reset", task.Name)
}

// RegisterTask is a thin forward to Scheduler.RegisterTask, offered at
// the Kernel level so callers configure one object for both the
// scheduler and the clock/mutex modules.
func (k *Kernel) RegisterTask(cfg *TaskConfiguration) (*TaskHandle, error) {
	return k.Scheduler.RegisterTask(cfg)
}

// Run starts the scheduler and blocks until Shutdown is called or a
// SIGINT/SIGTERM is received, then waits (up to gracePeriod) for the
// scheduler goroutine to stop. A gracePeriod <= 0 waits indefinitely.
func (k *Kernel) Run(gracePeriod time.Duration) error {
	if err := k.Scheduler.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		kernelLog.Warnf("%s received, shutting down", sig)
	case <-k.shutdownCtx.Done():
		kernelLog.Info("shutdown requested, shutting down")
	}

	return k.Scheduler.Shutdown(gracePeriod)
}

// Shutdown requests Run to return; it is safe to call from any
// goroutine, including a task's own activity function.
func (k *Kernel) Shutdown() {
	k.shutdownCancel()
}

// SystemStatus returns the sticky status bits accumulated since boot.
func (k *Kernel) SystemStatus() uint8 {
	return uint8(k.systemStatus)
}

// Panic reports a kernel-context fatal condition: a violated internal
// invariant, not a task-supplied bad argument (see ManageFailure for
// that case). Its effect depends on the active PanicBehavior:
// PanicHalt blocks the calling goroutine forever, PanicReset calls
// os.Exit the way a watchdog-triggered reset would restart the MCU.
func Panic(reason string) {
	kernelLog.Errorf("kernel panic: %s", reason)
	switch activePanicBehavior {
	case PanicReset:
		os.Exit(70) // EX_SOFTWARE, closest stdlib-free analogue of a reset
	default:
		select {}
	}
}

// ManageFailure reports a task-context fatal condition: misuse of the
// public API by a task (nil mutex, bad interrupt id, ...). It aborts
// only the offending task rather than the whole kernel, mirroring
// Kernel_ManageFailure's Task_Abort path on real hardware.
func ManageFailure(task *Task, reason string) {
	kernelLog.Errorf("task %q aborted: %s", taskName(task), reason)
	if task != nil {
		task.selfAbort(fmt.Errorf("%s", reason))
	}
}

func taskName(task *Task) string {
	if task == nil {
		return "<nil>"
	}
	return task.Name
}
