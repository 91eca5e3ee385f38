// Mutex (C8): a blocking lock built on a single atomic flag plus the
// scheduler's park/wake machinery, grounded on
// src/kern/modules/mutex/mutex.c's CAS-loop Lz_Mutex_Lock and its
// Scheduler_WakeupTasksWaitingMutex-driven Lz_Mutex_Unlock.

package lazuli_internal

import "sync/atomic"

// Mutex is a non-reentrant lock shared between tasks. The zero value
// is a valid, unlocked Mutex.
type Mutex struct {
	locked  atomic.Bool
	waiters List
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{}
}

// NewLockedMutex returns a Mutex that starts out locked, the Go
// analogue of Lz_Mutex_InitLocked.
func NewLockedMutex() *Mutex {
	m := &Mutex{}
	m.locked.Store(true)
	return m
}

// Lock acquires m, parking the calling task on contention. A nil m is
// a task-context misuse, reported via ManageFailure rather than a Go
// panic, since it aborts only the offending task. The checkpoint comes
// after the lock is actually held: a pending preemption must not strand
// m held by a task that never gets back here to release it.
func (m *Mutex) Lock(h *TaskHandle) {
	if failOnNilMutex(m, h) {
		return
	}
	for !m.locked.CompareAndSwap(false, true) {
		h.task.postAndPark(MessageWaitMutex, m)
	}
	h.task.checkpoint()
}

// TryLock attempts to acquire m without blocking, reporting whether it
// succeeded.
func (m *Mutex) TryLock(h *TaskHandle) bool {
	if failOnNilMutex(m, h) {
		return false
	}
	ok := m.locked.CompareAndSwap(false, true)
	h.task.checkpoint()
	return ok
}

// Unlock releases m and wakes every task parked waiting for it; they
// re-race for the lock the next time they run, same as the original's
// "wake all, let them re-attempt the CAS" policy. The checkpoint comes
// last, after the waiters have actually been woken, for the same
// reason as Lock: the unlock itself must not be left half-done.
func (m *Mutex) Unlock(h *TaskHandle) {
	if failOnNilMutex(m, h) {
		return
	}
	m.locked.Store(false)
	h.task.scheduler.wakeupMutexWaiters(m)
	h.task.checkpoint()
}

func failOnNilMutex(m *Mutex, h *TaskHandle) bool {
	if m == nil && CheckNullParametersInMutexes {
		ManageFailure(h.task, "nil mutex")
		return true
	}
	return m == nil
}
