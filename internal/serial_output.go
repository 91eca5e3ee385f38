// Serial output stream (supplements src/kern/modules/printf/printf.c's
// Usart_PutChar).
//
// The original writes characters straight to the UART data register
// from a busy-polled byte-at-a-time loop: a hardware write has nothing
// to block on and no reason to involve the scheduler. A goroutine has
// no equivalent direct hardware access, so writes are collected here
// instead; routing them through the task's handle also gives a
// frequently-called, kernel-mediated entry point for Task.checkpoint,
// which otherwise only fires on the Wait* family of calls.

package lazuli_internal

import (
	"bytes"
	"sync"
)

var (
	serialOutMu  sync.Mutex
	serialOutBuf bytes.Buffer
)

// WriteString appends s to the serial output stream.
func (h *TaskHandle) WriteString(s string) {
	h.task.checkpoint()
	serialOutMu.Lock()
	serialOutBuf.WriteString(s)
	serialOutMu.Unlock()
}

// SerialOutputSnapshot returns everything written to the serial output
// stream so far. It exists for tests and diagnostics to inspect task
// output without wiring an actual UART.
func SerialOutputSnapshot() string {
	serialOutMu.Lock()
	defer serialOutMu.Unlock()
	return serialOutBuf.String()
}
