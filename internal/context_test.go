// Tests for context.go

package lazuli_internal

import "testing"

func TestReverseBytesOfFunctionPointerInvolution(t *testing.T) {
	for _, p := range []uintptr{
		0,
		1,
		0xff,
		0x1234567890abcdef,
		^uintptr(0),
	} {
		reversed := ReverseBytesOfFunctionPointer(p)
		// 0 and all-ones read the same in either byte order.
		if p != 0 && p != ^uintptr(0) && reversed == p {
			t.Fatalf("ReverseBytesOfFunctionPointer(%#x) = %#x: expected byte order to change", p, reversed)
		}
		if got := ReverseBytesOfFunctionPointer(reversed); got != p {
			t.Fatalf("involution failed: p=%#x, reversed=%#x, reversed twice=%#x", p, reversed, got)
		}
	}
}

func TestReverseBytesOfFunctionPointerKnownValue(t *testing.T) {
	got := ReverseBytesOfFunctionPointer(0x0102030405060708)
	want := uintptr(0x0807060504030201)
	if got != want {
		t.Fatalf("want %#x, got %#x", want, got)
	}
}

func TestPrepareTaskContextDispatchPark(t *testing.T) {
	s := &Scheduler{}
	ran := make(chan struct{})
	task := &Task{
		Name:       "t",
		scheduler:  s,
		resumeChan: make(chan resumeSignal, 1),
		Activity: func(h *TaskHandle) {
			close(ran)
		},
	}

	PrepareTaskContext(task)

	select {
	case <-ran:
		t.Fatal("task should not run Activity before Dispatch")
	default:
	}

	Dispatch(task)

	<-ran
}
