// Tests for alloc.go

package lazuli_internal

import "testing"

func TestArenaReserve(t *testing.T) {
	a := NewArena(100, 10)

	start, err := a.Reserve(20)
	if err != nil {
		t.Fatal(err)
	}
	if start != 0 {
		t.Fatalf("want start 0, got %d", start)
	}
	if a.Used() != 20 {
		t.Fatalf("want Used 20, got %d", a.Used())
	}
	if a.Available() != 70 {
		t.Fatalf("want Available 70, got %d", a.Available())
	}

	start, err = a.Reserve(30)
	if err != nil {
		t.Fatal(err)
	}
	if start != 20 {
		t.Fatalf("want start 20, got %d", start)
	}
	if a.Used() != 50 {
		t.Fatalf("want Used 50, got %d", a.Used())
	}
}

func TestArenaOutOfMemory(t *testing.T) {
	a := NewArena(100, 10)

	if _, err := a.Reserve(91); err != ErrOutOfMemory {
		t.Fatalf("want ErrOutOfMemory, got %v", err)
	}

	if _, err := a.Reserve(90); err != nil {
		t.Fatalf("exact fit into the non-guard region should succeed, got %v", err)
	}

	if a.Available() != 0 {
		t.Fatalf("want Available 0, got %d", a.Available())
	}

	if _, err := a.Reserve(1); err != ErrOutOfMemory {
		t.Fatalf("want ErrOutOfMemory once exhausted, got %v", err)
	}
}
