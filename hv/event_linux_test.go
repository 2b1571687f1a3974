//go:build linux

package hv

import "testing"

func TestEventFD(t *testing.T) {
	e, err := NewEventFD()
	if err != nil {
		t.Fatalf("NewEventFD: %v", err)
	}
	defer e.Close()

	if e.FD() < 0 {
		t.Fatalf("expected a valid file descriptor, got %d", e.FD())
	}

	for n := 0; n < 2; n++ {
		if err := e.Signal(); err != nil {
			t.Fatalf("Signal: %v", err)
		}
	}
	// eventfd counts: both signals are consumed by one read.
	if err := e.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
