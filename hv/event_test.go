package hv

import "testing"

func TestNotifyEventCoalesces(t *testing.T) {
	e := NewNotifyEvent()

	for n := 0; n < 3; n++ {
		if err := e.Signal(); err != nil {
			t.Fatalf("Signal: %v", err)
		}
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// A second Wait would block: the three signals coalesced into one
	// pending notification.
	select {
	case <-e.ch:
		t.Fatalf("expected signals to coalesce")
	default:
	}
}

func TestNotifyEventSignalAfterWait(t *testing.T) {
	e := NewNotifyEvent()

	done := make(chan error, 1)
	go func() {
		done <- e.Wait()
	}()

	if err := e.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
