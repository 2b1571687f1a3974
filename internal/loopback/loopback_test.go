package loopback

import (
	"testing"

	"github.com/tinyrange/synic/hv"
	"github.com/tinyrange/synic/hvdef"
)

func TestPostMessageQueueing(t *testing.T) {
	p := New(Config{})

	for i := 0; i < 3; i++ {
		if err := p.PostMessage(hvdef.Vtl0, 1, 2, uint32(i), []byte{byte(i)}); err != nil {
			t.Fatalf("PostMessage %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		msg, ok := p.DequeueMessage(1, 2)
		if !ok {
			t.Fatalf("expected message %d", i)
		}
		if msg.Type != uint32(i) {
			t.Fatalf("expected messages in order, got type %d at index %d", msg.Type, i)
		}
	}
	if _, ok := p.DequeueMessage(1, 2); ok {
		t.Fatalf("expected queue to be drained")
	}
}

func TestPostMessageQueueFull(t *testing.T) {
	p := New(Config{QueueDepth: 2})

	for n := 0; n < 2; n++ {
		if err := p.PostMessage(hvdef.Vtl0, 0, 0, 0, nil); err != nil {
			t.Fatalf("PostMessage: %v", err)
		}
	}
	if err := p.PostMessage(hvdef.Vtl0, 0, 0, 0, nil); err == nil {
		t.Fatalf("expected error when queue is full")
	}
}

func TestPostMessageSintRange(t *testing.T) {
	p := New(Config{})
	if err := p.PostMessage(hvdef.Vtl0, 0, hvdef.NumSints, 0, nil); err == nil {
		t.Fatalf("expected error for out-of-range SINT")
	}
}

func TestHostEventBinding(t *testing.T) {
	p := New(Config{})

	event := hv.NewNotifyEvent()
	binding, err := p.NewHostEventPort(5, hvdef.Vtl0, event)
	if err != nil {
		t.Fatalf("NewHostEventPort: %v", err)
	}

	if _, err := p.NewHostEventPort(5, hvdef.Vtl0, hv.NewNotifyEvent()); err == nil {
		t.Fatalf("expected error binding connection 5 twice")
	}

	fired, err := p.FireHostEvent(hvdef.Vtl0, 5)
	if err != nil {
		t.Fatalf("FireHostEvent: %v", err)
	}
	if !fired {
		t.Fatalf("expected binding to fire")
	}
	if err := event.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if err := binding.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := binding.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fired, _ := p.FireHostEvent(hvdef.Vtl0, 5); fired {
		t.Fatalf("expected binding to be gone after Close")
	}
}

func TestGuestEventPort(t *testing.T) {
	p := New(Config{})

	port, err := p.NewGuestEventPort()
	if err != nil {
		t.Fatalf("NewGuestEventPort: %v", err)
	}
	defer port.Close()

	if err := port.Interrupt(); err == nil {
		t.Fatalf("expected error interrupting an unconfigured port")
	}

	if err := port.Set(hvdef.Vtl0, 1, 2, 9); err != nil {
		t.Fatalf("Set: %v", err)
	}
	for n := 0; n < 2; n++ {
		if err := port.Interrupt(); err != nil {
			t.Fatalf("Interrupt: %v", err)
		}
	}
	if got := p.GuestEventCount(hvdef.Vtl0, 1, 2, 9); got != 2 {
		t.Fatalf("expected 2 interrupts, got %d", got)
	}
}
