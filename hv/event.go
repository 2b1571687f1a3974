package hv

// NotifyEvent is an in-process Event backed by a channel. It is the
// portable fallback when no kernel event primitive is available, and
// is convenient for loopback partitions and tests.
type NotifyEvent struct {
	ch chan struct{}
}

func NewNotifyEvent() *NotifyEvent {
	return &NotifyEvent{ch: make(chan struct{}, 1)}
}

func (e *NotifyEvent) Signal() error {
	select {
	case e.ch <- struct{}{}:
	default:
		// Already pending; signals coalesce like a set/reset event.
	}
	return nil
}

func (e *NotifyEvent) Wait() error {
	<-e.ch
	return nil
}

var _ Event = (*NotifyEvent)(nil)
