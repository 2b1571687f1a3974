// Package synic implements a partition's SynIC connection-port
// registry: the mapping from guest/host-agreed connection IDs to the
// in-process handlers that receive posted messages and signaled
// events. The registry sits on the hypervisor-exit path, so dispatch
// holds its lock only long enough to look up a port; handlers are
// invoked with the lock released and may re-enter the registry.
package synic

import (
	"errors"

	"github.com/tinyrange/synic/hv"
	"github.com/tinyrange/synic/hvdef"
)

// ErrConnectionIDInUse is returned when registering a connection ID
// that already has a port.
var ErrConnectionIDInUse = errors.New("connection ID already in use")

// MessagePort receives messages posted to a connection.
//
// Implementations must be safe for concurrent use; the registry does
// not serialize calls to the same port.
type MessagePort interface {
	// HandleMessage handles a posted message. secure is set when the
	// message was posted by a secure-mode hypercall. It returns false
	// if the port is out of buffer space and the guest should retry.
	HandleMessage(msg []byte, secure bool) bool
}

// EventPort receives event signals for a connection.
type EventPort interface {
	// HandleEvent handles a signaled event flag.
	HandleEvent(flag uint16)

	// OSEvent returns a host event to be bound directly to the
	// connection by the hypervisor, or nil if the port only supports
	// callback dispatch. When a binding exists the hypervisor may
	// signal the event instead of calling HandleEvent.
	OSEvent() hv.Event
}

// Config adjusts registry policy.
type Config struct {
	// BackpressureStatus is returned from HandlePostMessage when a
	// message port reports it is out of buffer space. The zero value
	// selects HvStatusInsufficientBuffers; some guests instead expect
	// HvStatusTimeout to force a retry.
	BackpressureStatus hvdef.HvError
}

func (c Config) backpressureStatus() hvdef.HvError {
	if c.BackpressureStatus != 0 {
		return c.BackpressureStatus
	}
	return hvdef.HvStatusInsufficientBuffers
}
