// Package hv defines the partition capability consumed by the SynIC
// port registry: the interface through which messages and interrupts
// actually reach virtual processors, plus the host event primitive
// used for hardware-accelerated event signaling.
package hv

import (
	"io"

	"github.com/tinyrange/synic/hvdef"
)

// VpIndex identifies a virtual processor within a partition.
type VpIndex uint32

// MonitorID identifies a monitored-interrupt slot in the partition's
// monitor page.
type MonitorID uint8

// Event is a host event object that can be signaled from any thread
// without guest cooperation. On Linux this is typically an eventfd.
type Event interface {
	// Signal sets the event.
	Signal() error
	// Wait blocks until the event has been signaled since the last
	// Wait, then resets it.
	Wait() error
}

// GuestEventPort signals an event into the guest on a previously
// configured VP, SINT, and flag.
type GuestEventPort interface {
	io.Closer

	// Set targets the port at the given VP and SINT.
	Set(vtl hvdef.Vtl, vp VpIndex, sint uint8, flag uint16) error
	// Interrupt signals the configured target.
	Interrupt() error
}

// MonitorAccess exposes the partition's monitor-page support.
type MonitorAccess interface {
	// RegisterMonitor associates a monitor bit with a connection ID.
	// Closing the returned handle removes the association.
	RegisterMonitor(monitorID MonitorID, connectionID uint32) (io.Closer, error)
	// SetMonitorPage sets the guest physical address of the monitor
	// page and enables monitored interrupts.
	SetMonitorPage(gpa uint64) error
	// ClearMonitorPage disables monitored interrupts.
	ClearMonitorPage() error
}

// Synic is the per-partition capability the port registry delegates
// to. Implementations must be safe for concurrent use.
type Synic interface {
	// PostMessage delivers a message to the target VP's SINT message
	// slot.
	PostMessage(vtl hvdef.Vtl, vp VpIndex, sint uint8, typ uint32, payload []byte) error

	// NewHostEventPort creates a direct host-level binding that
	// signals connectionID's event port whenever event is signaled,
	// bypassing software dispatch. Returns (nil, nil) if the platform
	// has no such fast path.
	NewHostEventPort(connectionID uint32, minimumVTL hvdef.Vtl, event Event) (io.Closer, error)

	// NewGuestEventPort returns an unconfigured port for signaling
	// events into the guest.
	NewGuestEventPort() (GuestEventPort, error)

	// PreferOSEvents reports whether event ports backed by host
	// events are cheaper than callback dispatch on this platform.
	PreferOSEvents() bool

	// MonitorSupport returns the partition's monitor-page support, or
	// nil if the platform does not implement monitor pages.
	MonitorSupport() MonitorAccess
}
