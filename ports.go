package synic

import (
	"fmt"
	"io"
	"sync"

	"github.com/tinyrange/synic/hv"
	"github.com/tinyrange/synic/hvdef"
)

// Ports routes posted messages and signaled events to registered
// ports, gated by each port's minimum VTL. One Ports instance exists
// per partition; it is shared between device setup/teardown code and
// the exit-handling threads.
type Ports struct {
	partition hv.Synic
	cfg       Config
	ports     *portMap
}

// portMap is the shared state between the registry and outstanding
// PortHandles. closed marks registry teardown so that late handle
// releases become no-ops.
type portMap struct {
	mu     sync.Mutex
	closed bool
	m      map[uint32]port
}

type port struct {
	messagePort MessagePort
	eventPort   EventPort
	minimumVTL  hvdef.Vtl
}

// New creates a port registry delegating delivery to partition.
func New(partition hv.Synic, cfg Config) *Ports {
	return &Ports{
		partition: partition,
		cfg:       cfg,
		ports:     &portMap{m: make(map[uint32]port)},
	}
}

// Close tears the registry down. Handles released afterwards no
// longer assert that their entry is present.
func (p *Ports) Close() error {
	p.ports.mu.Lock()
	defer p.ports.mu.Unlock()
	p.ports.closed = true
	p.ports.m = nil
	return nil
}

// AddMessagePort registers port to receive messages posted to
// connectionID from VTLs at or above minimumVTL. Closing the returned
// handle unregisters it.
func (p *Ports) AddMessagePort(connectionID uint32, minimumVTL hvdef.Vtl, mp MessagePort) (*PortHandle, error) {
	if err := p.ports.insert(connectionID, port{messagePort: mp, minimumVTL: minimumVTL}); err != nil {
		return nil, err
	}
	return &PortHandle{ports: p.ports, connectionID: connectionID}, nil
}

// AddEventPort registers port to receive events signaled on
// connectionID from VTLs at or above minimumVTL. If the port exposes
// a host event, a direct hypervisor binding is created first; the
// binding is released together with the returned handle.
func (p *Ports) AddEventPort(connectionID uint32, minimumVTL hvdef.Vtl, ep EventPort) (*PortHandle, error) {
	var inner io.Closer
	if event := ep.OSEvent(); event != nil {
		binding, err := p.partition.NewHostEventPort(connectionID, minimumVTL, event)
		if err != nil {
			return nil, fmt.Errorf("create host event port for connection %#x: %w", connectionID, err)
		}
		inner = binding
	}

	if err := p.ports.insert(connectionID, port{eventPort: ep, minimumVTL: minimumVTL}); err != nil {
		if inner != nil {
			inner.Close()
		}
		return nil, err
	}
	return &PortHandle{ports: p.ports, connectionID: connectionID, inner: inner}, nil
}

// HandlePostMessage routes a guest post-message operation issued from
// vtl against connectionID. The port handler runs with the registry
// lock released and may itself register or unregister ports.
func (p *Ports) HandlePostMessage(vtl hvdef.Vtl, connectionID uint32, secure bool, message []byte) error {
	entry, ok := p.ports.lookup(connectionID)
	if !ok || entry.messagePort == nil {
		return hvdef.HvStatusInvalidConnectionID
	}
	if vtl < entry.minimumVTL {
		return hvdef.HvStatusOperationDenied
	}
	if !entry.messagePort.HandleMessage(message, secure) {
		return p.cfg.backpressureStatus()
	}
	return nil
}

// HandleSignalEvent routes a guest signal-event operation issued from
// vtl against connectionID. Event delivery is fire-and-forget; the
// only failures are a missing port and a VTL below the port's
// minimum.
func (p *Ports) HandleSignalEvent(vtl hvdef.Vtl, connectionID uint32, flag uint16) error {
	entry, ok := p.ports.lookup(connectionID)
	if !ok || entry.eventPort == nil {
		return hvdef.HvStatusInvalidConnectionID
	}
	if vtl < entry.minimumVTL {
		return hvdef.HvStatusOperationDenied
	}
	entry.eventPort.HandleEvent(flag)
	return nil
}

// PostMessage delivers a message to the target VP's SINT via the
// partition.
func (p *Ports) PostMessage(vtl hvdef.Vtl, vp hv.VpIndex, sint uint8, typ uint32, payload []byte) error {
	return p.partition.PostMessage(vtl, vp, sint, typ, payload)
}

// NewGuestEventPort returns an unconfigured port for signaling events
// into the guest.
func (p *Ports) NewGuestEventPort() (hv.GuestEventPort, error) {
	return p.partition.NewGuestEventPort()
}

// PreferOSEvents reports whether event ports should supply host
// events on this platform.
func (p *Ports) PreferOSEvents() bool {
	return p.partition.PreferOSEvents()
}

func (m *portMap) insert(connectionID uint32, entry port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("connection %#x: registry closed", connectionID)
	}
	if _, exists := m.m[connectionID]; exists {
		return fmt.Errorf("connection %#x: %w", connectionID, ErrConnectionIDInUse)
	}
	m.m[connectionID] = entry
	return nil
}

// lookup returns a copy of the entry so the caller can invoke the
// handler without holding the lock.
func (m *portMap) lookup(connectionID uint32) (port, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.m[connectionID]
	return entry, ok
}
