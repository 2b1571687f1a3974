// Package loopback provides a software partition implementing
// hv.Synic. Messages land in per-VP/SINT in-memory queues and host
// event bindings are tracked in-process, which is enough to stand in
// for a hypervisor in tests and benchmarks.
package loopback

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tinyrange/synic/hv"
	"github.com/tinyrange/synic/hvdef"
)

const defaultQueueDepth = 256

// Message is a message posted to a VP's SINT.
type Message struct {
	Vtl     hvdef.Vtl
	Vp      hv.VpIndex
	Sint    uint8
	Type    uint32
	Payload []byte
}

// Config configures a loopback partition.
type Config struct {
	// QueueDepth bounds each (VP, SINT) message queue. Zero selects a
	// default of 256.
	QueueDepth int
	// PreferOSEvents is reported verbatim through the Synic
	// interface.
	PreferOSEvents bool
	// EnableMonitor enables in-memory monitor-page support.
	EnableMonitor bool
	// Logger receives debug diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Partition is an in-process hv.Synic implementation.
type Partition struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	queues   map[queueKey][]Message
	bindings map[uint32]*hostEventBinding
	guests   map[guestKey]int

	monitor *monitorState
}

type queueKey struct {
	vp   hv.VpIndex
	sint uint8
}

type guestKey struct {
	vtl  hvdef.Vtl
	vp   hv.VpIndex
	sint uint8
	flag uint16
}

// New creates a loopback partition.
func New(cfg Config) *Partition {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	p := &Partition{
		cfg:      cfg,
		log:      cfg.Logger,
		queues:   make(map[queueKey][]Message),
		bindings: make(map[uint32]*hostEventBinding),
		guests:   make(map[guestKey]int),
	}
	if cfg.EnableMonitor {
		p.monitor = &monitorState{monitors: make(map[hv.MonitorID]uint32)}
	}
	return p
}

// PostMessage implements hv.Synic.
func (p *Partition) PostMessage(vtl hvdef.Vtl, vp hv.VpIndex, sint uint8, typ uint32, payload []byte) error {
	if sint >= hvdef.NumSints {
		return fmt.Errorf("SINT %d out of range", sint)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := queueKey{vp: vp, sint: sint}
	if len(p.queues[key]) >= p.cfg.QueueDepth {
		return fmt.Errorf("message queue full for VP %d SINT %d", vp, sint)
	}
	p.queues[key] = append(p.queues[key], Message{
		Vtl:     vtl,
		Vp:      vp,
		Sint:    sint,
		Type:    typ,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// DequeueMessage pops the oldest message posted to the given VP and
// SINT.
func (p *Partition) DequeueMessage(vp hv.VpIndex, sint uint8) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := queueKey{vp: vp, sint: sint}
	queue := p.queues[key]
	if len(queue) == 0 {
		return Message{}, false
	}
	msg := queue[0]
	p.queues[key] = queue[1:]
	return msg, true
}

// NewHostEventPort implements hv.Synic. The binding records the event
// so FireHostEvent can signal it directly, standing in for the
// hypervisor's irqfd-style fast path.
func (p *Partition) NewHostEventPort(connectionID uint32, minimumVTL hvdef.Vtl, event hv.Event) (io.Closer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.bindings[connectionID]; exists {
		return nil, fmt.Errorf("host event port for connection %#x already bound", connectionID)
	}
	binding := &hostEventBinding{
		partition:    p,
		connectionID: connectionID,
		minimumVTL:   minimumVTL,
		event:        event,
	}
	p.bindings[connectionID] = binding
	if p.log != nil {
		p.log.Debug("bound host event port", "connectionID", connectionID, "minimumVTL", minimumVTL.String())
	}
	return binding, nil
}

// FireHostEvent signals the host event bound to connectionID, if any,
// applying the binding's VTL gate. It reports whether the fast path
// handled the signal.
func (p *Partition) FireHostEvent(vtl hvdef.Vtl, connectionID uint32) (bool, error) {
	p.mu.Lock()
	binding, ok := p.bindings[connectionID]
	p.mu.Unlock()
	if !ok || vtl < binding.minimumVTL {
		return false, nil
	}
	if err := binding.event.Signal(); err != nil {
		return false, fmt.Errorf("signal host event for connection %#x: %w", connectionID, err)
	}
	return true, nil
}

// NewGuestEventPort implements hv.Synic.
func (p *Partition) NewGuestEventPort() (hv.GuestEventPort, error) {
	return &guestEventPort{partition: p}, nil
}

// PreferOSEvents implements hv.Synic.
func (p *Partition) PreferOSEvents() bool {
	return p.cfg.PreferOSEvents
}

// MonitorSupport implements hv.Synic.
func (p *Partition) MonitorSupport() hv.MonitorAccess {
	if p.monitor == nil {
		return nil
	}
	return p.monitor
}

// MonitorPage returns the configured monitor page GPA, if monitor
// support is enabled and a page is set.
func (p *Partition) MonitorPage() (uint64, bool) {
	if p.monitor == nil {
		return 0, false
	}
	return p.monitor.MonitorPage()
}

// MonitorConnection returns the connection associated with a monitor
// bit.
func (p *Partition) MonitorConnection(monitorID hv.MonitorID) (uint32, bool) {
	if p.monitor == nil {
		return 0, false
	}
	return p.monitor.MonitorConnection(monitorID)
}

// GuestEventCount returns how many times the given guest event target
// was interrupted.
func (p *Partition) GuestEventCount(vtl hvdef.Vtl, vp hv.VpIndex, sint uint8, flag uint16) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guests[guestKey{vtl: vtl, vp: vp, sint: sint, flag: flag}]
}

type hostEventBinding struct {
	partition    *Partition
	connectionID uint32
	minimumVTL   hvdef.Vtl
	event        hv.Event
	closeOnce    sync.Once
}

func (b *hostEventBinding) Close() error {
	b.closeOnce.Do(func() {
		b.partition.mu.Lock()
		delete(b.partition.bindings, b.connectionID)
		b.partition.mu.Unlock()
	})
	return nil
}

type guestEventPort struct {
	partition *Partition

	mu     sync.Mutex
	target guestKey
	set    bool
}

func (g *guestEventPort) Set(vtl hvdef.Vtl, vp hv.VpIndex, sint uint8, flag uint16) error {
	if sint >= hvdef.NumSints {
		return fmt.Errorf("SINT %d out of range", sint)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.target = guestKey{vtl: vtl, vp: vp, sint: sint, flag: flag}
	g.set = true
	return nil
}

func (g *guestEventPort) Interrupt() error {
	g.mu.Lock()
	target := g.target
	set := g.set
	g.mu.Unlock()
	if !set {
		return fmt.Errorf("guest event port not configured")
	}

	g.partition.mu.Lock()
	g.partition.guests[target]++
	g.partition.mu.Unlock()
	return nil
}

func (g *guestEventPort) Close() error { return nil }

type monitorState struct {
	mu       sync.Mutex
	gpa      uint64
	gpaSet   bool
	monitors map[hv.MonitorID]uint32
}

func (m *monitorState) RegisterMonitor(monitorID hv.MonitorID, connectionID uint32) (io.Closer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.monitors[monitorID]; exists {
		return nil, fmt.Errorf("monitor %d already registered", monitorID)
	}
	m.monitors[monitorID] = connectionID
	return &monitorHandle{state: m, monitorID: monitorID}, nil
}

func (m *monitorState) SetMonitorPage(gpa uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gpa = gpa
	m.gpaSet = true
	return nil
}

func (m *monitorState) ClearMonitorPage() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gpa = 0
	m.gpaSet = false
	return nil
}

// MonitorPage returns the configured monitor page GPA.
func (m *monitorState) MonitorPage() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gpa, m.gpaSet
}

// MonitorConnection returns the connection associated with a monitor
// bit.
func (m *monitorState) MonitorConnection(monitorID hv.MonitorID) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.monitors[monitorID]
	return conn, ok
}

type monitorHandle struct {
	state     *monitorState
	monitorID hv.MonitorID
	closeOnce sync.Once
}

func (h *monitorHandle) Close() error {
	h.closeOnce.Do(func() {
		h.state.mu.Lock()
		delete(h.state.monitors, h.monitorID)
		h.state.mu.Unlock()
	})
	return nil
}

var _ hv.Synic = (*Partition)(nil)
