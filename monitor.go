package synic

import (
	"io"

	"github.com/tinyrange/synic/hv"
)

// MonitorSupport returns monitor-page access routed through the
// registry, or nil if the partition does not implement monitor pages.
func (p *Ports) MonitorSupport() hv.MonitorAccess {
	if p.partition.MonitorSupport() == nil {
		return nil
	}
	return monitorAccess{p}
}

type monitorAccess struct {
	p *Ports
}

func (m monitorAccess) RegisterMonitor(monitorID hv.MonitorID, connectionID uint32) (io.Closer, error) {
	return m.p.partition.MonitorSupport().RegisterMonitor(monitorID, connectionID)
}

func (m monitorAccess) SetMonitorPage(gpa uint64) error {
	return m.p.partition.MonitorSupport().SetMonitorPage(gpa)
}

func (m monitorAccess) ClearMonitorPage() error {
	return m.p.partition.MonitorSupport().ClearMonitorPage()
}
