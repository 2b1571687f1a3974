package synic

import (
	"fmt"
	"io"
	"sync"
)

// PortHandle is the sole authority to remove its connection's entry.
// It holds a non-owning reference to the registry's map: releasing a
// handle after the registry has been closed is a no-op.
type PortHandle struct {
	ports        *portMap
	connectionID uint32
	inner        io.Closer
	once         sync.Once
}

// Close unregisters the connection and releases any host event
// binding. It panics if the registry is still alive but the entry is
// gone, since nothing but this handle may remove it.
func (h *PortHandle) Close() error {
	var err error
	h.once.Do(func() {
		h.ports.mu.Lock()
		if !h.ports.closed {
			if _, ok := h.ports.m[h.connectionID]; !ok {
				h.ports.mu.Unlock()
				panic(fmt.Sprintf("synic: connection %#x was removed behind its handle", h.connectionID))
			}
			delete(h.ports.m, h.connectionID)
		}
		h.ports.mu.Unlock()

		if h.inner != nil {
			err = h.inner.Close()
		}
	})
	return err
}
