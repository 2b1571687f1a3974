//go:build linux

package hv

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// EventFD is an eventfd-backed Event suitable for handing to the
// hypervisor as an irqfd-style fast path.
type EventFD struct {
	fd int
}

// NewEventFD creates a counting eventfd.
func NewEventFD() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("create eventfd: %w", err)
	}
	return &EventFD{fd: fd}, nil
}

// FD returns the underlying file descriptor for registration with the
// hypervisor. The EventFD retains ownership.
func (e *EventFD) FD() int { return e.fd }

func (e *EventFD) Signal() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(e.fd, buf[:]); err != nil {
		return fmt.Errorf("signal eventfd: %w", err)
	}
	return nil
}

func (e *EventFD) Wait() error {
	var buf [8]byte
	if _, err := unix.Read(e.fd, buf[:]); err != nil {
		return fmt.Errorf("wait eventfd: %w", err)
	}
	return nil
}

func (e *EventFD) Close() error {
	return unix.Close(e.fd)
}

var _ Event = (*EventFD)(nil)
