// Package hvdef holds guest-visible hypervisor definitions: virtual
// trust levels and the hypercall status codes surfaced by SynIC
// dispatch. The numeric values follow the hypervisor TLFS so callers
// can pass them straight back to the guest.
package hvdef

import "fmt"

// Vtl is a virtual trust level. Higher values are more trusted; VTL
// comparisons use the ordinary integer order.
type Vtl uint8

const (
	Vtl0 Vtl = iota
	Vtl1
	Vtl2
)

func (v Vtl) String() string {
	return fmt.Sprintf("VTL%d", uint8(v))
}

// NumSints is the number of synthetic interrupt sources per virtual
// processor.
const NumSints = 16

// HvError is a hypervisor status code returned to the immediate
// caller, which translates it into the guest-visible hypercall result.
type HvError uint16

const (
	HvStatusOperationDenied     HvError = 0x0008
	HvStatusInsufficientBuffers HvError = 0x0033
	HvStatusInvalidConnectionID HvError = 0x004A
	HvStatusTimeout             HvError = 0x0078
)

func (e HvError) Error() string {
	switch e {
	case HvStatusOperationDenied:
		return "operation denied"
	case HvStatusInsufficientBuffers:
		return "insufficient buffers"
	case HvStatusInvalidConnectionID:
		return "invalid connection ID"
	case HvStatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("hypervisor error 0x%04x", uint16(e))
	}
}
