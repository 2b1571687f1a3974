package hvdef

import "testing"

func TestVtlOrdering(t *testing.T) {
	if !(Vtl0 < Vtl1 && Vtl1 < Vtl2) {
		t.Fatalf("expected VTLs to be ordered by trust level")
	}
	if Vtl1.String() != "VTL1" {
		t.Fatalf("expected VTL1, got %s", Vtl1.String())
	}
}

func TestHvErrorStatusValues(t *testing.T) {
	// These values are guest-visible hypercall statuses and must not
	// drift.
	cases := []struct {
		err  HvError
		code uint16
		text string
	}{
		{HvStatusOperationDenied, 0x0008, "operation denied"},
		{HvStatusInsufficientBuffers, 0x0033, "insufficient buffers"},
		{HvStatusInvalidConnectionID, 0x004A, "invalid connection ID"},
		{HvStatusTimeout, 0x0078, "timeout"},
	}
	for _, c := range cases {
		if uint16(c.err) != c.code {
			t.Fatalf("%s: expected code 0x%04x, got 0x%04x", c.text, c.code, uint16(c.err))
		}
		if c.err.Error() != c.text {
			t.Fatalf("expected %q, got %q", c.text, c.err.Error())
		}
	}
}
