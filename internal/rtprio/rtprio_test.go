package rtprio

import "testing"

func TestRevert_NilAndZeroHandleAreNoop(t *testing.T) {
	var h *Handle
	if err := h.Revert(); err != nil {
		t.Fatalf("nil handle revert: %v", err)
	}

	zero := &Handle{}
	if err := zero.Revert(); err != nil {
		t.Fatalf("zero handle revert: %v", err)
	}
}

func TestRaise_NeverPanics(t *testing.T) {
	h, err := Raise()
	if h == nil {
		t.Fatal("Raise returned a nil handle")
	}
	// Raise may legitimately fail (unprivileged test runner, or a
	// platform with no RT scheduling class) — spec.md §4.7 requires that
	// to be non-fatal, so only the returned Handle's usability matters
	// here, not whether the raise itself succeeded.
	_ = err
	if revertErr := h.Revert(); revertErr != nil {
		t.Fatalf("revert after raise: %v", revertErr)
	}
}
