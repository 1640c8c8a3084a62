//go:build !linux

package rtprio

// Raise is a no-op on platforms without a modeled real-time scheduling
// class. It returns a usable no-op Handle alongside ErrUnsupported so
// callers can surface a warning event without aborting startup, per
// spec.md §4.7's "no-op plus non-fatal warning" requirement.
func Raise() (*Handle, error) {
	return &Handle{}, ErrUnsupported
}

// Revert is a no-op on this platform.
func (h *Handle) Revert() error { return nil }
