// Package rtprio implements the Real-Time Priority Service (spec.md §4.7):
// on the first audio callback entry, request the OS's highest-priority
// real-time scheduling class for the calling thread, retain whatever is
// needed to revert it, and never fail the engine's startup if the request
// is refused or unsupported.
package rtprio

import "errors"

// ErrUnsupported indicates the current platform has no real-time
// scheduling class equivalent. Raise returns it alongside a usable
// (no-op) Handle; the engine logs it as a warning (no EventSink event is
// raised for it), never as a startup failure.
var ErrUnsupported = errors.New("rtprio: no real-time scheduling class on this platform")

// Handle tracks whether Raise actually applied a real-time policy. The
// zero Handle is a valid no-op. Revert does not restore the original
// thread's scheduling policy — see rtprio_linux.go's Revert for why —
// priority is best-effort for the lifetime of the raised thread, per
// spec.md §4.7.
type Handle struct {
	applied bool
}
