//go:build linux

package rtprio

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// rtPriority is the SCHED_FIFO priority requested as the closest Linux
// equivalent to a "pro-audio" scheduling class. Picked well below the
// kernel's own RT watchdog threads (typically >=50) so a runaway callback
// cannot starve the scheduler itself.
const rtPriority = 40

// Raise locks the calling goroutine to its current OS thread (scheduling
// policy is a per-thread, not per-process, attribute) and requests
// SCHED_FIFO at rtPriority. Must be called from the callback goroutine
// itself, on first callback entry, per spec.md §4.7. Failure is returned
// wrapped in ErrUnsupported; the engine logs it as a non-fatal warning
// and proceeds at the default scheduling policy.
func Raise() (*Handle, error) {
	runtime.LockOSThread()

	param := &unix.SchedParam{Priority: int32(rtPriority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		runtime.UnlockOSThread()
		return &Handle{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return &Handle{applied: true}, nil
}

// Revert is a documented no-op. SCHED_FIFO is a per-OS-thread attribute of
// whichever thread Raise locked itself to — the audio callback's thread —
// but Revert is invoked later from the engine's management goroutine, a
// different thread entirely, after the device has already stopped
// delivering callbacks. There is no callback invocation left during which
// the original thread could revert its own policy, so calling
// SchedSetscheduler or UnlockOSThread from here would only act on (or
// imbalance) the wrong thread. The raised thread's SCHED_FIFO policy and
// its OS-thread lock are released together when the underlying thread
// itself is torn down, at device Uninit.
func (h *Handle) Revert() error {
	if h == nil {
		return nil
	}
	h.applied = false
	return nil
}
