// Package drift implements the policy that reconciles the capture and
// playback threads' independent sample clocks by observing ring buffer
// occupancy and deciding, once per playback callback, whether to pass,
// stretch, or compress by exactly one frame (spec.md §4.3).
package drift

import "sync/atomic"

// Action is the per-callback decision the Drift Compensator hands back to
// the Playback Worker.
type Action int

const (
	// ActionPass reads exactly the requested frame count; no correction.
	ActionPass Action = iota
	// ActionStretch replicates the last-read frame for any shortfall in
	// this period's read; when the ring still covers the request, nothing
	// is replicated and the read is the same as for ActionPass.
	ActionStretch
	// ActionCompress discards exactly one frame before the read; the
	// consumer effectively speeds by one frame this period.
	ActionCompress
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionStretch:
		return "stretch"
	case ActionCompress:
		return "compress"
	default:
		return "unknown"
	}
}

// Thresholds are the fill-ratio boundaries from spec.md §4.3's table.
const (
	lowWatermark  = 0.25
	highWatermark = 0.75
)

// Compensator holds the single-frame replication register and the atomic
// counters the Status/Event Surface reads for underrun/drift reporting.
// Safe to call Decide and RecordLastFrame only from the playback/capture
// callbacks respectively — the atomics exist for cross-thread counter
// visibility, not to make Compensator itself safe for concurrent Decide
// calls.
type Compensator struct {
	channels  int
	lastFrame []float32 // replication register, size = channels

	underruns        atomic.Uint64
	driftCorrections atomic.Uint64
}

// New creates a Compensator for the given channel count. The replication
// register starts at all zeros, per spec.md §4.3.
func New(channels int) *Compensator {
	return &Compensator{
		channels:  channels,
		lastFrame: make([]float32, channels),
	}
}

// Decide selects the action for one playback callback given the current
// fill ratio (available/capacity) and the available/requested frame counts.
func (c *Compensator) Decide(fillRatio float64, available, requested int) Action {
	switch {
	case fillRatio < lowWatermark:
		c.driftCorrections.Add(1)
		return ActionStretch
	case fillRatio > highWatermark && available > requested+1:
		c.driftCorrections.Add(1)
		return ActionCompress
	default:
		return ActionPass
	}
}

// RecordUnderrun increments the underrun counter. Callers invoke this only
// when a read actually came up short of the requested frame count — a real
// buffer depletion per the glossary — not merely when Decide chose
// ActionStretch on a low-but-still-sufficient fill ratio.
func (c *Compensator) RecordUnderrun() {
	c.underruns.Add(1)
}

// RecordLastFrame stores the trailing frame of a block into the
// replication register, in the style of spec.md §4.3/§4.5.
func (c *Compensator) RecordLastFrame(frame []float32) {
	copy(c.lastFrame, frame)
}

// LastFrame returns the current replication register contents. The
// returned slice aliases the compensator's internal state and must not be
// retained past the current callback.
func (c *Compensator) LastFrame() []float32 {
	return c.lastFrame
}

// Underruns returns the cumulative underrun count.
func (c *Compensator) Underruns() uint64 { return c.underruns.Load() }

// DriftCorrections returns the cumulative drift-correction count.
func (c *Compensator) DriftCorrections() uint64 { return c.driftCorrections.Load() }

// Reset zeroes the replication register and counters. The Engine
// Controller calls it at every Start (and automatic restart), before the
// ring buffer is pre-filled.
func (c *Compensator) Reset() {
	for i := range c.lastFrame {
		c.lastFrame[i] = 0
	}
	c.underruns.Store(0)
	c.driftCorrections.Store(0)
}
