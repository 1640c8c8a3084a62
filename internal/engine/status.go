package engine

import "time"

// Status is spec.md §3's EngineStatus snapshot, safe to call from any
// goroutine at any time.
type Status struct {
	State   State
	Running bool

	FillFrames int
	FillRatio  float64

	// RoundTripLatency is (fill_frames + period_frames) / sample_rate,
	// per spec.md §4.9. PerLegLatency is period_frames / sample_rate.
	RoundTripLatency time.Duration
	PerLegLatency    time.Duration

	Underruns        uint64
	Overruns         uint64
	DriftCorrections uint64

	Volume float32

	LastError *Error
}
