package engine

import (
	"errors"
	"fmt"

	"github.com/loopwire/transparency/internal/rtaudio"
)

// Config is spec.md §3's EngineConfig.
type Config struct {
	InputDeviceID  string
	OutputDeviceID string

	SampleRate   uint32 // internal/target rate; default 48000
	Channels     uint32 // default 2
	PeriodFrames uint32 // default 128

	// DeviceFormat is the native PCM format requested from the host for
	// both endpoints. The ring buffer's own internal representation is
	// always float32 regardless of this setting (spec.md §3); the Sample
	// Normalizer converts at the callback boundary.
	DeviceFormat rtaudio.Format

	ShareMode          rtaudio.ShareMode
	PerformanceProfile rtaudio.PerformanceProfile

	RingBufferFrames int // default 2048, rounded up to a power of two

	InitialVolume float32 // default 1.0; outside [0,1] Initialize fails with InvalidArgument

	BypassOSResampler bool
	ProAudioUsage     bool
}

// DefaultConfig returns an EngineConfig with spec.md §3's documented
// defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:         48000,
		Channels:           2,
		PeriodFrames:       128,
		DeviceFormat:       rtaudio.FormatF32,
		ShareMode:          rtaudio.ShareModeShared,
		PerformanceProfile: rtaudio.ProfileLowLatency,
		RingBufferFrames:   2048,
		InitialVolume:      1.0,
	}
}

// withDefaults fills any zero-valued field with DefaultConfig's value,
// mirroring viper's "defaults underneath explicit settings" behavior from
// the teacher's own config package.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels == 0 {
		c.Channels = d.Channels
	}
	if c.PeriodFrames == 0 {
		c.PeriodFrames = d.PeriodFrames
	}
	if c.RingBufferFrames == 0 {
		c.RingBufferFrames = d.RingBufferFrames
	}
	if c.InitialVolume == 0 {
		c.InitialVolume = d.InitialVolume
	}
	return c
}

// validate checks the fields Initialize cannot silently default, per
// spec.md §7's InvalidArgument taxonomy entry.
func (c Config) validate() error {
	var errs []error
	if c.InputDeviceID == "" {
		errs = append(errs, errors.New("input_device_id is required"))
	}
	if c.OutputDeviceID == "" {
		errs = append(errs, errors.New("output_device_id is required"))
	}
	if c.Channels == 0 {
		errs = append(errs, errors.New("channels must be positive"))
	}
	if c.PeriodFrames == 0 {
		errs = append(errs, errors.New("period_frames must be positive"))
	}
	if c.RingBufferFrames <= 0 {
		errs = append(errs, fmt.Errorf("ring_buffer_frames must be positive, got %d", c.RingBufferFrames))
	}
	if c.InitialVolume < 0 || c.InitialVolume > 1 {
		errs = append(errs, fmt.Errorf("initial_volume must be within [0,1], got %v", c.InitialVolume))
	}
	return errors.Join(errs...)
}
