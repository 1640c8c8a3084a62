// Package rtaudio defines the host audio abstraction (spec.md §6) and the
// Capture/Playback Workers (spec.md §4.4–§4.5) that drive the Elastic Ring
// Buffer from the host's per-period callbacks.
package rtaudio

// Direction distinguishes a capture endpoint from a playback endpoint.
type Direction int

const (
	DirectionCapture Direction = iota
	DirectionPlayback
)

// Format is a device-native sample format.
type Format int

const (
	FormatU8 Format = iota
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

// ShareMode mirrors spec.md §6/§8's shared vs. exclusive host-audio modes.
type ShareMode int

const (
	ShareModeShared ShareMode = iota
	ShareModeExclusive
)

// PerformanceProfile is a hint to the host audio subsystem, per spec.md §3.
type PerformanceProfile int

const (
	ProfileLowLatency PerformanceProfile = iota
	ProfileConservative
)

// DeviceInfo is spec.md §3's DeviceInfo entity: immutable once enumerated.
type DeviceInfo struct {
	ID               string
	Name             string
	IsDefault        bool
	NativeSampleRate uint32
	Channels         uint32
}

// DeviceHandle is the opaque, resolved form of a DeviceInfo.ID. Its Opaque
// field is meaningful only to the Host implementation that produced it.
type DeviceHandle struct {
	ID     string
	Opaque any
}

// OpenFlags carries the host-specific knobs spec.md §6 requires at minimum.
type OpenFlags struct {
	BypassOSResampler bool
	ProAudioUsage     bool
}

// DataCallback is the per-period host callback. frames may vary between
// invocations; out is nil for a capture-only device and in is nil for a
// playback-only device.
type DataCallback func(out, in []byte, frames uint32)

// Device is a single opened capture or playback endpoint.
type Device interface {
	Start() error
	Stop() error
	Uninit() error
}

// Host is the external audio host service spec.md §6 treats as a
// collaborator: device enumeration/resolution and stream lifecycle. The
// engine never assumes a specific implementation; MalgoHost is the
// production backend and FakeHost (rtaudio/fakehost.go) is used for
// hermetic engine tests.
type Host interface {
	ListDevices(dir Direction) ([]DeviceInfo, error)
	Resolve(id string, dir Direction) (DeviceHandle, error)
	Open(handle DeviceHandle, dir Direction, format Format, channels, sampleRate, periodFrames uint32, share ShareMode, profile PerformanceProfile, flags OpenFlags, cb DataCallback) (Device, error)
	Close() error
}

// BytesPerSample returns the byte width of one sample in the given format.
func BytesPerSample(f Format) int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 4
	}
}

// BitDepthOf reports the (bitDepth, isFloat) pair the Sample Normalizer
// needs to decode or encode a block in this format.
func BitDepthOf(f Format) (bitDepth int, isFloat bool) {
	switch f {
	case FormatU8:
		return 8, false
	case FormatS16:
		return 16, false
	case FormatS24:
		return 24, false
	case FormatS32:
		return 32, false
	default:
		return 32, true
	}
}
