package rtaudio

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// MalgoHost is the production Host backend, wrapping a single malgo
// context.
type MalgoHost struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoHost initializes the malgo context. If the underlying backend
// cannot be opened it returns malgo's error, wrapped with an
// "rtaudio: init malgo context" prefix.
func NewMalgoHost() (*MalgoHost, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("rtaudio: init malgo context: %w", err)
	}
	return &MalgoHost{ctx: ctx}, nil
}

func toMalgoDirection(dir Direction) malgo.DeviceType {
	if dir == DirectionCapture {
		return malgo.Capture
	}
	return malgo.Playback
}

func toMalgoFormat(f Format) malgo.FormatType {
	switch f {
	case FormatU8:
		return malgo.FormatU8
	case FormatS16:
		return malgo.FormatS16
	case FormatS24:
		return malgo.FormatS24
	case FormatS32:
		return malgo.FormatS32
	default:
		return malgo.FormatF32
	}
}

// ListDevices enumerates devices for the given direction.
func (h *MalgoHost) ListDevices(dir Direction) ([]DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := h.ctx.Devices(toMalgoDirection(dir))
	if err != nil {
		return nil, fmt.Errorf("rtaudio: enumerate devices: %w", err)
	}

	out := make([]DeviceInfo, len(infos))
	for i, d := range infos {
		out[i] = DeviceInfo{
			ID:   d.ID.String(),
			Name: d.Name(),
			// malgo's DeviceInfo does not surface a stable native-rate
			// field pre-open on every backend, so NativeSampleRate stays
			// zero; the engine's decimation-ratio check skips devices
			// with a zero rate.
			IsDefault: d.IsDefault != 0,
		}
	}
	return out, nil
}

// Resolve finds the device with the given opaque ID among the direction's
// enumerated devices and returns a handle carrying the matching
// malgo.DeviceID for use in Open.
func (h *MalgoHost) Resolve(id string, dir Direction) (DeviceHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return DeviceHandle{}, ErrNotInitialized
	}

	infos, err := h.ctx.Devices(toMalgoDirection(dir))
	if err != nil {
		return DeviceHandle{}, fmt.Errorf("rtaudio: enumerate devices: %w", err)
	}
	for i := range infos {
		if infos[i].ID.String() == id {
			return DeviceHandle{ID: id, Opaque: infos[i].ID.Pointer()}, nil
		}
	}
	return DeviceHandle{}, ErrDeviceNotFound
}

// Open opens a single-direction device (capture-only or playback-only —
// the Engine Controller always opens two independent devices, never a
// single duplex stream, so the two endpoints can run on independent
// clocks per spec.md §1).
func (h *MalgoHost) Open(handle DeviceHandle, dir Direction, format Format, channels, sampleRate, periodFrames uint32, share ShareMode, profile PerformanceProfile, flags OpenFlags, cb DataCallback) (Device, error) {
	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()
	if ctx == nil {
		return nil, ErrNotInitialized
	}

	cfg := malgo.DefaultDeviceConfig(toMalgoDirection(dir))
	cfg.SampleRate = sampleRate
	cfg.PeriodSizeInFrames = periodFrames

	sub := malgo.SubConfig{
		Format:   toMalgoFormat(format),
		Channels: channels,
	}
	if handle.Opaque != nil {
		if ptr, ok := handle.Opaque.(unsafe.Pointer); ok {
			sub.DeviceID = ptr
		}
	}

	malgoShare := malgo.Shared
	if share == ShareModeExclusive {
		malgoShare = malgo.Exclusive
	}
	sub.ShareMode = malgoShare

	if dir == DirectionCapture {
		cfg.Capture = sub
	} else {
		cfg.Playback = sub
	}

	if profile == ProfileConservative {
		cfg.PerformanceProfile = malgo.Conservative
	} else {
		cfg.PerformanceProfile = malgo.LowLatency
	}

	// Bypassing the OS resampler and requesting pro-audio scheduling are
	// WASAPI-specific knobs; they are no-ops on backends without a WASAPI
	// equivalent, matching the spec's "non-fatal on systems without such a
	// class" language for the adjacent rtprio concern.
	if flags.BypassOSResampler {
		cfg.Wasapi.NoAutoConvertSRC = 1
	}
	if flags.ProAudioUsage {
		cfg.Wasapi.Usage = malgo.WasapiUsageProAudio
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frameCount uint32) {
			cb(out, in, frameCount)
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("rtaudio: init device: %w", err)
	}
	return &malgoDevice{dev: dev}, nil
}

// Close tears down the malgo context. Callers must stop and uninit every
// Device obtained from Open before calling Close.
func (h *MalgoHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return nil
	}
	if err := h.ctx.Uninit(); err != nil {
		return fmt.Errorf("rtaudio: uninit context: %w", err)
	}
	h.ctx.Free()
	h.ctx = nil
	return nil
}

type malgoDevice struct {
	dev *malgo.Device
}

func (d *malgoDevice) Start() error { return d.dev.Start() }
func (d *malgoDevice) Stop() error  { return d.dev.Stop() }
func (d *malgoDevice) Uninit() error {
	d.dev.Uninit()
	return nil
}
