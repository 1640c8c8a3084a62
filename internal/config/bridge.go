package config

import (
	"fmt"

	"github.com/loopwire/transparency/internal/engine"
	"github.com/loopwire/transparency/internal/rtaudio"
)

// ToEngineConfig translates the shell-facing Settings into engine.Config,
// the boundary between viper's string/number world and the engine's typed
// one.
func (s *Settings) ToEngineConfig() (engine.Config, error) {
	format, err := parseDeviceFormat(s.DeviceFormat)
	if err != nil {
		return engine.Config{}, err
	}
	share, err := parseShareMode(s.ShareMode)
	if err != nil {
		return engine.Config{}, err
	}
	profile, err := parsePerformanceProfile(s.PerformanceProfile)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		InputDeviceID:      s.InputDeviceID,
		OutputDeviceID:     s.OutputDeviceID,
		SampleRate:         s.SampleRate,
		Channels:           s.Channels,
		PeriodFrames:       s.PeriodFrames,
		DeviceFormat:       format,
		ShareMode:          share,
		PerformanceProfile: profile,
		RingBufferFrames:   s.RingBufferFrames,
		InitialVolume:      s.InitialVolume,
		BypassOSResampler:  s.BypassOSResampler,
		ProAudioUsage:      s.ProAudioUsage,
	}, nil
}

func parseDeviceFormat(s string) (rtaudio.Format, error) {
	switch s {
	case "U8":
		return rtaudio.FormatU8, nil
	case "S16":
		return rtaudio.FormatS16, nil
	case "S24":
		return rtaudio.FormatS24, nil
	case "S32":
		return rtaudio.FormatS32, nil
	case "F32":
		return rtaudio.FormatF32, nil
	default:
		return 0, fmt.Errorf("config: unknown device_format %q", s)
	}
}

func parseShareMode(s string) (rtaudio.ShareMode, error) {
	switch s {
	case "shared":
		return rtaudio.ShareModeShared, nil
	case "exclusive":
		return rtaudio.ShareModeExclusive, nil
	default:
		return 0, fmt.Errorf("config: unknown share_mode %q", s)
	}
}

func parsePerformanceProfile(s string) (rtaudio.PerformanceProfile, error) {
	switch s {
	case "low_latency":
		return rtaudio.ProfileLowLatency, nil
	case "conservative":
		return rtaudio.ProfileConservative, nil
	default:
		return 0, fmt.Errorf("config: unknown performance_profile %q", s)
	}
}
