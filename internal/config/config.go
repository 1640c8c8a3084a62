// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "transparency"
	ConfigType    = "yaml"
	DefaultConfig = `# transparency engine configuration

# Device selection ("default" resolves to the host's default device)
input_device_id: "default"
output_device_id: "default"

# Stream format
sample_rate: 48000      # internal processing rate in Hz
channels: 2             # 1=mono, 2=stereo
device_format: "F32"    # native PCM format requested from the host:
                        # U8, S16, S24, S32, F32
period_frames: 128      # host callback period, in frames

# Buffering / drift handling
ring_buffer_frames: 2048  # Elastic Ring Buffer capacity (rounded to a power of two)

# Host stream knobs
share_mode: "shared"          # shared | exclusive
performance_profile: "low_latency"  # low_latency | conservative
bypass_os_resampler: false
pro_audio_usage: false

# Output
initial_volume: 1.0     # [0,1]; other values are rejected
log_level: "info"       # debug | info | warn | error
`
)

// Settings holds every field of engine.Config the shell can source from a
// config file or flags, plus the shell-only log_level knob.
type Settings struct {
	InputDeviceID  string `mapstructure:"input_device_id"`
	OutputDeviceID string `mapstructure:"output_device_id"`

	SampleRate   uint32 `mapstructure:"sample_rate"`
	Channels     uint32 `mapstructure:"channels"`
	DeviceFormat string `mapstructure:"device_format"`
	PeriodFrames uint32 `mapstructure:"period_frames"`

	RingBufferFrames int `mapstructure:"ring_buffer_frames"`

	ShareMode          string `mapstructure:"share_mode"`
	PerformanceProfile string `mapstructure:"performance_profile"`
	BypassOSResampler  bool   `mapstructure:"bypass_os_resampler"`
	ProAudioUsage      bool   `mapstructure:"pro_audio_usage"`

	InitialVolume float32 `mapstructure:"initial_volume"`
	LogLevel      string  `mapstructure:"log_level"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/transparency/
func Init() error {
	viper.SetDefault("input_device_id", "default")
	viper.SetDefault("output_device_id", "default")
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 2)
	viper.SetDefault("device_format", "F32")
	viper.SetDefault("period_frames", 128)
	viper.SetDefault("ring_buffer_frames", 2048)
	viper.SetDefault("share_mode", "shared")
	viper.SetDefault("performance_profile", "low_latency")
	viper.SetDefault("bypass_os_resampler", false)
	viper.SetDefault("pro_audio_usage", false)
	viper.SetDefault("initial_volume", 1.0)
	viper.SetDefault("log_level", "info")

	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings.
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

var validDeviceFormats = map[string]bool{
	"U8": true, "S16": true, "S24": true, "S32": true, "F32": true,
}

var validShareModes = map[string]bool{"shared": true, "exclusive": true}

var validPerformanceProfiles = map[string]bool{"low_latency": true, "conservative": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that all settings are within acceptable ranges.
func (s *Settings) Validate() error {
	var errs []error

	if s.InputDeviceID == "" {
		errs = append(errs, errors.New("input_device_id must not be empty"))
	}
	if s.OutputDeviceID == "" {
		errs = append(errs, errors.New("output_device_id must not be empty"))
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if !validDeviceFormats[s.DeviceFormat] {
		errs = append(errs, fmt.Errorf("device_format must be one of U8, S16, S24, S32, F32, got %q", s.DeviceFormat))
	}
	if s.PeriodFrames < 16 || s.PeriodFrames > 8192 {
		errs = append(errs, fmt.Errorf("period_frames must be between 16 and 8192, got %d", s.PeriodFrames))
	}
	if s.RingBufferFrames < 64 || s.RingBufferFrames > 1<<20 {
		errs = append(errs, fmt.Errorf("ring_buffer_frames must be between 64 and 1048576, got %d", s.RingBufferFrames))
	}
	if !validShareModes[s.ShareMode] {
		errs = append(errs, fmt.Errorf("share_mode must be shared or exclusive, got %q", s.ShareMode))
	}
	if !validPerformanceProfiles[s.PerformanceProfile] {
		errs = append(errs, fmt.Errorf("performance_profile must be low_latency or conservative, got %q", s.PerformanceProfile))
	}
	if s.InitialVolume < 0 || s.InitialVolume > 1 {
		errs = append(errs, fmt.Errorf("initial_volume must be within [0,1], got %v", s.InitialVolume))
	}
	if !validLogLevels[s.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", s.LogLevel))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
