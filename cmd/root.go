// cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loopwire/transparency/internal/config"
	"github.com/loopwire/transparency/internal/engine"
	"github.com/loopwire/transparency/internal/rtaudio"
)

var rootCmd = &cobra.Command{
	Use:   "transparency",
	Short: "Real-time duplex audio passthrough engine",
	Long:  `A low-latency capture-to-playback passthrough engine with drift compensation and device hot-plug handling.`,
	RunE:  runEngine,
}

// runEngine is the main entry point that wires config, the host audio
// backend, and the Engine Controller together.
func runEngine(_ *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(settings.LogLevel)

	host, err := rtaudio.NewMalgoHost()
	if err != nil {
		return fmt.Errorf("init audio host: %w", err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			logger.Error("error closing audio host", "error", err)
		}
	}()

	cfg, err := settings.ToEngineConfig()
	if err != nil {
		return fmt.Errorf("build engine config: %w", err)
	}

	e := engine.New(host, engine.WithLogger(logger), engine.WithEventSink(cliEventSink{logger: logger}))

	if err := e.Initialize(cfg); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer func() {
		if err := e.Uninitialize(); err != nil {
			logger.Error("error tearing down engine", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	logger.Info("starting engine", "input", cfg.InputDeviceID, "output", cfg.OutputDeviceID)
	if err := e.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	<-ctx.Done()

	if err := e.Stop(); err != nil {
		logger.Error("error stopping engine", "error", err)
	}

	logger.Info("engine stopped")
	return nil
}

// cliEventSink logs engine events to the shell's logger. It never talks
// back to the engine, so it's safe to invoke directly from whatever
// goroutine raises the event.
type cliEventSink struct {
	logger *log.Logger
}

func (s cliEventSink) StateChanged(running bool) {
	s.logger.Info("engine state changed", "running", running)
}

func (s cliEventSink) Error(kind engine.ErrorKind, message string) {
	s.logger.Error("engine error", "kind", kind.String(), "message", message)
}

func (s cliEventSink) DeviceDisconnected(id string) {
	s.logger.Warn("device disconnected", "device_id", id)
}

func newLogger(level string) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{Prefix: "transparency"})
	switch level {
	case "debug":
		l.SetLevel(log.DebugLevel)
	case "warn":
		l.SetLevel(log.WarnLevel)
	case "error":
		l.SetLevel(log.ErrorLevel)
	default:
		l.SetLevel(log.InfoLevel)
	}
	return l
}

var listDevicesCmd = &cobra.Command{
	Use:   "list-devices",
	Short: "List available capture and playback devices",
	RunE:  runListDevices,
}

func runListDevices(_ *cobra.Command, _ []string) error {
	host, err := rtaudio.NewMalgoHost()
	if err != nil {
		return fmt.Errorf("init audio host: %w", err)
	}
	defer func() { _ = host.Close() }()

	captures, err := host.ListDevices(rtaudio.DirectionCapture)
	if err != nil {
		return fmt.Errorf("list capture devices: %w", err)
	}
	playbacks, err := host.ListDevices(rtaudio.DirectionPlayback)
	if err != nil {
		return fmt.Errorf("list playback devices: %w", err)
	}

	fmt.Println("Capture devices:")
	for _, d := range captures {
		printDevice(d)
	}
	fmt.Println("Playback devices:")
	for _, d := range playbacks {
		printDevice(d)
	}
	return nil
}

func printDevice(d rtaudio.DeviceInfo) {
	marker := ""
	if d.IsDefault {
		marker = " (default)"
	}
	fmt.Printf("  [%s] %s%s — %d Hz, %d ch\n", d.ID, d.Name, marker, d.NativeSampleRate, d.Channels)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-shot engine status snapshot after a brief warm-up",
	RunE:  runStatus,
}

// warmupDuration gives the engine one settling window before the snapshot
// is printed, so fill_ratio/latency figures reflect steady state rather
// than the instant right after Start.
const warmupDuration = 500 * time.Millisecond

func runStatus(_ *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(settings.LogLevel)

	host, err := rtaudio.NewMalgoHost()
	if err != nil {
		return fmt.Errorf("init audio host: %w", err)
	}
	defer func() { _ = host.Close() }()

	cfg, err := settings.ToEngineConfig()
	if err != nil {
		return fmt.Errorf("build engine config: %w", err)
	}

	e := engine.New(host, engine.WithLogger(logger))
	if err := e.Initialize(cfg); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer func() { _ = e.Uninitialize() }()

	if err := e.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	time.Sleep(warmupDuration)
	st := e.Status()
	if err := e.Stop(); err != nil {
		logger.Error("error stopping engine", "error", err)
	}

	fmt.Printf("state: %s\n", st.State)
	fmt.Printf("fill: %d frames (%.1f%%)\n", st.FillFrames, st.FillRatio*100)
	fmt.Printf("round_trip_latency: %s\n", st.RoundTripLatency)
	fmt.Printf("underruns: %d  overruns: %d  drift_corrections: %d\n", st.Underruns, st.Overruns, st.DriftCorrections)
	fmt.Printf("volume: %.2f\n", st.Volume)
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "execution error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(listDevicesCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.PersistentFlags().StringP("input", "i", "default", "input device ID")
	rootCmd.PersistentFlags().StringP("output", "o", "default", "output device ID")
	rootCmd.PersistentFlags().Float32P("volume", "v", 1.0, "initial volume [0,1]")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug logging")

	cobra.CheckErr(viper.BindPFlag("input_device_id", rootCmd.PersistentFlags().Lookup("input")))
	cobra.CheckErr(viper.BindPFlag("output_device_id", rootCmd.PersistentFlags().Lookup("output")))
	cobra.CheckErr(viper.BindPFlag("initial_volume", rootCmd.PersistentFlags().Lookup("volume")))
	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
}

func initConfig() {
	if err := config.Init(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if viper.GetBool("debug") {
		viper.Set("log_level", "debug")
	}
}
