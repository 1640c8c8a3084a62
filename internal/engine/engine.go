// Package engine implements the Engine Controller and the Status/Event
// Surface (spec.md §4.6, §4.9): the state machine, device lifecycle, and
// the controller's single mutex — one the audio callbacks never take.
package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc"

	"github.com/loopwire/transparency/internal/devicemonitor"
	"github.com/loopwire/transparency/internal/drift"
	"github.com/loopwire/transparency/internal/normalize"
	"github.com/loopwire/transparency/internal/ring"
	"github.com/loopwire/transparency/internal/rtaudio"
	"github.com/loopwire/transparency/internal/rtprio"
)

// stopDeadline is the implementation-defined deadline spec.md §5 requires
// for cooperative device stop before the controller declares the engine
// Faulted.
const stopDeadline = 2 * time.Second

// settlingDelay is how long the controller waits after a configured
// endpoint reappears before attempting a fresh start, per spec.md §4.8.
const settlingDelay = 500 * time.Millisecond

// Engine is the Engine Controller: a stable-address, per-session context
// (spec.md §9 — the *Engine pointer itself, not a process-wide singleton;
// multiple independent instances are permitted).
type Engine struct {
	mu sync.Mutex // serializes management ops; never taken by audio callbacks

	host   rtaudio.Host
	sink   EventSink
	poster Poster
	log    *log.Logger

	state atomic.Int32

	cfg Config

	buf         *ring.Buffer
	compensator *drift.Compensator
	capture     *rtaudio.CaptureWorker
	playback    *rtaudio.PlaybackWorker

	captureDevice  rtaudio.Device
	playbackDevice rtaudio.Device

	captureRaised  atomic.Bool
	playbackRaised atomic.Bool
	rtCapture      *rtprio.Handle
	rtPlayback     *rtprio.Handle

	monitor *devicemonitor.Monitor

	volumeBits atomic.Uint32
	lastError  atomic.Pointer[Error]

	faultCh  chan struct{}
	faultWG  sync.WaitGroup // joins the single watchForFaults goroutine; never waited on while mu is held
	wg       conc.WaitGroup // fire-and-forget settling-delay reconnect attempts; never joined, each re-checks state under mu before acting
	done     chan struct{}
}

// Option configures optional collaborators at construction time.
type Option func(*Engine)

// WithEventSink wires the engine's outbound Status/Event Surface.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithPoster marshals event delivery onto the given execution context
// (e.g. a UI shell's dispatch loop) instead of the raising goroutine.
func WithPoster(p Poster) Option {
	return func(e *Engine) { e.poster = p }
}

// WithLogger overrides the engine's structured logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New constructs an Engine bound to the given Host collaborator. The
// engine starts Uninitialized; call Initialize before Start.
func New(host rtaudio.Host, opts ...Option) *Engine {
	e := &Engine{
		host:    host,
		sink:    NopEventSink{},
		log:     defaultLogger(),
		faultCh: make(chan struct{}, 1),
	}
	e.volumeBits.Store(math.Float32bits(1.0))
	e.state.Store(int32(StateUninitialized))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current state. Safe from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Initialize resolves devices, allocates the Elastic Ring Buffer, and
// constructs (but does not start) both device objects, per spec.md §4.6.
func (e *Engine) Initialize(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateUninitialized {
		return newError(ErrorKindInvalidState, fmt.Sprintf("initialize: illegal from state %s", e.State()), nil)
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return newError(ErrorKindInvalidArgument, err.Error(), nil)
	}

	inputHandle, err := e.host.Resolve(cfg.InputDeviceID, rtaudio.DirectionCapture)
	if err != nil {
		return newError(ErrorKindDeviceOpenFailed, "resolve input device", err)
	}
	outputHandle, err := e.host.Resolve(cfg.OutputDeviceID, rtaudio.DirectionPlayback)
	if err != nil {
		return newError(ErrorKindDeviceOpenFailed, "resolve output device", err)
	}

	decimationRatio := 1
	if inputs, err := e.host.ListDevices(rtaudio.DirectionCapture); err == nil {
		for _, info := range inputs {
			if info.ID != cfg.InputDeviceID || info.NativeSampleRate == 0 {
				continue
			}
			ratio, err := normalize.DecimationRatio(info.NativeSampleRate, cfg.SampleRate)
			if err != nil {
				return newError(ErrorKindInvalidArgument, "native capture rate is not an integer multiple of the internal sample rate", err)
			}
			decimationRatio = ratio
		}
	}

	capacity := ring.NextPowerOfTwo(cfg.RingBufferFrames)
	buf, err := ring.New(capacity, int(cfg.Channels))
	if err != nil {
		return newError(ErrorKindOutOfMemory, "allocate ring buffer", err)
	}

	e.volumeBits.Store(math.Float32bits(cfg.InitialVolume))

	compensator := drift.New(int(cfg.Channels))
	bitDepth, isFloat := rtaudio.BitDepthOf(cfg.DeviceFormat)
	scratchFrames := int(cfg.PeriodFrames) * 4 * decimationRatio
	if scratchFrames < int(cfg.PeriodFrames)*4 {
		scratchFrames = int(cfg.PeriodFrames) * 4
	}

	captureWorker := rtaudio.NewCaptureWorker(buf, compensator, int(cfg.Channels), bitDepth, isFloat, decimationRatio, scratchFrames)
	captureWorker.SetVolume(math.Float32frombits(e.volumeBits.Load()))
	playbackWorker := rtaudio.NewPlaybackWorker(buf, compensator, int(cfg.Channels), bitDepth, isFloat, scratchFrames)

	flags := rtaudio.OpenFlags{BypassOSResampler: cfg.BypassOSResampler, ProAudioUsage: cfg.ProAudioUsage}

	captureRate := cfg.SampleRate
	if cfg.BypassOSResampler && decimationRatio > 1 {
		captureRate = cfg.SampleRate * uint32(decimationRatio)
	}

	captureDev, err := e.host.Open(inputHandle, rtaudio.DirectionCapture, cfg.DeviceFormat, cfg.Channels, captureRate, cfg.PeriodFrames, cfg.ShareMode, cfg.PerformanceProfile, flags, func(out, in []byte, frames uint32) {
		e.withRTPriority(&e.captureRaised, &e.rtCapture)
		e.safeCallback(func() { captureWorker.OnData(out, in, frames) })
	})
	if err != nil {
		return newError(ErrorKindDeviceOpenFailed, "open input device", err)
	}

	playbackDev, err := e.host.Open(outputHandle, rtaudio.DirectionPlayback, cfg.DeviceFormat, cfg.Channels, cfg.SampleRate, cfg.PeriodFrames, cfg.ShareMode, cfg.PerformanceProfile, flags, func(out, in []byte, frames uint32) {
		e.withRTPriority(&e.playbackRaised, &e.rtPlayback)
		e.safeCallback(func() { playbackWorker.OnData(out, in, frames) })
	})
	if err != nil {
		_ = captureDev.Uninit()
		return newError(ErrorKindDeviceOpenFailed, "open output device", err)
	}

	e.cfg = cfg
	e.buf = buf
	e.compensator = compensator
	e.capture = captureWorker
	e.playback = playbackWorker
	e.captureDevice = captureDev
	e.playbackDevice = playbackDev

	e.monitor = devicemonitor.New(e.host, []rtaudio.Direction{rtaudio.DirectionCapture, rtaudio.DirectionPlayback}, 2*time.Second, e.onDeviceEvent)

	e.setState(StateInitialized)
	return nil
}

// withRTPriority raises real-time scheduling on the calling audio thread
// exactly once, on first callback entry, per spec.md §4.7. Failure is
// logged as a non-fatal warning; startup continues either way.
func (e *Engine) withRTPriority(once *atomic.Bool, handle **rtprio.Handle) {
	if !once.CompareAndSwap(false, true) {
		return
	}
	h, err := rtprio.Raise()
	*handle = h
	if err != nil {
		e.log.Warn("real-time scheduling unavailable, continuing at default priority", "error", err)
	}
}

// safeCallback guards the host FFI boundary: an audio callback must never
// unwind past it. A panic is recorded and surfaced asynchronously by the
// management thread instead, per spec.md §7/§9.
func (e *Engine) safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.lastError.Store(newError(ErrorKindDeviceLost, fmt.Sprintf("callback panic: %v", r), nil))
			select {
			case e.faultCh <- struct{}{}:
			default:
			}
		}
	}()
	fn()
}

// Start pre-fills the ring buffer, starts the capture device and then the
// playback device, and arms both workers, per spec.md §4.6.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case StateInitialized, StateStopped:
	default:
		return newError(ErrorKindInvalidState, fmt.Sprintf("start: illegal from state %s", e.State()), nil)
	}

	e.buf.Reset()
	e.compensator.Reset()
	e.buf.PreFill(e.buf.Capacity() / 2)

	if err := e.captureDevice.Start(); err != nil {
		e.rollbackToUninitialized()
		return newError(ErrorKindDeviceStartFailed, "start capture device", err)
	}
	if err := e.playbackDevice.Start(); err != nil {
		_ = e.captureDevice.Stop()
		e.rollbackToUninitialized()
		return newError(ErrorKindDeviceStartFailed, "start playback device", err)
	}

	_ = e.capture.Start()
	_ = e.playback.Start()

	e.done = make(chan struct{})
	e.faultWG.Add(1)
	go func() {
		defer e.faultWG.Done()
		e.watchForFaults(e.done)
	}()

	if err := e.monitor.Start(); err != nil {
		e.log.Warn("device monitor failed to start", "error", err)
	}

	e.setState(StateRunning)
	e.emitStateChanged(true)
	return nil
}

// rollbackToUninitialized tears the session fully down, per spec.md §7's
// "startup failures roll back to Uninitialized".
func (e *Engine) rollbackToUninitialized() {
	if e.captureDevice != nil {
		_ = e.captureDevice.Uninit()
	}
	if e.playbackDevice != nil {
		_ = e.playbackDevice.Uninit()
	}
	e.captureDevice = nil
	e.playbackDevice = nil
	e.buf = nil
	e.compensator = nil
	e.capture = nil
	e.playback = nil
	e.setState(StateUninitialized)
}

// Stop stops the playback device then the capture device (mirroring
// Start's ordering), reverts real-time priority, and leaves devices and
// the ring buffer allocated, per spec.md §4.6.
func (e *Engine) Stop() error {
	e.mu.Lock()
	err := e.stopLocked()
	pending := e.done
	e.done = nil
	e.mu.Unlock()

	// Joining the watchdog goroutine must happen outside the lock: it
	// takes mu itself when reacting to a fault, and Wait()ing for it
	// while holding mu here would deadlock against that.
	if pending != nil {
		close(pending)
		e.faultWG.Wait()
	}
	return err
}

// stopLocked performs the state transition and device/priority teardown.
// Callers hold mu; stopLocked never waits on the watchdog goroutine
// itself (see Stop/Uninitialize for why).
func (e *Engine) stopLocked() error {
	if e.State() != StateRunning {
		return newError(ErrorKindInvalidState, fmt.Sprintf("stop: illegal from state %s", e.State()), nil)
	}

	_ = e.capture.Stop()
	_ = e.playback.Stop()

	if err := e.stopDeviceWithDeadline(e.playbackDevice); err != nil {
		e.setState(StateFaulted)
		e.emitError(ErrorKindDeviceLost, "playback device did not stop within deadline")
		return newError(ErrorKindDeviceLost, "stop playback device", err)
	}
	if err := e.stopDeviceWithDeadline(e.captureDevice); err != nil {
		e.setState(StateFaulted)
		e.emitError(ErrorKindDeviceLost, "capture device did not stop within deadline")
		return newError(ErrorKindDeviceLost, "stop capture device", err)
	}

	e.revertRTPriority()
	e.setState(StateStopped)
	e.emitStateChanged(false)
	return nil
}

func (e *Engine) stopDeviceWithDeadline(dev rtaudio.Device) error {
	errCh := make(chan error, 1)
	go func() { errCh <- dev.Stop() }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(stopDeadline):
		return fmt.Errorf("device did not stop within %s", stopDeadline)
	}
}

func (e *Engine) revertRTPriority() {
	if e.rtCapture != nil {
		_ = e.rtCapture.Revert()
		e.rtCapture = nil
	}
	if e.rtPlayback != nil {
		_ = e.rtPlayback.Revert()
		e.rtPlayback = nil
	}
	e.captureRaised.Store(false)
	e.playbackRaised.Store(false)
}

// Uninitialize tears down devices and frees the ring buffer, returning
// the engine to Uninitialized from any other state, per spec.md §4.6.
func (e *Engine) Uninitialize() error {
	e.mu.Lock()
	if e.State() == StateUninitialized {
		e.mu.Unlock()
		return nil
	}

	if e.State() == StateRunning {
		if err := e.stopLocked(); err != nil {
			// Even a failed Stop (device stuck, now Faulted) must not
			// block tearing the session down; uninitialize is the only
			// recovery path out of Faulted.
			e.log.Warn("stop failed during uninitialize, tearing down anyway", "error", err)
		}
	}
	// The watchdog goroutine may still be alive even when we didn't just
	// stop from Running (e.g. it already drove the engine to Faulted on
	// its own); always reclaim it here, the only exit from Faulted.
	pending := e.done
	e.done = nil
	e.mu.Unlock()

	if pending != nil {
		close(pending)
		e.faultWG.Wait()
	}

	// Monitor.Stop joins its own polling goroutine, which calls back into
	// onDeviceEvent and takes mu itself; joining it while holding mu here
	// would deadlock exactly like the watchdog join above, so it must also
	// happen outside the lock.
	e.mu.Lock()
	mon := e.monitor
	e.monitor = nil
	e.mu.Unlock()
	if mon != nil {
		mon.Stop()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollbackToUninitialized()
	return nil
}

// SetVolume clamps v to [0,1] and stores it atomically. Legal from any
// state and any goroutine, per spec.md §4.6.
func (e *Engine) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.volumeBits.Store(math.Float32bits(v))
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil {
		e.capture.SetVolume(v)
	}
}

// Status returns a snapshot of the engine's current state and counters,
// callable from any goroutine at any time, per spec.md §4.9.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:   e.State(),
		Running: e.State() == StateRunning,
		Volume:  math.Float32frombits(e.volumeBits.Load()),
	}
	if err := e.lastError.Load(); err != nil {
		st.LastError = err
	}
	if e.buf != nil {
		st.FillFrames = e.buf.AvailableRead()
		st.FillRatio = float64(st.FillFrames) / float64(e.buf.Capacity())
	}
	if e.compensator != nil {
		st.Underruns = e.compensator.Underruns()
		st.DriftCorrections = e.compensator.DriftCorrections()
	}
	if e.capture != nil {
		st.Overruns = e.capture.Overruns()
	}
	if e.cfg.SampleRate > 0 {
		st.PerLegLatency = time.Duration(float64(e.cfg.PeriodFrames) / float64(e.cfg.SampleRate) * float64(time.Second))
		st.RoundTripLatency = time.Duration(float64(st.FillFrames+int(e.cfg.PeriodFrames)) / float64(e.cfg.SampleRate) * float64(time.Second))
	}
	return st
}

// watchForFaults is the management-thread watchdog that turns an
// in-callback panic flag into a controller-serialized Stop/Faulted
// transition, per spec.md §7/§9's "atomic flags, later surfaced by the
// management thread" design.
func (e *Engine) watchForFaults(done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-e.faultCh:
			e.mu.Lock()
			if e.State() == StateRunning {
				_ = e.stopLocked()
			}
			e.setState(StateFaulted)
			e.mu.Unlock()
			if err := e.lastError.Load(); err != nil {
				e.emitError(err.Kind, err.Message)
			}
		}
	}
}

// onDeviceEvent reacts to Device Monitor events, per spec.md §4.8.
func (e *Engine) onDeviceEvent(ev devicemonitor.Event) {
	switch ev.Kind {
	case devicemonitor.EventRemoved:
		e.mu.Lock()
		if e.State() != StateRunning {
			e.mu.Unlock()
			return
		}
		isConfigured := (ev.Direction == rtaudio.DirectionCapture && ev.Device.ID == e.cfg.InputDeviceID) ||
			(ev.Direction == rtaudio.DirectionPlayback && ev.Device.ID == e.cfg.OutputDeviceID)
		if !isConfigured {
			e.mu.Unlock()
			return
		}
		_ = e.stopLocked()
		pending := e.done
		e.done = nil
		e.mu.Unlock()

		// See Stop's comment: joining the watchdog must happen without
		// mu held, since its fault branch also takes mu.
		if pending != nil {
			close(pending)
			e.faultWG.Wait()
		}
		e.emitDeviceDisconnected(ev.Device.ID)

	case devicemonitor.EventAdded:
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.State() != StateStopped {
			return
		}
		isConfigured := (ev.Direction == rtaudio.DirectionCapture && ev.Device.ID == e.cfg.InputDeviceID) ||
			(ev.Direction == rtaudio.DirectionPlayback && ev.Device.ID == e.cfg.OutputDeviceID)
		if !isConfigured {
			return
		}
		e.wg.Go(func() {
			time.Sleep(settlingDelay)
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.State() != StateStopped {
				return
			}
			if err := e.startLockedForReconnect(); err != nil {
				e.log.Warn("automatic restart after device reconnect failed", "error", err)
			}
		})
	}
}

// startLockedForReconnect re-invokes the same Start sequence used by the
// public Start method. Factored out so onDeviceEvent's delayed-restart
// goroutine does not re-enter the exported method (and its locking).
func (e *Engine) startLockedForReconnect() error {
	e.buf.Reset()
	e.compensator.Reset()
	e.buf.PreFill(e.buf.Capacity() / 2)

	if err := e.captureDevice.Start(); err != nil {
		return newError(ErrorKindDeviceStartFailed, "restart capture device", err)
	}
	if err := e.playbackDevice.Start(); err != nil {
		_ = e.captureDevice.Stop()
		return newError(ErrorKindDeviceStartFailed, "restart playback device", err)
	}

	_ = e.capture.Start()
	_ = e.playback.Start()

	e.done = make(chan struct{})
	e.faultWG.Add(1)
	go func() {
		defer e.faultWG.Done()
		e.watchForFaults(e.done)
	}()

	e.setState(StateRunning)
	e.emitStateChanged(true)
	return nil
}
