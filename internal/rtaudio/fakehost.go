package rtaudio

import "sync"

// FakeHost is a hermetic, in-memory Host double used by this package's own
// tests and by the engine package's end-to-end scenario tests (spec.md
// §8 S1-S6). It never touches real hardware: ListDevices returns a fixed
// fixture set, and Open hands back a FakeDevice whose Start/Stop just flip
// a flag. Driving the DataCallback is the test's job, mirroring this
// project's integration/non-integration test split, where hardware-backed
// behavior is exercised separately from logic tests.
//
// It lives outside _test.go so other packages' tests can import it; it is
// never reachable from production code (nothing in this module constructs
// one outside a test file).
type FakeHost struct {
	mu      sync.Mutex
	devices map[Direction][]DeviceInfo
	opened  []*FakeDevice
	closed  bool
}

func NewFakeHost(devices map[Direction][]DeviceInfo) *FakeHost {
	return &FakeHost{devices: devices}
}

func (h *FakeHost) ListDevices(dir Direction) ([]DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DeviceInfo(nil), h.devices[dir]...), nil
}

func (h *FakeHost) Resolve(id string, dir Direction) (DeviceHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.devices[dir] {
		if d.ID == id {
			return DeviceHandle{ID: id}, nil
		}
	}
	return DeviceHandle{}, ErrDeviceNotFound
}

func (h *FakeHost) Open(handle DeviceHandle, dir Direction, format Format, channels, sampleRate, periodFrames uint32, share ShareMode, profile PerformanceProfile, flags OpenFlags, cb DataCallback) (Device, error) {
	d := &FakeDevice{dir: dir, cb: cb, frames: periodFrames}
	h.mu.Lock()
	h.opened = append(h.opened, d)
	h.mu.Unlock()
	return d, nil
}

func (h *FakeHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// SetDevices replaces the fixture set for a direction, letting a test
// simulate a device disappearing or reappearing between Device Monitor
// polls.
func (h *FakeHost) SetDevices(dir Direction, devices []DeviceInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.devices == nil {
		h.devices = make(map[Direction][]DeviceInfo)
	}
	h.devices[dir] = devices
}

// Opened returns the devices opened so far, in open order.
func (h *FakeHost) Opened() []*FakeDevice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*FakeDevice(nil), h.opened...)
}

// FakeDevice simulates a host-driven period callback. Tests call Pump to
// synchronously invoke the registered DataCallback as the real host would
// from its own audio thread.
type FakeDevice struct {
	mu      sync.Mutex
	dir     Direction
	cb      DataCallback
	frames  uint32
	started bool
	stopped bool

	// failStart/failStop let a test force Start/Stop to return an error,
	// e.g. to exercise Engine's rollback-to-Uninitialized path.
	failStart error
	failStop  error
	stopDelay func() // if set, called synchronously before Stop returns
}

func (d *FakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStart != nil {
		return d.failStart
	}
	d.started = true
	return nil
}

func (d *FakeDevice) Stop() error {
	if d.stopDelay != nil {
		d.stopDelay()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStop != nil {
		return d.failStop
	}
	d.stopped = true
	return nil
}

func (d *FakeDevice) Uninit() error { return nil }

func (d *FakeDevice) SetFailStart(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStart = err
}

func (d *FakeDevice) SetFailStop(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStop = err
}

// SetStopDelay installs a hook run synchronously at the start of Stop,
// letting a test hold a device's Stop call open to exercise the
// controller's stop deadline.
func (d *FakeDevice) SetStopDelay(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopDelay = fn
}

func (d *FakeDevice) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *FakeDevice) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Pump invokes the device's data callback once with frameCount frames,
// using freshly-sized buffers of the given bytes-per-frame width.
func (d *FakeDevice) Pump(frameCount uint32, frameBytes int, in []byte) []byte {
	out := make([]byte, int(frameCount)*frameBytes)
	d.cb(out, in, frameCount)
	return out
}
