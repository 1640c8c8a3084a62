package devicemonitor

import (
	"sync"
	"testing"
	"time"

	"github.com/loopwire/transparency/internal/rtaudio"
)

type listFunc func(dir rtaudio.Direction) ([]rtaudio.DeviceInfo, error)

type fakeHost struct {
	mu   sync.Mutex
	list listFunc
}

func (h *fakeHost) ListDevices(dir rtaudio.Direction) ([]rtaudio.DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.list(dir)
}
func (h *fakeHost) Resolve(id string, dir rtaudio.Direction) (rtaudio.DeviceHandle, error) {
	return rtaudio.DeviceHandle{}, nil
}
func (h *fakeHost) Open(rtaudio.DeviceHandle, rtaudio.Direction, rtaudio.Format, uint32, uint32, uint32, rtaudio.ShareMode, rtaudio.PerformanceProfile, rtaudio.OpenFlags, rtaudio.DataCallback) (rtaudio.Device, error) {
	return nil, nil
}
func (h *fakeHost) Close() error { return nil }

func (h *fakeHost) setDevices(devs []rtaudio.DeviceInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.list = func(rtaudio.Direction) ([]rtaudio.DeviceInfo, error) {
		return devs, nil
	}
}

func TestMonitor_DetectsRemovalAndAddition(t *testing.T) {
	host := &fakeHost{}
	host.setDevices([]rtaudio.DeviceInfo{{ID: "a", Name: "Mic A"}, {ID: "b", Name: "Mic B"}})

	events := make(chan Event, 8)
	m := New(host, []rtaudio.Direction{rtaudio.DirectionCapture}, 5*time.Millisecond, func(e Event) {
		events <- e
	})

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	host.setDevices([]rtaudio.DeviceInfo{{ID: "a", Name: "Mic A"}})

	select {
	case e := <-events:
		if e.Kind != EventRemoved || e.Device.ID != "b" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for removal event")
	}

	host.setDevices([]rtaudio.DeviceInfo{{ID: "a", Name: "Mic A"}, {ID: "c", Name: "Mic C"}})

	select {
	case e := <-events:
		if e.Kind != EventAdded || e.Device.ID != "c" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for addition event")
	}
}

func TestMonitor_StartTwiceIsNoop(t *testing.T) {
	host := &fakeHost{}
	host.setDevices(nil)
	m := New(host, []rtaudio.Direction{rtaudio.DirectionCapture}, time.Hour, func(Event) {})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	if err := m.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
}
