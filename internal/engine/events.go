package engine

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// EventSink is the Status/Event Surface's outbound contract (spec.md §4.9).
// Methods are invoked on the shell-provided posting context if the shell
// supplied one when constructing the Engine, otherwise invoked directly
// from whatever goroutine raised the event.
type EventSink interface {
	StateChanged(running bool)
	Error(kind ErrorKind, message string)
	DeviceDisconnected(id string)
}

// NopEventSink discards every event; used when a caller has no shell-side
// surface to wire up.
type NopEventSink struct{}

func (NopEventSink) StateChanged(bool)         {}
func (NopEventSink) Error(ErrorKind, string)   {}
func (NopEventSink) DeviceDisconnected(string) {}

// Poster, when set, is used to marshal event delivery onto a specific
// (e.g. UI shell) execution context. If nil, events are dispatched
// directly from the raising goroutine, per spec.md §4.9.
type Poster interface {
	Post(func())
}

func (e *Engine) deliver(f func()) {
	if e.poster != nil {
		e.poster.Post(f)
		return
	}
	f()
}

func (e *Engine) emitStateChanged(running bool) {
	id := uuid.New()
	e.log.With("event", "state_changed", "correlation_id", id, "running", running).Info("engine state changed")
	e.deliver(func() { e.sink.StateChanged(running) })
}

func (e *Engine) emitError(kind ErrorKind, message string) {
	id := uuid.New()
	e.log.With("event", "error", "correlation_id", id, "kind", kind.String()).Error(message)
	e.deliver(func() { e.sink.Error(kind, message) })
}

func (e *Engine) emitDeviceDisconnected(id string) {
	corr := uuid.New()
	e.log.With("event", "device_disconnected", "correlation_id", corr, "device_id", id).Warn("device disconnected")
	e.deliver(func() { e.sink.DeviceDisconnected(id) })
}

// defaultLogger returns a charmbracelet/log logger scoped to the engine,
// used when the caller does not supply one. The engine logs from the
// management thread and background goroutines; the one exception is
// withRTPriority, which logs its warning from inside an audio callback on
// that callback's first invocation when raising priority fails.
func defaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Prefix: "engine"})
}
