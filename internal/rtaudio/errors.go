package rtaudio

import "errors"

var (
	// ErrNotInitialized indicates a Host operation was called before the
	// backend context was constructed.
	ErrNotInitialized = errors.New("rtaudio: host not initialized")
	// ErrDeviceNotFound indicates Resolve could not match the given ID
	// among the enumerated devices for that direction.
	ErrDeviceNotFound = errors.New("rtaudio: device not found")
	// ErrNotRunning indicates Stop was called on a worker that was not running.
	ErrNotRunning = errors.New("rtaudio: not running")
	// ErrAlreadyRunning indicates Start was called on a worker already running.
	ErrAlreadyRunning = errors.New("rtaudio: already running")
)
