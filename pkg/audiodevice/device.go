package audiodevice

import "errors"

var (
	ErrNotInitialized     = errors.New("device not initialized")
	ErrAlreadyInitialized = errors.New("device already initialized")
)

type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

// Invoked by a device on its own audio thread, once per hardware period.
//
// out holds frameCount interleaved output frames and must be fully written.
// in holds frameCount interleaved input frames, or is nil for a playback-only device.
// The callback must not block or allocate.
type DataCallback func(out, in []float32, frameCount int)

type PlaybackConfig struct {
	SampleRate int
	// Output channels.
	Channels int
	// Input channels. Zero opens a playback-only device.
	CaptureChannels int
	// Frames per hardware period. Zero lets the backend choose.
	PeriodFrames int
	Callback     DataCallback
}

// Interface for the device I/O collaborator: a single playback (or duplex)
// device driving a DataCallback.
//
// Init, Start, Stop and Uninit are called from the controller goroutine.
// Start and Stop are expected to return promptly.
type PlaybackDevice interface {
	// Configure and open the device. The callback must not be invoked before Start.
	Init(config PlaybackConfig) error
	Start() error
	// After Stop returns the callback is not invoked again until the next Start.
	Stop() error
	IsStarted() bool
	// Release the device. Safe to call more than once, and on a device that
	// was never initialized.
	Uninit()

	// A human-readable name of the backend, not canonical.
	Name() string
	GetDeviceProperties() DeviceProperties
}
