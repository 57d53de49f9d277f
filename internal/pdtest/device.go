package pdtest

import (
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
)

// Device is a fake audiodevice.PlaybackDevice with no audio thread of its own.
// Tests drive the callback with Pump.
type Device struct {
	mu sync.Mutex

	InitErr  error
	StartErr error
	StopErr  error

	config      audiodevice.PlaybackConfig
	initialized bool
	started     bool

	InitCalls   int
	StartCalls  int
	StopCalls   int
	UninitCalls int
}

func NewDevice() *Device {
	return &Device{}
}

func (d *Device) Init(config audiodevice.PlaybackConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InitCalls++
	if d.InitErr != nil {
		return d.InitErr
	}
	if d.initialized {
		return audiodevice.ErrAlreadyInitialized
	}
	d.config = config
	d.initialized = true
	return nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCalls++
	if !d.initialized {
		return audiodevice.ErrNotInitialized
	}
	if d.StartErr != nil {
		return d.StartErr
	}
	d.started = true
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StopCalls++
	if d.StopErr != nil {
		return d.StopErr
	}
	d.started = false
	return nil
}

func (d *Device) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *Device) Uninit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.UninitCalls++
	d.initialized = false
	d.started = false
}

func (d *Device) Name() string {
	return "pdtest"
}

func (d *Device) GetDeviceProperties() audiodevice.DeviceProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return audiodevice.DeviceProperties{SampleRate: d.config.SampleRate, NumChannels: d.config.Channels}
}

func (d *Device) Config() audiodevice.PlaybackConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

func (d *Device) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Run one device period of frames through the callback, as the hardware
// would, and return the output. in may be nil.
// Nothing is invoked unless the device is started.
func (d *Device) Pump(frames int, in []float32) []float32 {
	d.mu.Lock()
	started, config := d.started, d.config
	d.mu.Unlock()

	out := make([]float32, frames*config.Channels)
	if !started || config.Callback == nil {
		return out
	}
	if in == nil && config.CaptureChannels > 0 {
		in = make([]float32, frames*config.CaptureChannels)
	}
	config.Callback(out, in, frames)
	return out
}
