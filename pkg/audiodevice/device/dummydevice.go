package device

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/google/uuid"
)

const DefaultPeriodFrames = 512

// A PlaybackDevice that runs the callback in real time and discards the output.
//
// Useful in testing, and on machines without sound hardware. Capture input is silence.
type DummyDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	mu          sync.Mutex
	config      audiodevice.PlaybackConfig
	initialized bool
	clock       clock

	out []float32
	in  []float32

	frames atomic.Uint64
	// Optional observer of each period's output, on the clock goroutine.
	onPeriod func(out []float32)
}

func NewDummyDevice() *DummyDevice {
	uuid := uuid.New()
	logger := slog.Default().With(
		"dummy device uuid", uuid,
	)
	return &DummyDevice{
		logger: logger,
		uuid:   uuid,
	}
}

func (d *DummyDevice) Init(config audiodevice.PlaybackConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return audiodevice.ErrAlreadyInitialized
	}
	if config.SampleRate <= 0 || config.Channels < 0 || config.CaptureChannels < 0 || config.PeriodFrames < 0 {
		return fmt.Errorf("invalid device config: %d Hz, %d out, %d in, %d period frames",
			config.SampleRate, config.Channels, config.CaptureChannels, config.PeriodFrames)
	}
	if config.PeriodFrames == 0 {
		config.PeriodFrames = DefaultPeriodFrames
	}

	d.config = config
	d.out = make([]float32, config.PeriodFrames*config.Channels)
	d.in = nil
	if config.CaptureChannels > 0 {
		d.in = make([]float32, config.PeriodFrames*config.CaptureChannels)
	}
	d.clock = clock{
		period: periodDuration(config.PeriodFrames, config.SampleRate),
		step:   d.step,
	}
	d.initialized = true

	d.logger.Debug(
		"initialized dummy device",
		"sampleRate", config.SampleRate,
		"channels", config.Channels,
		"periodFrames", config.PeriodFrames,
	)
	return nil
}

func (d *DummyDevice) step() {
	clear(d.out)
	if d.config.Callback != nil {
		d.config.Callback(d.out, d.in, d.config.PeriodFrames)
	}
	d.frames.Add(uint64(d.config.PeriodFrames))
	if d.onPeriod != nil {
		d.onPeriod(d.out)
	}
}

func (d *DummyDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return audiodevice.ErrNotInitialized
	}
	d.clock.start()
	return nil
}

func (d *DummyDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock.halt()
	return nil
}

func (d *DummyDevice) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock.running()
}

func (d *DummyDevice) Uninit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock.halt()
	d.initialized = false
}

// Total frames requested from the callback.
func (d *DummyDevice) Frames() uint64 {
	return d.frames.Load()
}

func (d *DummyDevice) Name() string {
	return "dummy"
}

func (d *DummyDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return audiodevice.DeviceProperties{
		SampleRate:  d.config.SampleRate,
		NumChannels: d.config.Channels,
	}
}
