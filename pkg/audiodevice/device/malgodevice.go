package device

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
)

// MalgoDevice is a PlaybackDevice that plays to (and optionally captures from)
// a device of the first working miniaudio backend, the default one unless
// created with NewMalgoDeviceWithID.
type MalgoDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	// nil tries every backend in miniaudio's default order.
	backends []malgo.Backend
	// nil opens the default playback device.
	playbackID *malgo.DeviceID

	mu      sync.Mutex
	context *malgo.AllocatedContext
	device  *malgo.Device
	config  audiodevice.PlaybackConfig
}

func NewMalgoDevice(backends ...malgo.Backend) *MalgoDevice {
	uuid := uuid.New()
	logger := slog.Default().With(
		"miniaudio device uuid", uuid,
	)
	return &MalgoDevice{
		logger:   logger,
		uuid:     uuid,
		backends: backends,
	}
}

// Open the playback device with the given id, as listed by a miniaudio context.
func NewMalgoDeviceWithID(id malgo.DeviceID, backends ...malgo.Backend) *MalgoDevice {
	d := NewMalgoDevice(backends...)
	d.playbackID = &id
	return d
}

func (d *MalgoDevice) Init(config audiodevice.PlaybackConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return audiodevice.ErrAlreadyInitialized
	}
	if config.SampleRate <= 0 || config.Channels <= 0 || config.CaptureChannels < 0 || config.PeriodFrames < 0 {
		return fmt.Errorf("invalid device config: %d Hz, %d out, %d in, %d period frames",
			config.SampleRate, config.Channels, config.CaptureChannels, config.PeriodFrames)
	}

	context, err := malgo.InitContext(d.backends, malgo.ContextConfig{}, func(message string) {
		d.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		d.logger.Error("failed to create miniaudio context", "err", err)
		return fmt.Errorf("failed to create audio context: %w", err)
	}

	deviceType := malgo.Playback
	if config.CaptureChannels > 0 {
		deviceType = malgo.Duplex
	}
	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(config.PeriodFrames)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(config.Channels)
	if d.playbackID != nil {
		deviceConfig.Playback.DeviceID = d.playbackID.Pointer()
	}
	if deviceType == malgo.Duplex {
		deviceConfig.Capture.Format = malgo.FormatF32
		deviceConfig.Capture.Channels = uint32(config.CaptureChannels)
	}

	callback := config.Callback
	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			out := float32View(outputSamples)
			if callback == nil {
				clear(out)
				return
			}
			callback(out, float32View(inputSamples), int(frameCount))
		},
	}

	device, err := malgo.InitDevice(context.Context, deviceConfig, callbacks)
	if err != nil {
		d.logger.Error("failed to open miniaudio device", "err", err)
		context.Uninit()
		context.Free()
		return fmt.Errorf("failed to open audio device: %w", err)
	}

	d.context = context
	d.device = device
	d.config = config

	d.logger.Debug(
		"initialized miniaudio device",
		"sampleRate", config.SampleRate,
		"channels", config.Channels,
		"captureChannels", config.CaptureChannels,
		"periodFrames", config.PeriodFrames,
	)
	return nil
}

// Reinterpret a miniaudio f32 buffer as samples. nil for an empty buffer.
func float32View(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func (d *MalgoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return audiodevice.ErrNotInitialized
	}
	if err := d.device.Start(); err != nil {
		d.logger.Error("failed to start miniaudio device", "err", err)
		return err
	}
	d.logger.Info("miniaudio device started")
	return nil
}

// miniaudio waits for an in-flight data callback before Stop returns.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil || !d.device.IsStarted() {
		return nil
	}
	if err := d.device.Stop(); err != nil {
		d.logger.Error("error stopping miniaudio device", "err", err)
		return err
	}
	d.logger.Info("miniaudio device stopped")
	return nil
}

func (d *MalgoDevice) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device != nil && d.device.IsStarted()
}

func (d *MalgoDevice) Uninit() {
	d.logger.Debug("uninit called")
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.context != nil {
		if err := d.context.Uninit(); err != nil {
			d.logger.Warn("error releasing miniaudio context", "err", err)
		}
		d.context.Free()
		d.context = nil
	}
}

func (d *MalgoDevice) Name() string {
	return "miniaudio"
}

func (d *MalgoDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return audiodevice.DeviceProperties{
		SampleRate:  d.config.SampleRate,
		NumChannels: d.config.Channels,
	}
}
