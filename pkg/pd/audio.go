package pd

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/internal/tick"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
	"github.com/google/uuid"
)

type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Terminated:
		return "terminated"
	}
	return "?"
}

type AudioConfig struct {
	SampleRate  int
	ChannelsIn  int
	ChannelsOut int
	// Zero uses the engine's block size.
	BlockSize int
	// Frames per device period. Zero lets the device choose.
	PeriodFrames int
}

// Audio drives one playback device from the engine through a tick adapter.
//
// The control methods are serialized by a mutex. The device's audio thread
// only ever reaches the adapter.
type Audio struct {
	logger *slog.Logger
	uuid   uuid.UUID

	mu       sync.Mutex
	exporter engine.Exporter
	device   audiodevice.PlaybackDevice
	adapter  *tick.Adapter
	state    State
}

func NewAudio(exporter engine.Exporter, device audiodevice.PlaybackDevice) *Audio {
	uuid := uuid.New()
	logger := slog.Default().With(
		"audio uuid", uuid,
		"device", device.Name(),
	)
	return &Audio{
		logger:   logger,
		uuid:     uuid,
		exporter: exporter,
		device:   device,
		adapter:  tick.NewAdapter(),
	}
}

// Allocate the adapter, bind the engine's processing entry point and open the
// device. A no-op when already initialized. On failure nothing stays allocated.
func (a *Audio) Initialize(cfg AudioConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case Initialized, Running, Stopped:
		return nil
	}

	capability := a.exporter.ExportProcess()
	if cfg.BlockSize == 0 {
		cfg.BlockSize = capability.BlockSize
	}

	err := a.adapter.Allocate(tick.Config{
		SampleRate:  cfg.SampleRate,
		ChannelsIn:  cfg.ChannelsIn,
		ChannelsOut: cfg.ChannelsOut,
		BlockSize:   cfg.BlockSize,
	})
	if err != nil {
		a.logger.Error("could not allocate audio buffers", "err", err)
		return err
	}
	if err := a.adapter.Bind(capability); err != nil {
		a.logger.Error("could not bind engine process", "err", err)
		a.adapter.Release()
		return err
	}

	err = a.device.Init(audiodevice.PlaybackConfig{
		SampleRate:      cfg.SampleRate,
		Channels:        cfg.ChannelsOut,
		CaptureChannels: cfg.ChannelsIn,
		PeriodFrames:    cfg.PeriodFrames,
		Callback:        a.process,
	})
	if err != nil {
		a.logger.Error("could not open audio device", "err", err)
		a.adapter.Unbind()
		a.adapter.Release()
		return fmt.Errorf("%w: %w", ErrDeviceInit, err)
	}

	a.state = Initialized
	a.logger.Debug(
		"audio initialized",
		"sampleRate", cfg.SampleRate,
		"channelsIn", cfg.ChannelsIn,
		"channelsOut", cfg.ChannelsOut,
		"blockSize", cfg.BlockSize,
		"bufferFrames", a.adapter.BufferFrames(),
	)
	return nil
}

// The device data callback.
func (a *Audio) process(out, in []float32, frameCount int) {
	a.adapter.Process(frameCount, in, out)
}

func (a *Audio) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case Running:
		return nil
	case Initialized, Stopped:
	default:
		return ErrNotInitialized
	}

	a.adapter.SetRunning(true)
	if err := a.device.Start(); err != nil {
		a.adapter.SetRunning(false)
		a.logger.Error("could not start audio device", "err", err)
		return fmt.Errorf("%w: %w", ErrDeviceStart, err)
	}
	a.state = Running
	a.logger.Info("audio started")
	return nil
}

// Clear the running flag, then stop the device. Callbacks already in flight
// see the cleared flag and write silence.
func (a *Audio) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != Running {
		return nil
	}
	a.adapter.SetRunning(false)
	if err := a.device.Stop(); err != nil {
		// The device may still be calling back. It gets silence, and the state
		// stays Running so Stop (or Terminate) retries the device.
		a.logger.Error("could not stop audio device", "err", err)
		return fmt.Errorf("%w: %w", ErrDeviceStop, err)
	}
	a.state = Stopped
	a.logger.Info("audio stopped")
	return nil
}

func (a *Audio) IsRunning() bool {
	return a.adapter.Running()
}

func (a *Audio) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Counters from the audio thread.
func (a *Audio) Stats() tick.Stats {
	return a.adapter.Stats()
}

// Tear everything down. Safe to call repeatedly, and before Initialize.
func (a *Audio) Terminate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case Uninitialized, Terminated:
		return
	}

	a.adapter.SetRunning(false)
	if a.state == Running {
		if err := a.device.Stop(); err != nil {
			a.logger.Warn("error stopping audio device during terminate", "err", err)
		}
	}
	a.device.Uninit()
	a.adapter.Unbind()
	a.adapter.Release()
	a.state = Terminated

	stats := a.adapter.Stats()
	a.logger.Info(
		"audio terminated",
		"ticks", stats.Ticks,
		"silentCallbacks", stats.SilentCallbacks,
		"engineErrors", stats.EngineErrors,
	)
}
