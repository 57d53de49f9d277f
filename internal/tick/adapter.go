package tick

import (
	"fmt"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

// The maximum number of ticks handed to the engine in one call.
const MaxTicks = 32

// Geometry of the audio stream, fixed between Allocate and Release.
type Config struct {
	SampleRate  int
	ChannelsIn  int
	ChannelsOut int
	BlockSize   int
}

// Scratch buffers and geometry, published as one immutable snapshot.
// The audio thread loads the snapshot once per callback, so it never observes
// a half-built or half-released state.
type state struct {
	Config
	bufferFrames int
	inBuffer     []float32
	outBuffer    []float32

	// Conversion buffers for the short and double variants.
	convertIn  []float32
	convertOut []float32
}

// Counters maintained by the audio thread.
type Stats struct {
	// Ticks handed to the engine.
	Ticks uint64
	// Callbacks answered with silence because a precondition failed.
	SilentCallbacks uint64
	// Callbacks where the engine returned an error.
	EngineErrors uint64
}

// Adapter converts arbitrary hardware frame counts into whole engine ticks.
//
// Allocate, Release, SetRunning, Bind and Unbind belong to the controller goroutine.
// The Process methods belong to the audio thread and never block or allocate.
type Adapter struct {
	state      atomic.Pointer[state]
	capability atomic.Pointer[engine.Capability]
	running    atomic.Bool

	ticks           atomic.Uint64
	silentCallbacks atomic.Uint64
	engineErrors    atomic.Uint64
}

func NewAdapter() *Adapter {
	return &Adapter{}
}

// Allocate the scratch buffers, sized to MaxTicks*BlockSize frames per channel.
// Calling Allocate when already allocated is a successful no-op.
func (a *Adapter) Allocate(cfg Config) error {
	if a.state.Load() != nil {
		return nil
	}
	if cfg.BlockSize <= 0 || cfg.SampleRate <= 0 || cfg.ChannelsIn < 0 || cfg.ChannelsOut <= 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}
	if c := a.capability.Load(); c != nil && c.BlockSize != cfg.BlockSize {
		return fmt.Errorf("%w: block size %d, engine uses %d", ErrInvalidConfig, cfg.BlockSize, c.BlockSize)
	}

	bufferFrames := MaxTicks * cfg.BlockSize
	s := &state{
		Config:       cfg,
		bufferFrames: bufferFrames,
		inBuffer:     make([]float32, bufferFrames*max(cfg.ChannelsIn, 1)),
		outBuffer:    make([]float32, bufferFrames*cfg.ChannelsOut),
		convertIn:    make([]float32, bufferFrames*max(cfg.ChannelsIn, 1)),
		convertOut:   make([]float32, bufferFrames*cfg.ChannelsOut),
	}

	// Raised only once everything above is in place.
	a.state.Store(s)
	return nil
}

// Drop the scratch buffers. The running flag is cleared as well.
func (a *Adapter) Release() {
	a.running.Store(false)
	a.state.Store(nil)
}

func (a *Adapter) Initialized() bool {
	return a.state.Load() != nil
}

func (a *Adapter) SetRunning(running bool) {
	a.running.Store(running)
}

func (a *Adapter) Running() bool {
	return a.running.Load()
}

// The current configuration, and whether the adapter is allocated.
func (a *Adapter) Config() (Config, bool) {
	s := a.state.Load()
	if s == nil {
		return Config{}, false
	}
	return s.Config, true
}

// Frames per channel held by each scratch buffer, zero when not allocated.
func (a *Adapter) BufferFrames() int {
	s := a.state.Load()
	if s == nil {
		return 0
	}
	return s.bufferFrames
}

// Bind the engine processing entry point. Must happen exactly once before audio
// can flow; until then every Process call produces silence.
func (a *Adapter) Bind(c engine.Capability) error {
	if c.Version != engine.CapabilityVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrIncompatibleCapability, c.Version, engine.CapabilityVersion)
	}
	if c.Process == nil {
		return fmt.Errorf("%w: nil process function", ErrIncompatibleCapability)
	}
	if s := a.state.Load(); s != nil && c.BlockSize != s.BlockSize {
		return fmt.Errorf("%w: block size %d, adapter uses %d", ErrIncompatibleCapability, c.BlockSize, s.BlockSize)
	}
	if !a.capability.CompareAndSwap(nil, &c) {
		return ErrAlreadyBound
	}
	return nil
}

// Drop the bound entry point. Process falls back to silence afterwards.
func (a *Adapter) Unbind() {
	a.capability.Store(nil)
}

func (a *Adapter) Bound() bool {
	return a.capability.Load() != nil
}

func (a *Adapter) Stats() Stats {
	return Stats{
		Ticks:           a.ticks.Load(),
		SilentCallbacks: a.silentCallbacks.Load(),
		EngineErrors:    a.engineErrors.Load(),
	}
}

// --------------------------------------------------------------------------------

// Fill out with frameCount frames of engine output, driven by in (nil for silence).
// Both slices are interleaved by channel.
//
// Only whole ticks reach the engine. Trailing frames that cannot form a full
// tick are written as silence. If any precondition fails the whole output is
// silence and the engine is not touched.
func (a *Adapter) Process(frameCount int, in, out []float32) {
	s, process, ok := a.ready(frameCount, len(in), in != nil, len(out))
	if !ok {
		clear(out)
		a.silentCallbacks.Add(1)
		return
	}

	a.run(s, process, frameCount, in, out)
}

// As Process, for 16-bit samples scaled by 32767. Values are not clipped.
func (a *Adapter) ProcessShort(frameCount int, in, out []int16) {
	s, process, ok := a.ready(frameCount, len(in), in != nil, len(out))
	if !ok {
		clear(out)
		a.silentCallbacks.Add(1)
		return
	}

	a.chunks(s, frameCount, func(offset, frames int) bool {
		var chunkIn []float32
		if in != nil {
			chunkIn = s.convertIn[:frames*s.ChannelsIn]
			for i, v := range in[offset*s.ChannelsIn : (offset+frames)*s.ChannelsIn] {
				chunkIn[i] = float32(v) / shortScale
			}
		}
		chunkOut := s.convertOut[:frames*s.ChannelsOut]
		if !a.runChunk(s, process, frames, chunkIn, chunkOut) {
			return false
		}
		dst := out[offset*s.ChannelsOut : (offset+frames)*s.ChannelsOut]
		for i, v := range chunkOut {
			dst[i] = int16(int32(v * shortScale))
		}
		return true
	}, func(from int) {
		clear(out[from*s.ChannelsOut : frameCount*s.ChannelsOut])
	})
}

// As Process, for 64-bit samples passed through without scaling or clipping.
func (a *Adapter) ProcessDouble(frameCount int, in, out []float64) {
	s, process, ok := a.ready(frameCount, len(in), in != nil, len(out))
	if !ok {
		clear(out)
		a.silentCallbacks.Add(1)
		return
	}

	a.chunks(s, frameCount, func(offset, frames int) bool {
		var chunkIn []float32
		if in != nil {
			chunkIn = s.convertIn[:frames*s.ChannelsIn]
			for i, v := range in[offset*s.ChannelsIn : (offset+frames)*s.ChannelsIn] {
				chunkIn[i] = float32(v)
			}
		}
		chunkOut := s.convertOut[:frames*s.ChannelsOut]
		if !a.runChunk(s, process, frames, chunkIn, chunkOut) {
			return false
		}
		dst := out[offset*s.ChannelsOut : (offset+frames)*s.ChannelsOut]
		for i, v := range chunkOut {
			dst[i] = float64(v)
		}
		return true
	}, func(from int) {
		clear(out[from*s.ChannelsOut : frameCount*s.ChannelsOut])
	})
}

// --------------------------------------------------------------------------------

const shortScale = 32767

// Check every precondition of the real-time path and return the snapshot to work with.
func (a *Adapter) ready(frameCount, inLen int, hasIn bool, outLen int) (*state, engine.ProcessFunc, bool) {
	s := a.state.Load()
	if s == nil || !a.running.Load() {
		return nil, nil, false
	}
	c := a.capability.Load()
	if c == nil || c.Process == nil {
		return nil, nil, false
	}
	if s.BlockSize <= 0 || s.inBuffer == nil || s.outBuffer == nil || frameCount < 0 {
		return nil, nil, false
	}
	if outLen < frameCount*s.ChannelsOut {
		return nil, nil, false
	}
	if hasIn && inLen < frameCount*s.ChannelsIn {
		return nil, nil, false
	}
	return s, c.Process, true
}

func (a *Adapter) run(s *state, process engine.ProcessFunc, frameCount int, in, out []float32) {
	a.chunks(s, frameCount, func(offset, frames int) bool {
		var chunkIn []float32
		if in != nil {
			chunkIn = in[offset*s.ChannelsIn : (offset+frames)*s.ChannelsIn]
		}
		return a.runChunk(s, process, frames, chunkIn, out[offset*s.ChannelsOut:(offset+frames)*s.ChannelsOut])
	}, func(from int) {
		clear(out[from*s.ChannelsOut : frameCount*s.ChannelsOut])
	})
}

// Walk frameCount in chunks of at most MaxTicks whole ticks.
// chunk returns false to abandon the walk; silence is then written from the
// failed chunk onwards. Frames that do not fill a tick are always silenced.
func (a *Adapter) chunks(s *state, frameCount int, chunk func(offset, frames int) bool, silence func(from int)) {
	processed := 0
	for {
		ticks := min((frameCount-processed)/s.BlockSize, MaxTicks)
		if ticks < 1 {
			break
		}
		frames := ticks * s.BlockSize
		if !chunk(processed, frames) {
			break
		}
		processed += frames
	}
	silence(processed)
}

// Run one chunk through the scratch buffers. in may be nil for silence.
func (a *Adapter) runChunk(s *state, process engine.ProcessFunc, frames int, in, out []float32) bool {
	ticks := frames / s.BlockSize
	scratchIn := s.inBuffer[:frames*s.ChannelsIn]
	scratchOut := s.outBuffer[:frames*s.ChannelsOut]

	if in != nil {
		copy(scratchIn, in)
	} else {
		clear(scratchIn)
	}

	if err := process(ticks, scratchIn, scratchOut); err != nil {
		a.engineErrors.Add(1)
		return false
	}
	a.ticks.Add(uint64(ticks))

	copy(out, scratchOut)
	return true
}
