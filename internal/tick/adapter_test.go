package tick

import (
	"errors"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

// recorder is a process function that writes a constant to every output sample
// and remembers how many frames it was handed.
type recorder struct {
	blockSize   int
	channelsOut int
	calls       int
	frames      []int
	value       float32
	err         error
}

func (r *recorder) process(ticks int, in, out []float32) error {
	r.calls++
	r.frames = append(r.frames, ticks*r.blockSize)
	if r.err != nil {
		return r.err
	}
	if len(out) != ticks*r.blockSize*r.channelsOut {
		return errors.New("unexpected output length")
	}
	for i := range out {
		out[i] = r.value
	}
	return nil
}

func newRunningAdapter(t *testing.T, cfg Config, r *recorder) *Adapter {
	t.Helper()

	a := NewAdapter()
	if err := a.Allocate(cfg); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if err := a.Bind(engine.NewCapability(cfg.BlockSize, r.process)); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	a.SetRunning(true)
	return a
}

func filled(n int, v float32) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func TestAdapter_WholeTicksAndSilentTail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		frameCount int
		blockSize  int
		wantFrames int
	}{
		{"zero frames", 0, 64, 0},
		{"less than one tick", 63, 64, 0},
		{"exactly one tick", 64, 64, 64},
		{"two ticks", 128, 64, 128},
		{"one tick with remainder", 100, 64, 64},
		{"more than max ticks", MaxTicks*64 + 10, 64, MaxTicks*64},
		{"several chunks", 3*MaxTicks*64 + 70, 64, 3*MaxTicks*64 + 64},
		{"odd block size", 50, 7, 49},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			const channels = 2
			r := &recorder{blockSize: tt.blockSize, channelsOut: channels, value: 0.5}
			a := newRunningAdapter(t, Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: channels, BlockSize: tt.blockSize}, r)

			// Stale data everywhere, so unwritten slots would show up.
			out := filled(tt.frameCount*channels, 9)
			a.Process(tt.frameCount, nil, out)

			total := 0
			for _, f := range r.frames {
				if f%tt.blockSize != 0 {
					t.Errorf("engine handed %d frames, not a multiple of %d", f, tt.blockSize)
				}
				if f > MaxTicks*tt.blockSize {
					t.Errorf("engine handed %d frames, more than %d ticks", f, MaxTicks)
				}
				total += f
			}
			if total != tt.wantFrames {
				t.Errorf("engine processed %d frames, want %d", total, tt.wantFrames)
			}

			for i, v := range out {
				frame := i / channels
				want := float32(0)
				if frame < tt.wantFrames {
					want = 0.5
				}
				if v != want {
					t.Fatalf("out[%d] (frame %d) = %v, want %v", i, frame, v, want)
				}
			}
		})
	}
}

func TestAdapter_SilenceWhenNotReady(t *testing.T) {
	t.Parallel()

	cfg := Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 64}

	tests := []struct {
		name  string
		setup func(*Adapter, *recorder)
	}{
		{"not initialized", func(a *Adapter, r *recorder) {
			_ = a.Bind(engine.NewCapability(64, r.process))
			a.SetRunning(true)
		}},
		{"not running", func(a *Adapter, r *recorder) {
			_ = a.Allocate(cfg)
			_ = a.Bind(engine.NewCapability(64, r.process))
		}},
		{"not bound", func(a *Adapter, r *recorder) {
			_ = a.Allocate(cfg)
			a.SetRunning(true)
		}},
		{"released", func(a *Adapter, r *recorder) {
			_ = a.Allocate(cfg)
			_ = a.Bind(engine.NewCapability(64, r.process))
			a.SetRunning(true)
			a.Release()
		}},
		{"unbound", func(a *Adapter, r *recorder) {
			_ = a.Allocate(cfg)
			_ = a.Bind(engine.NewCapability(64, r.process))
			a.SetRunning(true)
			a.Unbind()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &recorder{blockSize: 64, channelsOut: 2, value: 1}
			a := NewAdapter()
			tt.setup(a, r)

			for _, frameCount := range []int{0, 1, 64, 100, 5000} {
				in := filled(frameCount, 0.25)
				out := filled(frameCount*2, 7)
				a.Process(frameCount, in, out)
				for i, v := range out {
					if v != 0 {
						t.Fatalf("frameCount %d: out[%d] = %v, want 0", frameCount, i, v)
					}
				}
			}
			if r.calls != 0 {
				t.Errorf("engine called %d times, want 0", r.calls)
			}
		})
	}
}

func TestAdapter_ShortOutputBufferIsSilenced(t *testing.T) {
	t.Parallel()

	r := &recorder{blockSize: 64, channelsOut: 2, value: 1}
	a := newRunningAdapter(t, Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 64}, r)

	out := filled(100, 3)
	a.Process(128, nil, out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want 0", i, v)
		}
	}
	if r.calls != 0 {
		t.Errorf("engine called %d times, want 0", r.calls)
	}
	if got := a.Stats().SilentCallbacks; got != 1 {
		t.Errorf("SilentCallbacks = %d, want 1", got)
	}
}

func TestAdapter_InputReachesEngine(t *testing.T) {
	t.Parallel()

	const blockSize = 4
	a := NewAdapter()
	if err := a.Allocate(Config{SampleRate: 48000, ChannelsIn: 1, ChannelsOut: 1, BlockSize: blockSize}); err != nil {
		t.Fatal(err)
	}
	// Echo input to output, doubled.
	err := a.Bind(engine.NewCapability(blockSize, func(ticks int, in, out []float32) error {
		for i := range out {
			out[i] = 2 * in[i]
		}
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	a.SetRunning(true)

	in := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	out := make([]float32, len(in))
	a.Process(len(in), in, out)

	want := []float32{2, 4, 6, 8, 10, 12, 14, 16, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestAdapter_EngineErrorSilencesRemainder(t *testing.T) {
	t.Parallel()

	r := &recorder{blockSize: 64, channelsOut: 1, err: errors.New("boom")}
	a := newRunningAdapter(t, Config{SampleRate: 44100, ChannelsIn: 0, ChannelsOut: 1, BlockSize: 64}, r)

	out := filled(256, 4)
	a.Process(256, nil, out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want 0", i, v)
		}
	}
	if got := a.Stats().EngineErrors; got != 1 {
		t.Errorf("EngineErrors = %d, want 1", got)
	}
}

func TestAdapter_ShortScalesWithoutClipping(t *testing.T) {
	t.Parallel()

	const blockSize = 2
	a := NewAdapter()
	if err := a.Allocate(Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 1, BlockSize: blockSize}); err != nil {
		t.Fatal(err)
	}
	var seen []float32
	err := a.Bind(engine.NewCapability(blockSize, func(ticks int, in, out []float32) error {
		seen = append(seen, in...)
		copy(out, []float32{0.5, -1, 1, 0}[:len(out)])
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	a.SetRunning(true)

	in := []int16{32767, -32767, 0}
	out := []int16{1, 1, 1}
	a.ProcessShort(3, in, out)

	if seen[0] != 1 || seen[1] != -1 {
		t.Errorf("engine input = %v, want [1 -1]", seen)
	}
	want := []int16{16383, -32767, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestAdapter_DoublePassThrough(t *testing.T) {
	t.Parallel()

	const blockSize = 2
	a := NewAdapter()
	if err := a.Allocate(Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 1, BlockSize: blockSize}); err != nil {
		t.Fatal(err)
	}
	err := a.Bind(engine.NewCapability(blockSize, func(ticks int, in, out []float32) error {
		copy(out, in)
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	a.SetRunning(true)

	in := []float64{1.5, -2.25, 0.75}
	out := []float64{9, 9, 9}
	a.ProcessDouble(3, in, out)

	want := []float64{1.5, -2.25, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestAdapter_FailsClosedUntilBound(t *testing.T) {
	t.Parallel()

	r := &recorder{blockSize: 64, channelsOut: 2, value: 1}
	a := NewAdapter()
	if err := a.Allocate(Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 64}); err != nil {
		t.Fatal(err)
	}
	a.SetRunning(true)

	out := filled(128*2, 5)
	a.Process(128, nil, out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("before bind: out[%d] = %v, want 0", i, v)
		}
	}

	if err := a.Bind(engine.NewCapability(64, r.process)); err != nil {
		t.Fatal(err)
	}
	a.Process(128, nil, out)
	for i, v := range out {
		if v != 1 {
			t.Fatalf("after bind: out[%d] = %v, want 1", i, v)
		}
	}
	if r.calls != 1 {
		t.Errorf("engine called %d times, want 1", r.calls)
	}
}

func TestAdapter_Bind(t *testing.T) {
	t.Parallel()

	noop := func(int, []float32, []float32) error { return nil }

	t.Run("twice", func(t *testing.T) {
		a := NewAdapter()
		if err := a.Bind(engine.NewCapability(64, noop)); err != nil {
			t.Fatal(err)
		}
		if err := a.Bind(engine.NewCapability(64, noop)); !errors.Is(err, ErrAlreadyBound) {
			t.Errorf("second Bind() error = %v, want %v", err, ErrAlreadyBound)
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		a := NewAdapter()
		c := engine.NewCapability(64, noop)
		c.Version = 99
		if err := a.Bind(c); !errors.Is(err, ErrIncompatibleCapability) {
			t.Errorf("Bind() error = %v, want %v", err, ErrIncompatibleCapability)
		}
	})

	t.Run("nil process", func(t *testing.T) {
		a := NewAdapter()
		if err := a.Bind(engine.NewCapability(64, nil)); !errors.Is(err, ErrIncompatibleCapability) {
			t.Errorf("Bind() error = %v, want %v", err, ErrIncompatibleCapability)
		}
	})

	t.Run("block size mismatch", func(t *testing.T) {
		a := NewAdapter()
		_ = a.Allocate(Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 32})
		if err := a.Bind(engine.NewCapability(64, noop)); !errors.Is(err, ErrIncompatibleCapability) {
			t.Errorf("Bind() error = %v, want %v", err, ErrIncompatibleCapability)
		}
	})

	t.Run("rebind after unbind", func(t *testing.T) {
		a := NewAdapter()
		_ = a.Bind(engine.NewCapability(64, noop))
		a.Unbind()
		if err := a.Bind(engine.NewCapability(64, noop)); err != nil {
			t.Errorf("Bind() after Unbind() error = %v", err)
		}
	})
}

func TestAdapter_Allocate(t *testing.T) {
	t.Parallel()

	a := NewAdapter()
	if a.Initialized() || a.BufferFrames() != 0 {
		t.Fatal("new adapter reports allocated buffers")
	}

	cfg := Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 64}
	if err := a.Allocate(cfg); err != nil {
		t.Fatal(err)
	}
	first := a.state.Load()

	// Second Allocate is a no-op and keeps the same buffers.
	if err := a.Allocate(Config{SampleRate: 48000, ChannelsIn: 2, ChannelsOut: 2, BlockSize: 64}); err != nil {
		t.Fatal(err)
	}
	if a.state.Load() != first {
		t.Error("second Allocate() replaced the buffers")
	}
	if got := a.BufferFrames(); got != MaxTicks*64 {
		t.Errorf("BufferFrames() = %d, want %d", got, MaxTicks*64)
	}
	if len(first.outBuffer) != MaxTicks*64*2 {
		t.Errorf("len(outBuffer) = %d, want %d", len(first.outBuffer), MaxTicks*64*2)
	}

	a.Release()
	a.Release()
	if a.Initialized() || a.Running() {
		t.Error("Release() left the adapter initialized or running")
	}

	invalid := []Config{
		{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 0},
		{SampleRate: 0, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 64},
		{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 0, BlockSize: 64},
		{SampleRate: 44100, ChannelsIn: -1, ChannelsOut: 2, BlockSize: 64},
	}
	for _, cfg := range invalid {
		if err := a.Allocate(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Allocate(%+v) error = %v, want %v", cfg, err, ErrInvalidConfig)
		}
	}
}

func TestAdapter_EndToEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		frames     int
		wantTicks  uint64
		wantSilent int
	}{
		{128, 2, 0},
		{100, 1, 36},
	}

	for _, tt := range tests {
		r := &recorder{blockSize: 64, channelsOut: 2, value: 0.125}
		a := newRunningAdapter(t, Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 64}, r)

		in := make([]float32, tt.frames)
		out := filled(tt.frames*2, -1)
		a.Process(tt.frames, in, out)

		if got := a.Stats().Ticks; got != tt.wantTicks {
			t.Errorf("%d frames: ticks = %d, want %d", tt.frames, got, tt.wantTicks)
		}
		processed := tt.frames - tt.wantSilent
		for i := 0; i < processed*2; i++ {
			if out[i] != 0.125 {
				t.Fatalf("%d frames: out[%d] = %v, want 0.125", tt.frames, i, out[i])
			}
		}
		for i := processed * 2; i < len(out); i++ {
			if out[i] != 0 {
				t.Fatalf("%d frames: tail out[%d] = %v, want 0", tt.frames, i, out[i])
			}
		}
	}
}

func TestAdapter_ProcessDoesNotAllocate(t *testing.T) {
	r := &recorder{blockSize: 64, channelsOut: 2, value: 1, frames: make([]int, 0, 4096)}
	a := newRunningAdapter(t, Config{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2, BlockSize: 64}, r)

	in := make([]float32, 1000)
	out := make([]float32, 2000)
	allocs := testing.AllocsPerRun(100, func() {
		a.Process(1000, in, out)
	})
	if allocs != 0 {
		t.Errorf("Process() allocated %v times per run, want 0", allocs)
	}
}
