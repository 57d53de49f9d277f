//go:build libpd

package libpd

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/internal/bridge"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

// libpd is process global, so these tests do not run in parallel.

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(e.Release)
	return e
}

func TestEngine_Setup(t *testing.T) {
	e := newEngine(t)

	if got := e.BlockSize(); got != engine.DefaultBlockSize {
		t.Errorf("BlockSize() = %d, want %d", got, engine.DefaultBlockSize)
	}
	if parts := strings.Split(e.Version(), "."); len(parts) != 3 {
		t.Errorf("Version() = %q, want major.minor.bugfix", e.Version())
	}
	if e.NumInstances() < 1 {
		t.Errorf("NumInstances() = %d, want at least 1", e.NumInstances())
	}
	if err := e.InitAudio(1, 2, 44100); err != nil {
		t.Errorf("InitAudio() error = %v", err)
	}
	if err := e.Init(); err != nil {
		t.Errorf("second Init() error = %v", err)
	}

	original := e.Verbose()
	e.SetVerbose(true)
	if !e.Verbose() {
		t.Error("Verbose() = false after SetVerbose(true)")
	}
	e.SetVerbose(original)
}

func TestEngine_MissingResources(t *testing.T) {
	e := newEngine(t)

	const missing = "nonexistent_receiver_12345"
	if e.Exists(missing) {
		t.Errorf("Exists(%q) = true", missing)
	}
	for name, err := range map[string]error{
		"bang":   e.SendBang(missing),
		"float":  e.SendFloat(missing, 1),
		"symbol": e.SendSymbol(missing, "test"),
	} {
		if !errors.Is(err, engine.ErrNoReceiver) {
			t.Errorf("send %s error = %v, want ErrNoReceiver", name, err)
		}
	}
	if _, err := e.ArraySize("nonexistent_array_12345"); !errors.Is(err, engine.ErrNoArray) {
		t.Errorf("ArraySize() error = %v, want ErrNoArray", err)
	}
}

func TestEngine_BindDelivers(t *testing.T) {
	e := newEngine(t)

	var got []float32
	e.SetHooks(engine.Hooks{Float: func(recv string, x float32) {
		if recv == "test_receiver" {
			got = append(got, x)
		}
	}})

	b, err := e.Bind("test_receiver")
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if !e.Exists("test_receiver") {
		t.Error("Exists() = false after Bind")
	}
	if err := e.SendFloat("test_receiver", 42); err != nil {
		t.Fatalf("SendFloat() error = %v", err)
	}
	e.Unbind(b)

	if len(got) != 1 || got[0] != 42 {
		t.Errorf("float hook saw %v, want [42]", got)
	}
}

func TestEngine_ProcessSilence(t *testing.T) {
	e := newEngine(t)
	if err := e.InitAudio(0, 2, 44100); err != nil {
		t.Fatalf("InitAudio() error = %v", err)
	}

	c := e.ExportProcess()
	out := make([]float32, 2*c.BlockSize)
	if err := c.Process(1, nil, out); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := c.Process(1, nil, out[:1]); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Errorf("Process() into a short buffer error = %v, want ErrInvalidArgument", err)
	}
}

func TestEngine_QueuedHooksDoNotAllocate(t *testing.T) {
	e := newEngine(t)
	if err := e.InitAudio(0, 2, 44100); err != nil {
		t.Fatalf("InitAudio() error = %v", err)
	}

	var lists [][]engine.Atom
	var prints int
	b := bridge.New(bridge.Options{Mode: bridge.Queued, MessageRingSize: 1 << 16})
	b.SetPrint(func(string) { prints++ })
	b.SetList(func(recv string, atoms []engine.Atom) {
		if recv == "ticker_out" {
			lists = append(lists, atoms)
		}
	})
	e.SetHooks(b.Hooks())

	if _, err := e.Bind("ticker_out"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if _, err := e.OpenPatch("ticker.pd", "testdata"); err != nil {
		t.Fatalf("OpenPatch() error = %v", err)
	}
	if err := e.ComputeAudio(true); err != nil {
		t.Fatalf("ComputeAudio() error = %v", err)
	}

	c := e.ExportProcess()
	out := make([]float32, 2*c.BlockSize)
	// Warm up: the metro starts on loadbang, scratch reaches its final size.
	for range 8 {
		if err := c.Process(1, nil, out); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}
	b.ReceiveMessages()
	lists, prints = nil, 0

	allocs := testing.AllocsPerRun(50, func() {
		c.Process(1, nil, out)
	})
	if allocs != 0 {
		t.Errorf("processing with queued hooks allocated %v times per tick, want 0", allocs)
	}

	if n := b.ReceiveMessages(); n == 0 {
		t.Fatal("the patch produced no queued events")
	}
	if b.Dropped() != 0 {
		t.Errorf("Dropped() = %d", b.Dropped())
	}
	if prints == 0 || len(lists) == 0 {
		t.Fatalf("drained %d prints and %d lists, want both", prints, len(lists))
	}
	want := []engine.Atom{engine.Float(1), engine.Symbol("foo"), engine.Float(2)}
	for _, got := range lists {
		if !slices.Equal(got, want) {
			t.Fatalf("list = %v, want %v", got, want)
		}
	}
}
