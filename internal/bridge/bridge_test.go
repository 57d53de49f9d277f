package bridge

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

func TestBridge_DirectModeCallsHandlersInPlace(t *testing.T) {
	t.Parallel()

	b := New(Options{Mode: Direct})
	var got []string
	b.SetBang(func(recv string) { got = append(got, "bang "+recv) })
	b.SetPrint(func(s string) { got = append(got, "print "+s) })

	h := b.Hooks()
	h.Bang("spam")
	h.Print("hello")

	want := []string{"bang spam", "print hello"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if n := b.ReceiveMessages(); n != 0 {
		t.Errorf("ReceiveMessages() in direct mode = %d, want 0", n)
	}
}

func TestBridge_QueuedModeDefersUntilDrain(t *testing.T) {
	t.Parallel()

	b := New(Options{Mode: Queued})
	var got []any
	b.SetPrint(func(s string) { got = append(got, s) })
	b.SetFloat(func(recv string, x float32) { got = append(got, recv, x) })
	b.SetSymbol(func(recv string, sym string) { got = append(got, recv, sym) })
	b.SetList(func(recv string, atoms []engine.Atom) { got = append(got, recv, atoms) })
	b.SetMessage(func(recv string, msg string, atoms []engine.Atom) { got = append(got, recv, msg, atoms) })

	h := b.Hooks()
	h.Print("hi\n")
	h.Float("eggs", 42)
	h.Symbol("eggs", "ham")
	h.List("eggs", []engine.Atom{engine.Float(1), engine.Symbol("two")})
	h.Message("eggs", "foo", nil)

	if len(got) != 0 {
		t.Fatalf("handlers ran before drain: %v", got)
	}

	if n := b.ReceiveMessages(); n != 5 {
		t.Fatalf("ReceiveMessages() = %d, want 5", n)
	}
	want := []any{
		"hi\n",
		"eggs", float32(42),
		"eggs", "ham",
		"eggs", []engine.Atom{engine.Float(1), engine.Symbol("two")},
		"eggs", "foo", []engine.Atom{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	if n := b.ReceiveMessages(); n != 0 {
		t.Errorf("second ReceiveMessages() = %d, want 0", n)
	}
}

func TestBridge_QueuedMIDI(t *testing.T) {
	t.Parallel()

	b := New(Options{Mode: Queued})
	type event struct {
		kind Kind
		args []int
	}
	var got []event
	b.SetNoteOn(func(ch, pitch, vel int) { got = append(got, event{KindNoteOn, []int{ch, pitch, vel}}) })
	b.SetControlChange(func(ch, cc, v int) { got = append(got, event{KindControlChange, []int{ch, cc, v}}) })
	b.SetProgramChange(func(ch, v int) { got = append(got, event{KindProgramChange, []int{ch, v}}) })
	b.SetPitchBend(func(ch, v int) { got = append(got, event{KindPitchBend, []int{ch, v}}) })
	b.SetAfterTouch(func(ch, v int) { got = append(got, event{KindAfterTouch, []int{ch, v}}) })
	b.SetPolyAfterTouch(func(ch, p, v int) { got = append(got, event{KindPolyAfterTouch, []int{ch, p, v}}) })
	b.SetMidiByte(func(port, v int) { got = append(got, event{KindMidiByte, []int{port, v}}) })

	h := b.Hooks()
	h.NoteOn(0, 60, 100)
	h.ControlChange(1, 7, 64)
	h.ProgramChange(2, 5)
	h.PitchBend(3, -8192)
	h.AfterTouch(4, 10)
	h.PolyAfterTouch(5, 61, 20)
	h.MidiByte(0, 0xF8)

	// MIDI goes to its own ring.
	if n := b.ReceiveMessages(); n != 0 {
		t.Fatalf("ReceiveMessages() = %d, want 0", n)
	}
	if n := b.ReceiveMIDI(); n != 7 {
		t.Fatalf("ReceiveMIDI() = %d, want 7", n)
	}

	want := []event{
		{KindNoteOn, []int{0, 60, 100}},
		{KindControlChange, []int{1, 7, 64}},
		{KindProgramChange, []int{2, 5}},
		{KindPitchBend, []int{3, -8192}},
		{KindAfterTouch, []int{4, 10}},
		{KindPolyAfterTouch, []int{5, 61, 20}},
		{KindMidiByte, []int{0, 0xF8}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBridge_EmptySlotsAreNotInstalled(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{Direct, Queued} {
		b := New(Options{Mode: mode})
		b.SetBang(func(string) {})

		h := b.Hooks()
		if h.Bang == nil {
			t.Errorf("%v: bang hook not installed", mode)
		}
		if h.Print != nil || h.Float != nil || h.NoteOn != nil {
			t.Errorf("%v: empty slots installed", mode)
		}

		b.SetBang(nil)
		if b.Hooks().Bang != nil || b.IsSet(KindBang) {
			t.Errorf("%v: bang hook still installed after clearing", mode)
		}
	}
}

func TestBridge_FloatAndDoubleAreExclusive(t *testing.T) {
	t.Parallel()

	b := New(Options{Mode: Queued})
	b.SetFloat(func(string, float32) {})
	b.SetDouble(func(string, float64) {})
	if b.IsSet(KindFloat) || !b.IsSet(KindDouble) {
		t.Error("setting double did not clear float")
	}

	b.SetFloat(func(string, float32) {})
	if !b.IsSet(KindFloat) || b.IsSet(KindDouble) {
		t.Error("setting float did not clear double")
	}

	// Clearing one leaves the other alone.
	b.SetDouble(nil)
	if !b.IsSet(KindFloat) {
		t.Error("clearing double cleared float")
	}
}

func TestBridge_ReplaceHandler(t *testing.T) {
	t.Parallel()

	b := New(Options{Mode: Queued})
	var first, second int
	b.SetBang(func(string) { first++ })
	h := b.Hooks()
	h.Bang("a")
	b.SetBang(func(string) { second++ })
	h.Bang("b")

	b.ReceiveMessages()
	if first != 0 || second != 2 {
		t.Errorf("first = %d, second = %d, want 0 and 2", first, second)
	}
}

func TestBridge_ClearedHandlerSkipsQueuedEvents(t *testing.T) {
	t.Parallel()

	b := New(Options{Mode: Queued})
	b.SetPrint(func(string) { t.Error("cleared handler was called") })
	b.Hooks().Print("late")
	b.ClearAll()

	if n := b.ReceiveMessages(); n != 0 {
		t.Errorf("ReceiveMessages() = %d, want 0", n)
	}
}

func TestBridge_DropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New(Options{Mode: Queued, MessageRingSize: 64, MaxEventSize: 32})
	count := 0
	b.SetBang(func(string) { count++ })
	h := b.Hooks()

	// Each bang frame is 4 + 1 + 4 + 4 = 13 bytes; 64 bytes hold four.
	for range 10 {
		h.Bang("spam")
	}
	// Too large for the event scratch.
	h.Bang(string(make([]byte, 100)))

	if got := b.Dropped(); got != 7 {
		t.Errorf("Dropped() = %d, want 7", got)
	}
	if n := b.ReceiveMessages(); n != 4 || count != 4 {
		t.Errorf("ReceiveMessages() = %d (count %d), want 4", n, count)
	}
}

func TestBridge_QueuedProducerDoesNotAllocate(t *testing.T) {
	b := New(Options{Mode: Queued})
	b.SetFloat(func(string, float32) {})
	b.SetList(func(string, []engine.Atom) {})
	h := b.Hooks()
	atoms := []engine.Atom{engine.Float(1), engine.Symbol("x")}

	allocs := testing.AllocsPerRun(100, func() {
		h.Float("eggs", 1)
		h.List("eggs", atoms)
		b.messages.Reset()
	})
	if allocs != 0 {
		t.Errorf("queued hooks allocated %v times per run, want 0", allocs)
	}
}

func TestBridge_HandlersAndHooksByMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode         Mode
		wantBorrowed bool
	}{
		{Direct, false},
		{Queued, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			t.Parallel()

			b := New(Options{Mode: tt.mode})
			var got []string
			b.SetSymbol(func(recv, sym string) { got = append(got, recv+" "+sym) })

			handlers := b.Handlers()
			if handlers.Symbol == nil || handlers.Print != nil {
				t.Fatalf("Handlers() symbol set = %v, print set = %v", handlers.Symbol != nil, handlers.Print != nil)
			}
			if handlers.Borrowed {
				t.Error("Handlers() should hold the registered handlers only")
			}
			handlers.Symbol("spam", "eggs")

			hooks := b.Hooks()
			if hooks.Borrowed != tt.wantBorrowed {
				t.Errorf("Hooks().Borrowed = %v, want %v", hooks.Borrowed, tt.wantBorrowed)
			}

			// Hand over a view, then scribble over its memory after the call.
			recv := []byte("ham")
			hooks.Symbol(unsafe.String(&recv[0], len(recv)), "toast")
			copy(recv, "xxx")
			b.ReceiveMessages()

			want := []string{"spam eggs", "ham toast"}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}
