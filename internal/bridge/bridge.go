package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

type Mode int

const (
	// Handlers run synchronously on whichever thread the engine calls back on.
	// They must be safe to run on the audio thread.
	Direct Mode = iota
	// Engine callbacks are written to a ring buffer and dispatched by
	// ReceiveMessages / ReceiveMIDI on the calling goroutine.
	Queued
)

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Queued:
		return "queued"
	}
	return "?"
}

const (
	DefaultMessageRingSize = 1 << 16
	DefaultMIDIRingSize    = 1 << 13
	DefaultMaxEventSize    = 4096
)

type Options struct {
	Mode            Mode
	MessageRingSize int
	MIDIRingSize    int
	// Largest encoded event accepted. Larger events are dropped.
	MaxEventSize int
	Logger       *slog.Logger
}

// Bridge owns the callback slot table and moves engine callbacks to their handlers.
//
// The slot table holds at most one handler per Kind. Handlers should only be
// (re)registered while the engine is not processing audio; the table is
// published atomically so a racing callback sees either the old or the new set.
type Bridge struct {
	logger *slog.Logger
	mode   Mode

	mu       sync.Mutex
	handlers atomic.Pointer[engine.Hooks]

	messages *Ring
	midi     *Ring

	// Producer-side scratch, one per ring. Only the engine thread touches these.
	messageScratch encoder
	midiScratch    encoder

	// Consumer-side scratch, grown as needed on the draining goroutine.
	header  [frameHeaderSize]byte
	payload []byte

	dropped atomic.Uint64
}

func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MessageRingSize <= 0 {
		opts.MessageRingSize = DefaultMessageRingSize
	}
	if opts.MIDIRingSize <= 0 {
		opts.MIDIRingSize = DefaultMIDIRingSize
	}
	if opts.MaxEventSize <= frameHeaderSize {
		opts.MaxEventSize = DefaultMaxEventSize
	}

	b := &Bridge{
		logger:         opts.Logger,
		mode:           opts.Mode,
		messages:       NewRing(opts.MessageRingSize),
		midi:           NewRing(opts.MIDIRingSize),
		messageScratch: encoder{buf: make([]byte, opts.MaxEventSize)},
		midiScratch:    encoder{buf: make([]byte, opts.MaxEventSize)},
		payload:        make([]byte, 0, opts.MaxEventSize),
	}
	b.handlers.Store(&engine.Hooks{})
	return b
}

func (b *Bridge) Mode() Mode {
	return b.mode
}

// Events lost because a ring was full or an event was too large.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// A copy of the currently registered handlers.
func (b *Bridge) Handlers() engine.Hooks {
	return *b.handlers.Load()
}

// Is a handler registered for kind?
func (b *Bridge) IsSet(kind Kind) bool {
	h := b.handlers.Load()
	switch kind {
	case KindPrint:
		return h.Print != nil
	case KindBang:
		return h.Bang != nil
	case KindFloat:
		return h.Float != nil
	case KindDouble:
		return h.Double != nil
	case KindSymbol:
		return h.Symbol != nil
	case KindList:
		return h.List != nil
	case KindMessage:
		return h.Message != nil
	case KindNoteOn:
		return h.NoteOn != nil
	case KindControlChange:
		return h.ControlChange != nil
	case KindProgramChange:
		return h.ProgramChange != nil
	case KindPitchBend:
		return h.PitchBend != nil
	case KindAfterTouch:
		return h.AfterTouch != nil
	case KindPolyAfterTouch:
		return h.PolyAfterTouch != nil
	case KindMidiByte:
		return h.MidiByte != nil
	}
	return false
}

// Copy-on-write update of the slot table.
func (b *Bridge) update(f func(h *engine.Hooks)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := *b.handlers.Load()
	f(&next)
	b.handlers.Store(&next)
}

// --------------------------------------------------------------------------------
// Handler registration. A nil handler clears the slot.

func (b *Bridge) SetPrint(fn func(s string)) {
	b.update(func(h *engine.Hooks) { h.Print = fn })
}

func (b *Bridge) SetBang(fn func(recv string)) {
	b.update(func(h *engine.Hooks) { h.Bang = fn })
}

// Setting a float handler clears the double handler.
func (b *Bridge) SetFloat(fn func(recv string, x float32)) {
	b.update(func(h *engine.Hooks) {
		h.Float = fn
		if fn != nil {
			h.Double = nil
		}
	})
}

// Setting a double handler clears the float handler.
func (b *Bridge) SetDouble(fn func(recv string, x float64)) {
	b.update(func(h *engine.Hooks) {
		h.Double = fn
		if fn != nil {
			h.Float = nil
		}
	})
}

func (b *Bridge) SetSymbol(fn func(recv string, sym string)) {
	b.update(func(h *engine.Hooks) { h.Symbol = fn })
}

func (b *Bridge) SetList(fn func(recv string, atoms []engine.Atom)) {
	b.update(func(h *engine.Hooks) { h.List = fn })
}

func (b *Bridge) SetMessage(fn func(recv string, msg string, atoms []engine.Atom)) {
	b.update(func(h *engine.Hooks) { h.Message = fn })
}

func (b *Bridge) SetNoteOn(fn func(channel, pitch, velocity int)) {
	b.update(func(h *engine.Hooks) { h.NoteOn = fn })
}

func (b *Bridge) SetControlChange(fn func(channel, controller, value int)) {
	b.update(func(h *engine.Hooks) { h.ControlChange = fn })
}

func (b *Bridge) SetProgramChange(fn func(channel, value int)) {
	b.update(func(h *engine.Hooks) { h.ProgramChange = fn })
}

func (b *Bridge) SetPitchBend(fn func(channel, value int)) {
	b.update(func(h *engine.Hooks) { h.PitchBend = fn })
}

func (b *Bridge) SetAfterTouch(fn func(channel, value int)) {
	b.update(func(h *engine.Hooks) { h.AfterTouch = fn })
}

func (b *Bridge) SetPolyAfterTouch(fn func(channel, pitch, value int)) {
	b.update(func(h *engine.Hooks) { h.PolyAfterTouch = fn })
}

func (b *Bridge) SetMidiByte(fn func(port, b int)) {
	b.update(func(h *engine.Hooks) { h.MidiByte = fn })
}

// Clear every slot.
func (b *Bridge) ClearAll() {
	b.update(func(h *engine.Hooks) { *h = engine.Hooks{} })
}

// --------------------------------------------------------------------------------

// The table to install into the engine for the current slots.
//
// In Direct mode the handlers themselves are returned. In Queued mode every
// occupied slot is replaced by a function that only encodes the event into a
// ring, and the table is marked Borrowed. Empty slots stay nil so the engine
// skips them.
func (b *Bridge) Hooks() engine.Hooks {
	h := b.handlers.Load()
	if b.mode == Direct {
		return *h
	}

	// The encoders copy every string and atom into the ring.
	q := engine.Hooks{Borrowed: true}
	if h.Print != nil {
		q.Print = b.queuePrint
	}
	if h.Bang != nil {
		q.Bang = b.queueBang
	}
	if h.Float != nil {
		q.Float = b.queueFloat
	}
	if h.Double != nil {
		q.Double = b.queueDouble
	}
	if h.Symbol != nil {
		q.Symbol = b.queueSymbol
	}
	if h.List != nil {
		q.List = b.queueList
	}
	if h.Message != nil {
		q.Message = b.queueMessage
	}
	if h.NoteOn != nil {
		q.NoteOn = b.queueNoteOn
	}
	if h.ControlChange != nil {
		q.ControlChange = b.queueControlChange
	}
	if h.ProgramChange != nil {
		q.ProgramChange = b.queueProgramChange
	}
	if h.PitchBend != nil {
		q.PitchBend = b.queuePitchBend
	}
	if h.AfterTouch != nil {
		q.AfterTouch = b.queueAfterTouch
	}
	if h.PolyAfterTouch != nil {
		q.PolyAfterTouch = b.queuePolyAfterTouch
	}
	if h.MidiByte != nil {
		q.MidiByte = b.queueMidiByte
	}
	return q
}

// Throw away anything still queued.
func (b *Bridge) Reset() {
	b.messages.Reset()
	b.midi.Reset()
}
