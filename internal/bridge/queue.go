package bridge

import (
	"encoding/binary"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

// --------------------------------------------------------------------------------
// Producer side. These run on the engine thread: no locks, no allocation.

func (b *Bridge) push(r *Ring, e *encoder) {
	framed, ok := e.frame()
	if !ok || !r.Write(framed) {
		b.dropped.Add(1)
	}
}

func (b *Bridge) queuePrint(s string) {
	e := &b.messageScratch
	e.reset(KindPrint)
	e.str(s)
	b.push(b.messages, e)
}

func (b *Bridge) queueBang(recv string) {
	e := &b.messageScratch
	e.reset(KindBang)
	e.str(recv)
	b.push(b.messages, e)
}

func (b *Bridge) queueFloat(recv string, x float32) {
	e := &b.messageScratch
	e.reset(KindFloat)
	e.str(recv)
	e.f32(x)
	b.push(b.messages, e)
}

func (b *Bridge) queueDouble(recv string, x float64) {
	e := &b.messageScratch
	e.reset(KindDouble)
	e.str(recv)
	e.f64(x)
	b.push(b.messages, e)
}

func (b *Bridge) queueSymbol(recv string, sym string) {
	e := &b.messageScratch
	e.reset(KindSymbol)
	e.str(recv)
	e.str(sym)
	b.push(b.messages, e)
}

func (b *Bridge) queueList(recv string, atoms []engine.Atom) {
	e := &b.messageScratch
	e.reset(KindList)
	e.str(recv)
	e.atoms(atoms)
	b.push(b.messages, e)
}

func (b *Bridge) queueMessage(recv string, msg string, atoms []engine.Atom) {
	e := &b.messageScratch
	e.reset(KindMessage)
	e.str(recv)
	e.str(msg)
	e.atoms(atoms)
	b.push(b.messages, e)
}

func (b *Bridge) queueNoteOn(channel, pitch, velocity int) {
	b.queueMIDI3(KindNoteOn, channel, pitch, velocity)
}

func (b *Bridge) queueControlChange(channel, controller, value int) {
	b.queueMIDI3(KindControlChange, channel, controller, value)
}

func (b *Bridge) queueProgramChange(channel, value int) {
	b.queueMIDI2(KindProgramChange, channel, value)
}

func (b *Bridge) queuePitchBend(channel, value int) {
	b.queueMIDI2(KindPitchBend, channel, value)
}

func (b *Bridge) queueAfterTouch(channel, value int) {
	b.queueMIDI2(KindAfterTouch, channel, value)
}

func (b *Bridge) queuePolyAfterTouch(channel, pitch, value int) {
	b.queueMIDI3(KindPolyAfterTouch, channel, pitch, value)
}

func (b *Bridge) queueMidiByte(port, value int) {
	b.queueMIDI2(KindMidiByte, port, value)
}

func (b *Bridge) queueMIDI2(kind Kind, x, y int) {
	e := &b.midiScratch
	e.reset(kind)
	e.i32(x)
	e.i32(y)
	b.push(b.midi, e)
}

func (b *Bridge) queueMIDI3(kind Kind, x, y, z int) {
	e := &b.midiScratch
	e.reset(kind)
	e.i32(x)
	e.i32(y)
	e.i32(z)
	b.push(b.midi, e)
}

// --------------------------------------------------------------------------------
// Consumer side. These run on the controller goroutine.

// Dispatch every queued print and message event to its handler.
// Returns the number of handlers invoked.
func (b *Bridge) ReceiveMessages() int {
	return b.drain(b.messages)
}

// Dispatch every queued MIDI event to its handler.
// Returns the number of handlers invoked.
func (b *Bridge) ReceiveMIDI() int {
	return b.drain(b.midi)
}

func (b *Bridge) drain(r *Ring) int {
	dispatched := 0
	for r.Peek(b.header[:]) {
		size := int(binary.LittleEndian.Uint32(b.header[:]))
		if size > r.ReadAvailable()-frameHeaderSize {
			// The producer publishes whole frames only, so this means corruption.
			b.logger.Error("truncated event in ring, discarding queue", "size", size)
			r.Reset()
			break
		}
		if cap(b.payload) < frameHeaderSize+size {
			b.payload = make([]byte, frameHeaderSize+size)
		}
		frame := b.payload[:frameHeaderSize+size]
		r.Read(frame)

		if b.dispatch(frame[frameHeaderSize:]) {
			dispatched++
		}
	}
	return dispatched
}

func (b *Bridge) dispatch(payload []byte) bool {
	d := decoder{buf: payload}
	kind := Kind(d.u8())
	h := b.handlers.Load()

	switch kind {
	case KindPrint:
		s := d.str()
		if d.failed || h.Print == nil {
			break
		}
		h.Print(s)
		return true
	case KindBang:
		recv := d.str()
		if d.failed || h.Bang == nil {
			break
		}
		h.Bang(recv)
		return true
	case KindFloat:
		recv, x := d.str(), d.f32()
		if d.failed || h.Float == nil {
			break
		}
		h.Float(recv, x)
		return true
	case KindDouble:
		recv, x := d.str(), d.f64()
		if d.failed || h.Double == nil {
			break
		}
		h.Double(recv, x)
		return true
	case KindSymbol:
		recv, sym := d.str(), d.str()
		if d.failed || h.Symbol == nil {
			break
		}
		h.Symbol(recv, sym)
		return true
	case KindList:
		recv := d.str()
		atoms := d.atoms()
		if d.failed || h.List == nil {
			break
		}
		h.List(recv, atoms)
		return true
	case KindMessage:
		recv, msg := d.str(), d.str()
		atoms := d.atoms()
		if d.failed || h.Message == nil {
			break
		}
		h.Message(recv, msg, atoms)
		return true
	case KindNoteOn:
		ch, pitch, vel := d.i32(), d.i32(), d.i32()
		if d.failed || h.NoteOn == nil {
			break
		}
		h.NoteOn(ch, pitch, vel)
		return true
	case KindControlChange:
		ch, controller, value := d.i32(), d.i32(), d.i32()
		if d.failed || h.ControlChange == nil {
			break
		}
		h.ControlChange(ch, controller, value)
		return true
	case KindProgramChange:
		ch, value := d.i32(), d.i32()
		if d.failed || h.ProgramChange == nil {
			break
		}
		h.ProgramChange(ch, value)
		return true
	case KindPitchBend:
		ch, value := d.i32(), d.i32()
		if d.failed || h.PitchBend == nil {
			break
		}
		h.PitchBend(ch, value)
		return true
	case KindAfterTouch:
		ch, value := d.i32(), d.i32()
		if d.failed || h.AfterTouch == nil {
			break
		}
		h.AfterTouch(ch, value)
		return true
	case KindPolyAfterTouch:
		ch, pitch, value := d.i32(), d.i32(), d.i32()
		if d.failed || h.PolyAfterTouch == nil {
			break
		}
		h.PolyAfterTouch(ch, pitch, value)
		return true
	case KindMidiByte:
		port, value := d.i32(), d.i32()
		if d.failed || h.MidiByte == nil {
			break
		}
		h.MidiByte(port, value)
		return true
	default:
		b.logger.Warn("unknown event kind in ring", "kind", uint8(kind))
	}
	return false
}
