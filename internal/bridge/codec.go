package bridge

import (
	"encoding/binary"
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

// Kind identifies a callback slot.
type Kind uint8

const (
	KindPrint Kind = iota
	KindBang
	KindFloat
	KindDouble
	KindSymbol
	KindList
	KindMessage
	KindNoteOn
	KindControlChange
	KindProgramChange
	KindPitchBend
	KindAfterTouch
	KindPolyAfterTouch
	KindMidiByte
)

func (k Kind) String() string {
	switch k {
	case KindPrint:
		return "print"
	case KindBang:
		return "bang"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindSymbol:
		return "symbol"
	case KindList:
		return "list"
	case KindMessage:
		return "message"
	case KindNoteOn:
		return "noteon"
	case KindControlChange:
		return "controlchange"
	case KindProgramChange:
		return "programchange"
	case KindPitchBend:
		return "pitchbend"
	case KindAfterTouch:
		return "aftertouch"
	case KindPolyAfterTouch:
		return "polyaftertouch"
	case KindMidiByte:
		return "midibyte"
	}
	return "?"
}

func (k Kind) IsMIDI() bool {
	return k >= KindNoteOn
}

// Events are framed as a uint32 payload length followed by the payload,
// all little endian. The payload starts with the Kind byte.
const frameHeaderSize = 4

// Writes into a fixed buffer without growing it. Once a write does not fit,
// the encoder is marked as overflowed and every later write is ignored.
type encoder struct {
	buf      []byte
	n        int
	overflow bool
}

func (e *encoder) reset(kind Kind) {
	e.n = frameHeaderSize
	e.overflow = false
	e.u8(uint8(kind))
}

func (e *encoder) reserve(size int) []byte {
	if e.overflow || e.n+size > len(e.buf) {
		e.overflow = true
		return nil
	}
	p := e.buf[e.n : e.n+size]
	e.n += size
	return p
}

func (e *encoder) u8(v uint8) {
	if p := e.reserve(1); p != nil {
		p[0] = v
	}
}

func (e *encoder) u32(v uint32) {
	if p := e.reserve(4); p != nil {
		binary.LittleEndian.PutUint32(p, v)
	}
}

func (e *encoder) i32(v int) {
	e.u32(uint32(int32(v)))
}

func (e *encoder) f32(v float32) {
	e.u32(math.Float32bits(v))
}

func (e *encoder) f64(v float64) {
	if p := e.reserve(8); p != nil {
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	}
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if p := e.reserve(len(s)); p != nil {
		copy(p, s)
	}
}

func (e *encoder) atoms(atoms []engine.Atom) {
	e.u32(uint32(len(atoms)))
	for _, a := range atoms {
		e.u8(uint8(a.Type))
		if a.Type == engine.AtomSymbol {
			e.str(a.Symbol)
		} else {
			e.f32(a.Float)
		}
	}
}

// Complete the frame header and return the framed bytes.
func (e *encoder) frame() ([]byte, bool) {
	if e.overflow {
		return nil, false
	}
	binary.LittleEndian.PutUint32(e.buf, uint32(e.n-frameHeaderSize))
	return e.buf[:e.n], true
}

// --------------------------------------------------------------------------------

// Reads a payload produced by encoder. Any short read marks the decoder as failed.
type decoder struct {
	buf    []byte
	off    int
	failed bool
}

func (d *decoder) take(size int) []byte {
	if d.failed || size < 0 || d.off+size > len(d.buf) {
		d.failed = true
		return nil
	}
	p := d.buf[d.off : d.off+size]
	d.off += size
	return p
}

func (d *decoder) u8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if p := d.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *decoder) i32() int {
	return int(int32(d.u32()))
}

func (d *decoder) f32() float32 {
	return math.Float32frombits(d.u32())
}

func (d *decoder) f64() float64 {
	if p := d.take(8); p != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	}
	return 0
}

func (d *decoder) str() string {
	n := int(d.u32())
	if p := d.take(n); p != nil {
		return string(p)
	}
	return ""
}

func (d *decoder) atoms() []engine.Atom {
	n := int(d.u32())
	if d.failed || n > len(d.buf)-d.off {
		d.failed = true
		return nil
	}
	atoms := make([]engine.Atom, 0, n)
	for range n {
		if engine.AtomType(d.u8()) == engine.AtomSymbol {
			atoms = append(atoms, engine.Symbol(d.str()))
		} else {
			atoms = append(atoms, engine.Float(d.f32()))
		}
	}
	return atoms
}
