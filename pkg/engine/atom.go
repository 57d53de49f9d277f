package engine

import "fmt"

type AtomType uint8

const (
	AtomFloat AtomType = iota
	AtomSymbol
)

// A single message argument: either a float or a symbol.
type Atom struct {
	Type   AtomType
	Float  float32
	Symbol string
}

func Float(x float32) Atom {
	return Atom{Type: AtomFloat, Float: x}
}

func Symbol(s string) Atom {
	return Atom{Type: AtomSymbol, Symbol: s}
}

func (a Atom) IsFloat() bool  { return a.Type == AtomFloat }
func (a Atom) IsSymbol() bool { return a.Type == AtomSymbol }

func (a Atom) String() string {
	if a.Type == AtomSymbol {
		return a.Symbol
	}
	return fmt.Sprintf("%g", a.Float)
}

// Convert loosely typed host values into atoms.
//
// Numeric values become floats, strings become symbols, atoms pass through.
// Anything else returns ErrUnsupportedAtom.
func ToAtoms(args ...any) ([]Atom, error) {
	atoms := make([]Atom, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case Atom:
			atoms[i] = v
		case string:
			atoms[i] = Symbol(v)
		case float32:
			atoms[i] = Float(v)
		case float64:
			atoms[i] = Float(float32(v))
		case int:
			atoms[i] = Float(float32(v))
		case int8:
			atoms[i] = Float(float32(v))
		case int16:
			atoms[i] = Float(float32(v))
		case int32:
			atoms[i] = Float(float32(v))
		case int64:
			atoms[i] = Float(float32(v))
		case uint:
			atoms[i] = Float(float32(v))
		case uint8:
			atoms[i] = Float(float32(v))
		case uint16:
			atoms[i] = Float(float32(v))
		case uint32:
			atoms[i] = Float(float32(v))
		case uint64:
			atoms[i] = Float(float32(v))
		case bool:
			if v {
				atoms[i] = Float(1)
			} else {
				atoms[i] = Float(0)
			}
		default:
			return nil, fmt.Errorf("%w: argument %d has type %T", ErrUnsupportedAtom, i, arg)
		}
	}
	return atoms, nil
}
