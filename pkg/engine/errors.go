package engine

import "errors"

var (
	ErrInitFailed      = errors.New("engine initialization failed")
	ErrOpenFailed      = errors.New("could not open patch")
	ErrNoReceiver      = errors.New("no such receiver")
	ErrNoArray         = errors.New("no such array")
	ErrArrayRange      = errors.New("array access out of range")
	ErrProcessFailed   = errors.New("engine processing failed")
	ErrMessageTooLong  = errors.New("compound message exceeds reserved length")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupportedAtom = errors.New("unsupported atom type")
	ErrGUI             = errors.New("gui error")
)
