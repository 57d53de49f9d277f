package tick

import "errors"

var (
	ErrInvalidConfig          = errors.New("invalid audio configuration")
	ErrAlreadyBound           = errors.New("process capability already bound")
	ErrIncompatibleCapability = errors.New("incompatible process capability")
)
