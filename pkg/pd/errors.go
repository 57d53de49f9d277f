package pd

import "errors"

var (
	ErrDeviceInit     = errors.New("audio device initialization failed")
	ErrDeviceStart    = errors.New("audio device start failed")
	ErrDeviceStop     = errors.New("audio device stop failed")
	ErrNotInitialized = errors.New("audio not initialized")

	// Lookup failures on the host's own tables, distinct from engine failures.
	ErrUnknownPatch  = errors.New("unknown patch id")
	ErrNotSubscribed = errors.New("receiver not subscribed")
)
