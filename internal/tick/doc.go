// Package tick adapts a hardware audio callback, which delivers an arbitrary
// number of frames per call, to an engine that only processes whole blocks
// ("ticks") of a fixed size.
//
// Up to MaxTicks ticks are handed to the engine per call through pre-allocated
// scratch buffers. Frames that cannot form a whole tick are written as silence,
// and any failed precondition silences the whole callback.
package tick
