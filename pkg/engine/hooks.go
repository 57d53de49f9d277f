package engine

// The engine callback table.
//
// A nil entry disables that hook inside the engine. Hooks may fire on whatever
// thread is driving the engine, which is the audio thread while audio is running.
// Float and Double are mutually exclusive: engines honour at most one of them,
// and Double wins if both are set.
type Hooks struct {
	Print   func(s string)
	Bang    func(recv string)
	Float   func(recv string, x float32)
	Double  func(recv string, x float64)
	Symbol  func(recv string, sym string)
	List    func(recv string, atoms []Atom)
	Message func(recv string, msg string, atoms []Atom)

	NoteOn         func(channel, pitch, velocity int)
	ControlChange  func(channel, controller, value int)
	ProgramChange  func(channel, value int)
	PitchBend      func(channel, value int)
	AfterTouch     func(channel, value int)
	PolyAfterTouch func(channel, pitch, value int)
	MidiByte       func(port, b int)

	// Strings and atom slices handed to the hooks are only valid for the
	// duration of the call, so engines may pass views of their own memory
	// instead of copies. Set only when every hook copies what it keeps.
	Borrowed bool
}
