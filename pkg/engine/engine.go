package engine

// The fixed processing block of the engine, in frames.
const DefaultBlockSize = 64

// An engine-owned loaded patch.
//
// The ID is the patch's $0 value. It comes from an engine-internal counter and
// is only unique among the patches open at one time.
type Patch interface {
	ID() int
}

// An engine-owned receiver binding returned by Bind.
type Binding interface {
	Receiver() string
}

// Define the embeddable synthesis engine as consumed by this module.
//
// The engine itself is an external collaborator: implementations forward to it
// (see pkg/engine/libpd) or fake it in tests (see internal/pdtest).
//
// Unless stated otherwise, methods must be called from the controller goroutine
// only. The process methods are the exception: they run on the audio thread.
type Engine interface {
	Exporter

	Init() error
	Release()

	// The number of frames in one tick. Fixed at 64 for libpd.
	BlockSize() int
	InitAudio(inChannels, outChannels, sampleRate int) error
	// Turn DSP on or off inside the engine (the "pd dsp 1" message).
	ComputeAudio(on bool) error

	// Process ticks blocks of interleaved samples.
	// in must hold ticks*BlockSize*inChannels samples, out ticks*BlockSize*outChannels.
	ProcessFloat(ticks int, in, out []float32) error
	ProcessShort(ticks int, in, out []int16) error
	ProcessDouble(ticks int, in, out []float64) error
	// Process exactly one tick of non-interleaved samples.
	ProcessRaw(in, out []float32) error

	OpenPatch(name, dir string) (Patch, error)
	ClosePatch(p Patch)
	ClearSearchPath()
	AddToSearchPath(dir string)

	SendBang(recv string) error
	SendFloat(recv string, x float32) error
	SendSymbol(recv string, sym string) error
	SendList(recv string, atoms []Atom) error
	SendMessage(recv string, msg string, atoms []Atom) error

	// Compound message builder. StartMessage reserves room for maxLen atoms.
	StartMessage(maxLen int) error
	AddFloat(x float32)
	AddSymbol(sym string)
	FinishList(recv string) error
	FinishMessage(recv string, msg string) error

	Bind(recv string) (Binding, error)
	Unbind(b Binding)
	Exists(recv string) bool

	ArraySize(name string) (int, error)
	ResizeArray(name string, size int) error
	ReadArray(dst []float32, name string, offset int) error
	WriteArray(name string, offset int, src []float32) error

	NoteOn(channel, pitch, velocity int) error
	ControlChange(channel, controller, value int) error
	ProgramChange(channel, value int) error
	PitchBend(channel, value int) error
	AfterTouch(channel, value int) error
	PolyAfterTouch(channel, pitch, value int) error
	MidiByte(port, b int) error
	Sysex(port, b int) error
	SysRealtime(port, b int) error

	// Install the callback table. Must not be called while audio is processing.
	SetHooks(h Hooks)

	Verbose() bool
	SetVerbose(v bool)
	NumInstances() int
	Version() string

	StartGUI(path string) error
	StopGUI()
	PollGUI() int
}
