// Package pdtest provides in-memory stand-ins for the engine and the audio
// device, for tests that must run without libpd or sound hardware.
package pdtest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

// Engine is a fake engine.Engine.
//
// Messages sent to a receiver are echoed to the hooks when that receiver is
// bound, and forwarded along Routes. MIDI sends are echoed to the MIDI hooks.
// While DSP is on every processed output sample is set to Output.
type Engine struct {
	mu sync.Mutex

	blockSize int
	Output    float32
	// Called from ProcessFloat with the installed hooks, on the processing thread.
	OnProcess func(h engine.Hooks)
	// recv -> recv forwarding applied to every send, like [r spam]-[s eggs].
	Routes map[string]string
	// Receivers created by opening a patch, keyed by patch file name.
	PatchReceivers map[string][]string
	// Arrays created by opening a patch, keyed by patch file name.
	PatchArrays map[string]map[string]int
	// Patch names that fail to open.
	Missing map[string]bool

	initialized bool
	dsp         atomic.Bool
	inChannels  int
	outChannels int
	sampleRate  int

	hooks       engine.Hooks
	nextID      int
	patches     map[int]*patch
	bindings    map[string]int
	receivers   map[string]int
	arrays      map[string][]float32
	searchPath  []string
	verbose     bool
	message     []engine.Atom
	messageMax  int
	building    bool
	guiRunning  bool
	ticks       atomic.Uint64
	processCall atomic.Uint64
}

type patch struct {
	id   int
	name string
}

func (p *patch) ID() int { return p.id }

type binding struct {
	recv string
}

func (b *binding) Receiver() string { return b.recv }

func NewEngine() *Engine {
	return &Engine{
		blockSize:      engine.DefaultBlockSize,
		Output:         1,
		Routes:         make(map[string]string),
		PatchReceivers: make(map[string][]string),
		PatchArrays:    make(map[string]map[string]int),
		Missing:        make(map[string]bool),
		nextID:         1003,
		patches:        make(map[int]*patch),
		bindings:       make(map[string]int),
		receivers:      make(map[string]int),
		arrays:         make(map[string][]float32),
	}
}

// --------------------------------------------------------------------------------
// Inspection helpers for tests.

// Engine-level bindings currently held for recv.
func (e *Engine) Bindings(recv string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bindings[recv]
}

func (e *Engine) OpenPatches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.patches)
}

func (e *Engine) Ticks() uint64 {
	return e.ticks.Load()
}

func (e *Engine) ProcessCalls() uint64 {
	return e.processCall.Load()
}

func (e *Engine) DSP() bool {
	return e.dsp.Load()
}

func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

func (e *Engine) SearchPath() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.searchPath...)
}

func (e *Engine) InstalledHooks() engine.Hooks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hooks
}

// --------------------------------------------------------------------------------

func (e *Engine) ExportProcess() engine.Capability {
	return engine.NewCapability(e.blockSize, e.ProcessFloat)
}

func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = true
	return nil
}

func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	e.dsp.Store(false)
	e.patches = make(map[int]*patch)
	e.bindings = make(map[string]int)
	e.receivers = make(map[string]int)
	e.arrays = make(map[string][]float32)
	e.hooks = engine.Hooks{}
}

func (e *Engine) BlockSize() int {
	return e.blockSize
}

func (e *Engine) InitAudio(inChannels, outChannels, sampleRate int) error {
	if inChannels < 0 || outChannels < 0 || sampleRate <= 0 {
		return fmt.Errorf("%w: %d in, %d out, %d Hz", engine.ErrInvalidArgument, inChannels, outChannels, sampleRate)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inChannels, e.outChannels, e.sampleRate = inChannels, outChannels, sampleRate
	return nil
}

func (e *Engine) ComputeAudio(on bool) error {
	e.dsp.Store(on)
	return nil
}

func (e *Engine) ProcessFloat(ticks int, in, out []float32) error {
	e.processCall.Add(1)
	if ticks < 0 {
		return engine.ErrProcessFailed
	}
	value := float32(0)
	if e.dsp.Load() {
		value = e.Output
	}
	for i := range out {
		out[i] = value
	}
	e.ticks.Add(uint64(ticks))
	if e.OnProcess != nil {
		e.OnProcess(e.hooks)
	}
	return nil
}

func (e *Engine) ProcessShort(ticks int, in, out []int16) error {
	value := int16(0)
	if e.dsp.Load() {
		value = int16(int32(e.Output * 32767))
	}
	for i := range out {
		out[i] = value
	}
	e.ticks.Add(uint64(ticks))
	return nil
}

func (e *Engine) ProcessDouble(ticks int, in, out []float64) error {
	value := float64(0)
	if e.dsp.Load() {
		value = float64(e.Output)
	}
	for i := range out {
		out[i] = value
	}
	e.ticks.Add(uint64(ticks))
	return nil
}

func (e *Engine) ProcessRaw(in, out []float32) error {
	return e.ProcessFloat(1, in, out)
}

// --------------------------------------------------------------------------------

func (e *Engine) OpenPatch(name, dir string) (engine.Patch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Missing[name] {
		return nil, fmt.Errorf("%w: %s in %s", engine.ErrOpenFailed, name, dir)
	}
	p := &patch{id: e.nextID, name: name}
	e.nextID++
	e.patches[p.id] = p
	for _, recv := range e.PatchReceivers[name] {
		e.receivers[recv]++
	}
	for array, size := range e.PatchArrays[name] {
		e.arrays[array] = make([]float32, size)
	}
	return p, nil
}

func (e *Engine) ClosePatch(p engine.Patch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fp, ok := p.(*patch)
	if !ok {
		return
	}
	delete(e.patches, fp.id)
	for _, recv := range e.PatchReceivers[fp.name] {
		if e.receivers[recv]--; e.receivers[recv] <= 0 {
			delete(e.receivers, recv)
		}
	}
	for array := range e.PatchArrays[fp.name] {
		delete(e.arrays, array)
	}
}

func (e *Engine) ClearSearchPath() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.searchPath = nil
}

func (e *Engine) AddToSearchPath(dir string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.searchPath = append(e.searchPath, dir)
}

// --------------------------------------------------------------------------------

// Deliver a message to recv and along its route. Hooks run without the lock held.
func (e *Engine) deliver(recv string, fire func(h engine.Hooks, recv string)) error {
	e.mu.Lock()
	if e.bindings[recv] == 0 && e.receivers[recv] == 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", engine.ErrNoReceiver, recv)
	}
	hooks := e.hooks
	targets := make([]string, 0, 2)
	if e.bindings[recv] > 0 {
		targets = append(targets, recv)
	}
	if route, ok := e.Routes[recv]; ok && e.bindings[route] > 0 {
		targets = append(targets, route)
	}
	e.mu.Unlock()

	for _, target := range targets {
		fire(hooks, target)
	}
	return nil
}

func (e *Engine) SendBang(recv string) error {
	return e.deliver(recv, func(h engine.Hooks, target string) {
		if h.Bang != nil {
			h.Bang(target)
		}
	})
}

func (e *Engine) SendFloat(recv string, x float32) error {
	return e.deliver(recv, func(h engine.Hooks, target string) {
		switch {
		case h.Double != nil:
			h.Double(target, float64(x))
		case h.Float != nil:
			h.Float(target, x)
		}
	})
}

func (e *Engine) SendSymbol(recv string, sym string) error {
	return e.deliver(recv, func(h engine.Hooks, target string) {
		if h.Symbol != nil {
			h.Symbol(target, sym)
		}
	})
}

func (e *Engine) SendList(recv string, atoms []engine.Atom) error {
	return e.deliver(recv, func(h engine.Hooks, target string) {
		if h.List != nil {
			h.List(target, append([]engine.Atom(nil), atoms...))
		}
	})
}

func (e *Engine) SendMessage(recv string, msg string, atoms []engine.Atom) error {
	return e.deliver(recv, func(h engine.Hooks, target string) {
		if h.Message != nil {
			h.Message(target, msg, append([]engine.Atom(nil), atoms...))
		}
	})
}

func (e *Engine) StartMessage(maxLen int) error {
	if maxLen < 0 {
		return fmt.Errorf("%w: message length %d", engine.ErrInvalidArgument, maxLen)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.message = make([]engine.Atom, 0, maxLen)
	e.messageMax = maxLen
	e.building = true
	return nil
}

func (e *Engine) AddFloat(x float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.message = append(e.message, engine.Float(x))
}

func (e *Engine) AddSymbol(sym string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.message = append(e.message, engine.Symbol(sym))
}

func (e *Engine) takeMessage() ([]engine.Atom, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.building {
		return nil, fmt.Errorf("%w: no message started", engine.ErrInvalidArgument)
	}
	e.building = false
	if len(e.message) > e.messageMax {
		return nil, fmt.Errorf("%w: %d atoms, %d reserved", engine.ErrMessageTooLong, len(e.message), e.messageMax)
	}
	return e.message, nil
}

func (e *Engine) FinishList(recv string) error {
	atoms, err := e.takeMessage()
	if err != nil {
		return err
	}
	return e.SendList(recv, atoms)
}

func (e *Engine) FinishMessage(recv string, msg string) error {
	atoms, err := e.takeMessage()
	if err != nil {
		return err
	}
	return e.SendMessage(recv, msg, atoms)
}

func (e *Engine) Bind(recv string) (engine.Binding, error) {
	if recv == "" {
		return nil, fmt.Errorf("%w: empty receiver name", engine.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[recv]++
	return &binding{recv: recv}, nil
}

func (e *Engine) Unbind(b engine.Binding) {
	e.mu.Lock()
	defer e.mu.Unlock()
	recv := b.Receiver()
	if e.bindings[recv]--; e.bindings[recv] <= 0 {
		delete(e.bindings, recv)
	}
}

func (e *Engine) Exists(recv string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bindings[recv] > 0 || e.receivers[recv] > 0
}

// --------------------------------------------------------------------------------

func (e *Engine) ArraySize(name string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.arrays[name]
	if !ok {
		return -1, fmt.Errorf("%w: %s", engine.ErrNoArray, name)
	}
	return len(a), nil
}

func (e *Engine) ResizeArray(name string, size int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.arrays[name]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrNoArray, name)
	}
	if size < 1 {
		size = 1
	}
	resized := make([]float32, size)
	copy(resized, a)
	e.arrays[name] = resized
	return nil
}

func (e *Engine) ReadArray(dst []float32, name string, offset int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.arrays[name]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrNoArray, name)
	}
	if offset < 0 || offset+len(dst) > len(a) {
		return fmt.Errorf("%w: %s[%d:%d]", engine.ErrArrayRange, name, offset, offset+len(dst))
	}
	copy(dst, a[offset:])
	return nil
}

func (e *Engine) WriteArray(name string, offset int, src []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.arrays[name]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrNoArray, name)
	}
	if offset < 0 || offset+len(src) > len(a) {
		return fmt.Errorf("%w: %s[%d:%d]", engine.ErrArrayRange, name, offset, offset+len(src))
	}
	copy(a[offset:], src)
	return nil
}

// --------------------------------------------------------------------------------

func (e *Engine) midiHooks() engine.Hooks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hooks
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d outside [%d, %d]", engine.ErrInvalidArgument, name, v, lo, hi)
	}
	return nil
}

func (e *Engine) NoteOn(channel, pitch, velocity int) error {
	if err := checkRange("channel", channel, 0, 1<<12); err != nil {
		return err
	}
	if err := checkRange("pitch", pitch, 0, 127); err != nil {
		return err
	}
	if err := checkRange("velocity", velocity, 0, 127); err != nil {
		return err
	}
	if h := e.midiHooks(); h.NoteOn != nil {
		h.NoteOn(channel, pitch, velocity)
	}
	return nil
}

func (e *Engine) ControlChange(channel, controller, value int) error {
	if err := checkRange("controller", controller, 0, 127); err != nil {
		return err
	}
	if err := checkRange("value", value, 0, 127); err != nil {
		return err
	}
	if h := e.midiHooks(); h.ControlChange != nil {
		h.ControlChange(channel, controller, value)
	}
	return nil
}

func (e *Engine) ProgramChange(channel, value int) error {
	if err := checkRange("program", value, 0, 127); err != nil {
		return err
	}
	if h := e.midiHooks(); h.ProgramChange != nil {
		h.ProgramChange(channel, value)
	}
	return nil
}

func (e *Engine) PitchBend(channel, value int) error {
	if err := checkRange("bend", value, -8192, 8191); err != nil {
		return err
	}
	if h := e.midiHooks(); h.PitchBend != nil {
		h.PitchBend(channel, value)
	}
	return nil
}

func (e *Engine) AfterTouch(channel, value int) error {
	if err := checkRange("pressure", value, 0, 127); err != nil {
		return err
	}
	if h := e.midiHooks(); h.AfterTouch != nil {
		h.AfterTouch(channel, value)
	}
	return nil
}

func (e *Engine) PolyAfterTouch(channel, pitch, value int) error {
	if err := checkRange("pitch", pitch, 0, 127); err != nil {
		return err
	}
	if err := checkRange("pressure", value, 0, 127); err != nil {
		return err
	}
	if h := e.midiHooks(); h.PolyAfterTouch != nil {
		h.PolyAfterTouch(channel, pitch, value)
	}
	return nil
}

func (e *Engine) MidiByte(port, b int) error {
	if err := checkRange("byte", b, 0, 255); err != nil {
		return err
	}
	if h := e.midiHooks(); h.MidiByte != nil {
		h.MidiByte(port, b)
	}
	return nil
}

func (e *Engine) Sysex(port, b int) error {
	return checkRange("byte", b, 0, 127)
}

func (e *Engine) SysRealtime(port, b int) error {
	return checkRange("byte", b, 0, 255)
}

// --------------------------------------------------------------------------------

func (e *Engine) SetHooks(h engine.Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = h
}

func (e *Engine) Verbose() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.verbose
}

func (e *Engine) SetVerbose(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verbose = v
}

func (e *Engine) NumInstances() int { return 1 }

func (e *Engine) Version() string { return "0.55.2" }

func (e *Engine) StartGUI(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if path == "" {
		return fmt.Errorf("%w: empty pd path", engine.ErrGUI)
	}
	e.guiRunning = true
	return nil
}

func (e *Engine) StopGUI() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guiRunning = false
}

func (e *Engine) PollGUI() int {
	return 0
}
