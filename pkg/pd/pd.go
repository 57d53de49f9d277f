package pd

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/internal/bridge"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/internal/registry"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
	"github.com/google/uuid"
)

type Options struct {
	// Deliver engine callbacks through ReceiveMessages / ReceiveMIDI instead
	// of on the engine thread.
	Queued          bool
	MessageRingSize int
	MIDIRingSize    int
}

// PD owns one engine and everything the host hangs off it.
type PD struct {
	logger *slog.Logger
	uuid   uuid.UUID

	engine engine.Engine
	bridge *bridge.Bridge

	// Guards the check-then-act sequences on the tables below.
	mu            sync.Mutex
	patches       *registry.Registry[int, engine.Patch]
	subscriptions *registry.Registry[string, engine.Binding]
	audio         []*Audio

	releaseOnce sync.Once
}

func New(e engine.Engine, opts Options) (*PD, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"pd uuid", uuid,
	)

	if err := e.Init(); err != nil {
		logger.Error("could not initialize engine", "err", err)
		return nil, err
	}

	mode := bridge.Direct
	if opts.Queued {
		mode = bridge.Queued
	}
	p := &PD{
		logger: logger,
		uuid:   uuid,
		engine: e,
		bridge: bridge.New(bridge.Options{
			Mode:            mode,
			MessageRingSize: opts.MessageRingSize,
			MIDIRingSize:    opts.MIDIRingSize,
			Logger:          logger,
		}),
		patches:       registry.New[int, engine.Patch](),
		subscriptions: registry.New[string, engine.Binding](),
	}
	p.installHooks()

	logger.Debug("engine ready", "version", e.Version(), "blockSize", e.BlockSize(), "mode", mode)
	return p, nil
}

func (p *PD) Engine() engine.Engine {
	return p.engine
}

// An Audio lifecycle driving device from this engine. Release terminates it.
func (p *PD) NewAudio(device audiodevice.PlaybackDevice) *Audio {
	a := NewAudio(p.engine, device)
	p.mu.Lock()
	p.audio = append(p.audio, a)
	p.mu.Unlock()
	return a
}

// Terminate a and forget it.
func (p *PD) dropAudio(a *Audio) {
	a.Terminate()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = slices.DeleteFunc(p.audio, func(other *Audio) bool { return other == a })
}

func (p *PD) audioRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.audio {
		if a.IsRunning() {
			return true
		}
	}
	return false
}

// Close every patch, drop every subscription and handler, and release the engine.
func (p *PD) Release() {
	p.releaseOnce.Do(func() {
		p.mu.Lock()
		audio := p.audio
		p.audio = nil
		p.mu.Unlock()
		for _, a := range audio {
			a.Terminate()
		}

		for _, b := range p.subscriptions.Drain() {
			p.engine.Unbind(b)
		}
		for _, patch := range p.patches.Drain() {
			p.engine.ClosePatch(patch)
		}
		p.bridge.ClearAll()
		p.bridge.Reset()
		p.engine.SetHooks(engine.Hooks{})
		p.engine.Release()
		p.logger.Debug("released", "droppedEvents", p.bridge.Dropped())
	})
}

// --------------------------------------------------------------------------------
// Setup

func (p *PD) BlockSize() int {
	return p.engine.BlockSize()
}

func (p *PD) InitAudio(inChannels, outChannels, sampleRate int) error {
	return p.engine.InitAudio(inChannels, outChannels, sampleRate)
}

// Switch DSP on or off in the engine.
func (p *PD) ComputeAudio(on bool) error {
	return p.engine.ComputeAudio(on)
}

// --------------------------------------------------------------------------------
// Processing
//
// For hosts that run their own audio callback instead of an Audio. Buffers hold
// ticks*BlockSize() interleaved frames. Not to be mixed with a running Audio.

func (p *PD) ProcessFloat(ticks int, in, out []float32) error {
	return p.engine.ProcessFloat(ticks, in, out)
}

func (p *PD) ProcessShort(ticks int, in, out []int16) error {
	return p.engine.ProcessShort(ticks, in, out)
}

func (p *PD) ProcessDouble(ticks int, in, out []float64) error {
	return p.engine.ProcessDouble(ticks, in, out)
}

// One tick of non-interleaved samples, channel after channel.
func (p *PD) ProcessRaw(in, out []float32) error {
	return p.engine.ProcessRaw(in, out)
}

// --------------------------------------------------------------------------------
// Search path

func (p *PD) AddToSearchPath(dir string) {
	p.engine.AddToSearchPath(dir)
}

func (p *PD) ClearSearchPath() {
	p.engine.ClearSearchPath()
}

// --------------------------------------------------------------------------------
// Patches

// Open a patch and return its $0 id, the handle for ClosePatch.
func (p *PD) OpenPatch(name, dir string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	patch, err := p.engine.OpenPatch(name, dir)
	if err != nil {
		p.logger.Error("could not open patch", "name", name, "dir", dir, "err", err)
		return 0, err
	}
	if err := p.patches.Add(patch.ID(), patch); err != nil {
		// $0 collided with a patch still open: the engine's counter wrapped.
		p.engine.ClosePatch(patch)
		return 0, fmt.Errorf("patch id %d: %w", patch.ID(), err)
	}
	p.logger.Debug("opened patch", "name", name, "id", patch.ID())
	return patch.ID(), nil
}

func (p *PD) ClosePatch(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	patch, err := p.patches.Remove(id)
	if err != nil {
		return fmt.Errorf("%w %d: %w", ErrUnknownPatch, id, err)
	}
	p.engine.ClosePatch(patch)
	p.logger.Debug("closed patch", "id", id)
	return nil
}

// Ids of every open patch.
func (p *PD) Patches() []int {
	return p.patches.Keys()
}

// --------------------------------------------------------------------------------
// Sending

func (p *PD) SendBang(recv string) error {
	return p.engine.SendBang(recv)
}

func (p *PD) SendFloat(recv string, x float32) error {
	return p.engine.SendFloat(recv, x)
}

func (p *PD) SendSymbol(recv string, sym string) error {
	return p.engine.SendSymbol(recv, sym)
}

// Send a list of mixed arguments. See engine.ToAtoms for accepted types.
func (p *PD) SendList(recv string, args ...any) error {
	atoms, err := engine.ToAtoms(args...)
	if err != nil {
		return err
	}
	return p.engine.SendList(recv, atoms)
}

// Send a typed message, e.g. SendMessage("pd", "dsp", 1).
func (p *PD) SendMessage(recv string, msg string, args ...any) error {
	atoms, err := engine.ToAtoms(args...)
	if err != nil {
		return err
	}
	return p.engine.SendMessage(recv, msg, atoms)
}

func (p *PD) StartMessage(maxLen int) error {
	return p.engine.StartMessage(maxLen)
}

func (p *PD) AddFloat(x float32) {
	p.engine.AddFloat(x)
}

func (p *PD) AddSymbol(sym string) {
	p.engine.AddSymbol(sym)
}

func (p *PD) FinishList(recv string) error {
	return p.engine.FinishList(recv)
}

func (p *PD) FinishMessage(recv string, msg string) error {
	return p.engine.FinishMessage(recv, msg)
}

// --------------------------------------------------------------------------------
// Receiving

// Route messages sent to recv to the registered handlers.
// Subscribing to a name that is already subscribed keeps the existing binding.
func (p *PD) Subscribe(recv string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subscriptions.Get(recv); ok {
		return nil
	}
	b, err := p.engine.Bind(recv)
	if err != nil {
		return err
	}
	if err := p.subscriptions.Add(recv, b); err != nil {
		p.engine.Unbind(b)
		return err
	}
	return nil
}

// Release the binding made by Subscribe.
func (p *PD) Unsubscribe(recv string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := p.subscriptions.Remove(recv)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrNotSubscribed, recv, err)
	}
	p.engine.Unbind(b)
	return nil
}

func (p *PD) Subscribed(recv string) bool {
	_, ok := p.subscriptions.Get(recv)
	return ok
}

// Does any object in the engine listen on recv?
func (p *PD) Exists(recv string) bool {
	return p.engine.Exists(recv)
}

// --------------------------------------------------------------------------------
// Arrays

func (p *PD) ArraySize(name string) (int, error) {
	return p.engine.ArraySize(name)
}

func (p *PD) ResizeArray(name string, size int) error {
	return p.engine.ResizeArray(name, size)
}

// Read len(dst) values starting at offset.
func (p *PD) ReadArray(dst []float32, name string, offset int) error {
	return p.engine.ReadArray(dst, name, offset)
}

func (p *PD) WriteArray(name string, offset int, src []float32) error {
	return p.engine.WriteArray(name, offset, src)
}

// --------------------------------------------------------------------------------
// MIDI out of the host, into the engine

func (p *PD) NoteOn(channel, pitch, velocity int) error {
	return p.engine.NoteOn(channel, pitch, velocity)
}

func (p *PD) ControlChange(channel, controller, value int) error {
	return p.engine.ControlChange(channel, controller, value)
}

func (p *PD) ProgramChange(channel, value int) error {
	return p.engine.ProgramChange(channel, value)
}

func (p *PD) PitchBend(channel, value int) error {
	return p.engine.PitchBend(channel, value)
}

func (p *PD) AfterTouch(channel, value int) error {
	return p.engine.AfterTouch(channel, value)
}

func (p *PD) PolyAfterTouch(channel, pitch, value int) error {
	return p.engine.PolyAfterTouch(channel, pitch, value)
}

func (p *PD) MidiByte(port, b int) error {
	return p.engine.MidiByte(port, b)
}

func (p *PD) Sysex(port, b int) error {
	return p.engine.Sysex(port, b)
}

func (p *PD) SysRealtime(port, b int) error {
	return p.engine.SysRealtime(port, b)
}

// --------------------------------------------------------------------------------
// Callbacks. Register while audio is stopped; a nil handler clears the slot.

// Push the bridge's current table into the engine.
func (p *PD) installHooks() {
	if p.audioRunning() {
		p.logger.Warn("replacing engine callbacks while audio is running")
	}
	p.engine.SetHooks(p.bridge.Hooks())
}

func (p *PD) SetPrintHandler(fn func(s string)) {
	p.bridge.SetPrint(fn)
	p.installHooks()
}

func (p *PD) SetBangHandler(fn func(recv string)) {
	p.bridge.SetBang(fn)
	p.installHooks()
}

// Clears the double handler.
func (p *PD) SetFloatHandler(fn func(recv string, x float32)) {
	p.bridge.SetFloat(fn)
	p.installHooks()
}

// Clears the float handler.
func (p *PD) SetDoubleHandler(fn func(recv string, x float64)) {
	p.bridge.SetDouble(fn)
	p.installHooks()
}

func (p *PD) SetSymbolHandler(fn func(recv string, sym string)) {
	p.bridge.SetSymbol(fn)
	p.installHooks()
}

func (p *PD) SetListHandler(fn func(recv string, atoms []engine.Atom)) {
	p.bridge.SetList(fn)
	p.installHooks()
}

func (p *PD) SetMessageHandler(fn func(recv string, msg string, atoms []engine.Atom)) {
	p.bridge.SetMessage(fn)
	p.installHooks()
}

func (p *PD) SetNoteOnHandler(fn func(channel, pitch, velocity int)) {
	p.bridge.SetNoteOn(fn)
	p.installHooks()
}

func (p *PD) SetControlChangeHandler(fn func(channel, controller, value int)) {
	p.bridge.SetControlChange(fn)
	p.installHooks()
}

func (p *PD) SetProgramChangeHandler(fn func(channel, value int)) {
	p.bridge.SetProgramChange(fn)
	p.installHooks()
}

func (p *PD) SetPitchBendHandler(fn func(channel, value int)) {
	p.bridge.SetPitchBend(fn)
	p.installHooks()
}

func (p *PD) SetAfterTouchHandler(fn func(channel, value int)) {
	p.bridge.SetAfterTouch(fn)
	p.installHooks()
}

func (p *PD) SetPolyAfterTouchHandler(fn func(channel, pitch, value int)) {
	p.bridge.SetPolyAfterTouch(fn)
	p.installHooks()
}

func (p *PD) SetMidiByteHandler(fn func(port, b int)) {
	p.bridge.SetMidiByte(fn)
	p.installHooks()
}

func (p *PD) ClearHandlers() {
	p.bridge.ClearAll()
	p.installHooks()
}

func (p *PD) Queued() bool {
	return p.bridge.Mode() == bridge.Queued
}

// Dispatch queued print and message callbacks on the calling goroutine.
// Returns the number of handlers invoked; always zero in direct mode.
func (p *PD) ReceiveMessages() int {
	return p.bridge.ReceiveMessages()
}

// Dispatch queued MIDI callbacks on the calling goroutine.
func (p *PD) ReceiveMIDI() int {
	return p.bridge.ReceiveMIDI()
}

// Queued callbacks lost to a full queue.
func (p *PD) Dropped() uint64 {
	return p.bridge.Dropped()
}

// --------------------------------------------------------------------------------
// Misc

func (p *PD) Verbose() bool {
	return p.engine.Verbose()
}

func (p *PD) SetVerbose(v bool) {
	p.engine.SetVerbose(v)
}

func (p *PD) NumInstances() int {
	return p.engine.NumInstances()
}

func (p *PD) Version() string {
	return p.engine.Version()
}

// Open the engine's GUI from the pd installation at path.
func (p *PD) StartGUI(path string) error {
	if err := p.engine.StartGUI(path); err != nil {
		return err
	}
	p.logger.Info("gui started", "path", path)
	return nil
}

func (p *PD) StopGUI() {
	p.engine.StopGUI()
}

// Process pending GUI messages. Call regularly while the GUI is open.
func (p *PD) PollGUI() int {
	return p.engine.PollGUI()
}

// Is err a host-side lookup miss rather than an engine failure?
func IsLookupError(err error) bool {
	return errors.Is(err, ErrUnknownPatch) || errors.Is(err, ErrNotSubscribed)
}
