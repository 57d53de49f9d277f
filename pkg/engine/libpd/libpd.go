//go:build libpd

package libpd

/*
#cgo CFLAGS: -DPD -I/usr/local/include/libpd
#cgo LDFLAGS: -lpd -lm

#include <stdlib.h>
#include "z_libpd.h"
#include "m_pd.h"
*/
import "C"

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
	"github.com/google/uuid"
)

func Available() bool {
	return true
}

type patch struct {
	handle unsafe.Pointer
	id     int
}

func (p *patch) ID() int { return p.id }

type binding struct {
	handle unsafe.Pointer
	recv   string
}

func (b *binding) Receiver() string { return b.recv }

// Engine drives the process-wide libpd instance.
type Engine struct {
	logger *slog.Logger
	uuid   uuid.UUID

	mu       sync.Mutex
	patches  map[*patch]struct{}
	bindings map[*binding]struct{}

	// Read on the audio thread to bounds check process buffers.
	inChannels  atomic.Int32
	outChannels atomic.Int32
}

var (
	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool
)

func New() (engine.Engine, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"libpd engine uuid", uuid,
	)
	e := &Engine{
		logger:   logger,
		uuid:     uuid,
		patches:  make(map[*patch]struct{}),
		bindings: make(map[*binding]struct{}),
	}
	return e, nil
}

func (e *Engine) ExportProcess() engine.Capability {
	return engine.NewCapability(e.BlockSize(), e.ProcessFloat)
}

// --------------------------------------------------------------------------------
// Setup

// libpd can only be initialized once per process; later calls are no-ops.
func (e *Engine) Init() error {
	initOnce.Do(func() {
		if C.libpd_init() != 0 {
			initErr = engine.ErrInitFailed
			return
		}
		installHooks()
		installFloatHook(current.Load())
		initialized.Store(true)
	})
	if initErr != nil {
		e.logger.Error("libpd initialization failed")
		return initErr
	}
	e.logger.Debug("libpd initialized", "version", e.Version())
	return nil
}

// Close every patch and binding made through this Engine and drop the hooks.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.SetHooks(engine.Hooks{})
	for b := range e.bindings {
		C.libpd_unbind(b.handle)
	}
	clear(e.bindings)
	for p := range e.patches {
		C.libpd_closefile(p.handle)
	}
	clear(e.patches)
	e.logger.Debug("libpd engine released")
}

func (e *Engine) BlockSize() int {
	return int(C.libpd_blocksize())
}

func (e *Engine) InitAudio(inChannels, outChannels, sampleRate int) error {
	if inChannels < 0 || outChannels < 0 || sampleRate <= 0 {
		return fmt.Errorf("%w: %d in, %d out, %d Hz", engine.ErrInvalidArgument, inChannels, outChannels, sampleRate)
	}
	if C.libpd_init_audio(C.int(inChannels), C.int(outChannels), C.int(sampleRate)) != 0 {
		return fmt.Errorf("%w: audio setup rejected", engine.ErrInitFailed)
	}
	e.inChannels.Store(int32(inChannels))
	e.outChannels.Store(int32(outChannels))
	return nil
}

func (e *Engine) ComputeAudio(on bool) error {
	dsp := C.float(0)
	if on {
		dsp = 1
	}
	if C.libpd_start_message(1) != 0 {
		return engine.ErrMessageTooLong
	}
	C.libpd_add_float(dsp)
	return e.finish(func(recv *C.char) C.int {
		return C.libpd_finish_message(recv, cstr("dsp"))
	}, "pd")
}

// --------------------------------------------------------------------------------
// Processing. These run on the audio thread: no allocation, no locks.

// The address of the first sample, or nil for an empty buffer.
func first[T any](s []T) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(&s[0])
}

func (e *Engine) checkBuffers(ticks, inLen, outLen int) error {
	samples := ticks * int(C.libpd_blocksize())
	if ticks < 0 || inLen < samples*int(e.inChannels.Load()) || outLen < samples*int(e.outChannels.Load()) {
		return engine.ErrInvalidArgument
	}
	return nil
}

func (e *Engine) ProcessFloat(ticks int, in, out []float32) error {
	if err := e.checkBuffers(ticks, len(in), len(out)); err != nil {
		return err
	}
	if C.libpd_process_float(C.int(ticks), (*C.float)(first(in)), (*C.float)(first(out))) != 0 {
		return engine.ErrProcessFailed
	}
	return nil
}

func (e *Engine) ProcessShort(ticks int, in, out []int16) error {
	if err := e.checkBuffers(ticks, len(in), len(out)); err != nil {
		return err
	}
	if C.libpd_process_short(C.int(ticks), (*C.short)(first(in)), (*C.short)(first(out))) != 0 {
		return engine.ErrProcessFailed
	}
	return nil
}

func (e *Engine) ProcessDouble(ticks int, in, out []float64) error {
	if err := e.checkBuffers(ticks, len(in), len(out)); err != nil {
		return err
	}
	if C.libpd_process_double(C.int(ticks), (*C.double)(first(in)), (*C.double)(first(out))) != 0 {
		return engine.ErrProcessFailed
	}
	return nil
}

func (e *Engine) ProcessRaw(in, out []float32) error {
	if err := e.checkBuffers(1, len(in), len(out)); err != nil {
		return err
	}
	if C.libpd_process_raw((*C.float)(first(in)), (*C.float)(first(out))) != 0 {
		return engine.ErrProcessFailed
	}
	return nil
}

// --------------------------------------------------------------------------------
// Patches

func (e *Engine) OpenPatch(name, dir string) (engine.Patch, error) {
	cname, cdir := C.CString(name), C.CString(dir)
	defer C.free(unsafe.Pointer(cname))
	defer C.free(unsafe.Pointer(cdir))

	handle := C.libpd_openfile(cname, cdir)
	if handle == nil {
		return nil, fmt.Errorf("%w: %s in %s", engine.ErrOpenFailed, name, dir)
	}
	p := &patch{handle: handle, id: int(C.libpd_getdollarzero(handle))}

	e.mu.Lock()
	e.patches[p] = struct{}{}
	e.mu.Unlock()

	e.logger.Debug("opened patch", "name", name, "dir", dir, "id", p.id)
	return p, nil
}

func (e *Engine) ClosePatch(pp engine.Patch) {
	p, ok := pp.(*patch)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, open := e.patches[p]; !open {
		return
	}
	C.libpd_closefile(p.handle)
	delete(e.patches, p)
}

func (e *Engine) ClearSearchPath() {
	C.libpd_clear_search_path()
}

func (e *Engine) AddToSearchPath(dir string) {
	cdir := C.CString(dir)
	defer C.free(unsafe.Pointer(cdir))
	C.libpd_add_to_search_path(cdir)
}

// --------------------------------------------------------------------------------
// Messaging

// Interned C strings for the handful of constant selectors.
var (
	cstrMu sync.Mutex
	cstrs  = make(map[string]*C.char)
)

func cstr(s string) *C.char {
	cstrMu.Lock()
	defer cstrMu.Unlock()
	if c, ok := cstrs[s]; ok {
		return c
	}
	c := C.CString(s)
	cstrs[s] = c
	return c
}

// Run a libpd send against recv, mapping a nonzero result to ErrNoReceiver.
func (e *Engine) finish(send func(recv *C.char) C.int, recv string) error {
	crecv := C.CString(recv)
	defer C.free(unsafe.Pointer(crecv))
	if send(crecv) != 0 {
		return fmt.Errorf("%w: %s", engine.ErrNoReceiver, recv)
	}
	return nil
}

func (e *Engine) SendBang(recv string) error {
	return e.finish(func(r *C.char) C.int { return C.libpd_bang(r) }, recv)
}

func (e *Engine) SendFloat(recv string, x float32) error {
	return e.finish(func(r *C.char) C.int { return C.libpd_float(r, C.float(x)) }, recv)
}

func (e *Engine) SendSymbol(recv string, sym string) error {
	csym := C.CString(sym)
	defer C.free(unsafe.Pointer(csym))
	return e.finish(func(r *C.char) C.int { return C.libpd_symbol(r, csym) }, recv)
}

func (e *Engine) addAtoms(atoms []engine.Atom) error {
	if err := e.StartMessage(len(atoms)); err != nil {
		return err
	}
	for _, a := range atoms {
		if a.IsSymbol() {
			e.AddSymbol(a.Symbol)
		} else {
			e.AddFloat(a.Float)
		}
	}
	return nil
}

func (e *Engine) SendList(recv string, atoms []engine.Atom) error {
	if err := e.addAtoms(atoms); err != nil {
		return err
	}
	return e.FinishList(recv)
}

func (e *Engine) SendMessage(recv string, msg string, atoms []engine.Atom) error {
	if err := e.addAtoms(atoms); err != nil {
		return err
	}
	return e.FinishMessage(recv, msg)
}

func (e *Engine) StartMessage(maxLen int) error {
	if maxLen < 0 {
		return fmt.Errorf("%w: message length %d", engine.ErrInvalidArgument, maxLen)
	}
	if C.libpd_start_message(C.int(maxLen)) != 0 {
		return fmt.Errorf("%w: %d atoms", engine.ErrMessageTooLong, maxLen)
	}
	return nil
}

func (e *Engine) AddFloat(x float32) {
	C.libpd_add_float(C.float(x))
}

// libpd interns symbols, so the C copy is only needed for the call.
func (e *Engine) AddSymbol(sym string) {
	csym := C.CString(sym)
	defer C.free(unsafe.Pointer(csym))
	C.libpd_add_symbol(csym)
}

func (e *Engine) FinishList(recv string) error {
	return e.finish(func(r *C.char) C.int { return C.libpd_finish_list(r) }, recv)
}

func (e *Engine) FinishMessage(recv string, msg string) error {
	cmsg := C.CString(msg)
	defer C.free(unsafe.Pointer(cmsg))
	return e.finish(func(r *C.char) C.int { return C.libpd_finish_message(r, cmsg) }, recv)
}

func (e *Engine) Bind(recv string) (engine.Binding, error) {
	if recv == "" {
		return nil, fmt.Errorf("%w: empty receiver name", engine.ErrInvalidArgument)
	}
	crecv := C.CString(recv)
	defer C.free(unsafe.Pointer(crecv))

	handle := C.libpd_bind(crecv)
	if handle == nil {
		return nil, fmt.Errorf("%w: could not bind %s", engine.ErrInitFailed, recv)
	}
	b := &binding{handle: handle, recv: recv}

	e.mu.Lock()
	e.bindings[b] = struct{}{}
	e.mu.Unlock()
	return b, nil
}

func (e *Engine) Unbind(bb engine.Binding) {
	b, ok := bb.(*binding)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, bound := e.bindings[b]; !bound {
		return
	}
	C.libpd_unbind(b.handle)
	delete(e.bindings, b)
}

func (e *Engine) Exists(recv string) bool {
	crecv := C.CString(recv)
	defer C.free(unsafe.Pointer(crecv))
	return C.libpd_exists(crecv) != 0
}

// --------------------------------------------------------------------------------
// Arrays

func arrayError(code C.int, name string, offset, n int) error {
	switch code {
	case 0:
		return nil
	case -1:
		return fmt.Errorf("%w: %s", engine.ErrNoArray, name)
	default:
		return fmt.Errorf("%w: %s[%d:%d]", engine.ErrArrayRange, name, offset, offset+n)
	}
}

func (e *Engine) ArraySize(name string) (int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	size := int(C.libpd_arraysize(cname))
	if size < 0 {
		return size, fmt.Errorf("%w: %s", engine.ErrNoArray, name)
	}
	return size, nil
}

func (e *Engine) ResizeArray(name string, size int) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if C.libpd_resize_array(cname, C.long(size)) != 0 {
		return fmt.Errorf("%w: %s", engine.ErrNoArray, name)
	}
	return nil
}

func (e *Engine) ReadArray(dst []float32, name string, offset int) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	code := C.libpd_read_array((*C.float)(first(dst)), cname, C.int(offset), C.int(len(dst)))
	return arrayError(code, name, offset, len(dst))
}

func (e *Engine) WriteArray(name string, offset int, src []float32) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	code := C.libpd_write_array(cname, C.int(offset), (*C.float)(first(src)), C.int(len(src)))
	return arrayError(code, name, offset, len(src))
}

// --------------------------------------------------------------------------------
// MIDI

func midiResult(code C.int, what string) error {
	if code != 0 {
		return fmt.Errorf("%w: %s out of range", engine.ErrInvalidArgument, what)
	}
	return nil
}

func (e *Engine) NoteOn(channel, pitch, velocity int) error {
	return midiResult(C.libpd_noteon(C.int(channel), C.int(pitch), C.int(velocity)), "noteon")
}

func (e *Engine) ControlChange(channel, controller, value int) error {
	return midiResult(C.libpd_controlchange(C.int(channel), C.int(controller), C.int(value)), "controlchange")
}

func (e *Engine) ProgramChange(channel, value int) error {
	return midiResult(C.libpd_programchange(C.int(channel), C.int(value)), "programchange")
}

func (e *Engine) PitchBend(channel, value int) error {
	return midiResult(C.libpd_pitchbend(C.int(channel), C.int(value)), "pitchbend")
}

func (e *Engine) AfterTouch(channel, value int) error {
	return midiResult(C.libpd_aftertouch(C.int(channel), C.int(value)), "aftertouch")
}

func (e *Engine) PolyAfterTouch(channel, pitch, value int) error {
	return midiResult(C.libpd_polyaftertouch(C.int(channel), C.int(pitch), C.int(value)), "polyaftertouch")
}

func (e *Engine) MidiByte(port, b int) error {
	return midiResult(C.libpd_midibyte(C.int(port), C.int(b)), "midibyte")
}

func (e *Engine) Sysex(port, b int) error {
	return midiResult(C.libpd_sysex(C.int(port), C.int(b)), "sysex")
}

func (e *Engine) SysRealtime(port, b int) error {
	return midiResult(C.libpd_sysrealtime(C.int(port), C.int(b)), "sysrealtime")
}

// --------------------------------------------------------------------------------
// Misc

func (e *Engine) SetHooks(h engine.Hooks) {
	current.Store(&h)
	if initialized.Load() {
		installFloatHook(&h)
	}
}

func (e *Engine) Verbose() bool {
	return C.libpd_get_verbose() != 0
}

func (e *Engine) SetVerbose(v bool) {
	flag := C.int(0)
	if v {
		flag = 1
	}
	C.libpd_set_verbose(flag)
}

func (e *Engine) NumInstances() int {
	return int(C.libpd_num_instances())
}

func (e *Engine) Version() string {
	var major, minor, bugfix C.int
	C.sys_getversion(&major, &minor, &bugfix)
	return fmt.Sprintf("%d.%d.%d", major, minor, bugfix)
}

func (e *Engine) StartGUI(path string) error {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	if C.libpd_start_gui(cpath) != 0 {
		return fmt.Errorf("%w: could not start gui from %s", engine.ErrGUI, path)
	}
	return nil
}

func (e *Engine) StopGUI() {
	C.libpd_stop_gui()
}

func (e *Engine) PollGUI() int {
	return int(C.libpd_poll_gui())
}
