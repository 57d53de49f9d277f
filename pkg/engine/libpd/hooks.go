//go:build libpd

package libpd

/*
#include <string.h>
#include "z_libpd.h"

extern void goPrintHook(char *s);
extern void goBangHook(char *recv);
extern void goFloatHook(char *recv, float x);
extern void goDoubleHook(char *recv, double x);
extern void goSymbolHook(char *recv, char *sym);
extern void goListHook(char *recv, int argc, t_atom *argv);
extern void goMessageHook(char *recv, char *msg, int argc, t_atom *argv);

extern void goNoteOnHook(int channel, int pitch, int velocity);
extern void goControlChangeHook(int channel, int controller, int value);
extern void goProgramChangeHook(int channel, int value);
extern void goPitchBendHook(int channel, int value);
extern void goAfterTouchHook(int channel, int value);
extern void goPolyAfterTouchHook(int channel, int pitch, int value);
extern void goMidiByteHook(int port, int byte);
*/
import "C"

import (
	"sync/atomic"
	"unsafe"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

// The table every trampoline reads. Installed with Engine.SetHooks.
var current atomic.Pointer[engine.Hooks]

func init() {
	current.Store(&engine.Hooks{})
}

// Point every libpd hook at its trampoline once. The trampolines look up the
// current table on each call, so replacing hooks never touches libpd.
func installHooks() {
	C.libpd_set_printhook(C.t_libpd_printhook(unsafe.Pointer(C.goPrintHook)))
	C.libpd_set_banghook(C.t_libpd_banghook(unsafe.Pointer(C.goBangHook)))
	C.libpd_set_floathook(C.t_libpd_floathook(unsafe.Pointer(C.goFloatHook)))
	C.libpd_set_symbolhook(C.t_libpd_symbolhook(unsafe.Pointer(C.goSymbolHook)))
	C.libpd_set_listhook(C.t_libpd_listhook(unsafe.Pointer(C.goListHook)))
	C.libpd_set_messagehook(C.t_libpd_messagehook(unsafe.Pointer(C.goMessageHook)))

	C.libpd_set_noteonhook(C.t_libpd_noteonhook(unsafe.Pointer(C.goNoteOnHook)))
	C.libpd_set_controlchangehook(C.t_libpd_controlchangehook(unsafe.Pointer(C.goControlChangeHook)))
	C.libpd_set_programchangehook(C.t_libpd_programchangehook(unsafe.Pointer(C.goProgramChangeHook)))
	C.libpd_set_pitchbendhook(C.t_libpd_pitchbendhook(unsafe.Pointer(C.goPitchBendHook)))
	C.libpd_set_aftertouchhook(C.t_libpd_aftertouchhook(unsafe.Pointer(C.goAfterTouchHook)))
	C.libpd_set_polyaftertouchhook(C.t_libpd_polyaftertouchhook(unsafe.Pointer(C.goPolyAfterTouchHook)))
	C.libpd_set_midibytehook(C.t_libpd_midibytehook(unsafe.Pointer(C.goMidiByteHook)))
}

// libpd keeps one float hook slot, shared with the double hook. Double wins.
func installFloatHook(h *engine.Hooks) {
	if h.Double != nil {
		C.libpd_set_doublehook(C.t_libpd_doublehook(unsafe.Pointer(C.goDoubleHook)))
		return
	}
	C.libpd_set_floathook(C.t_libpd_floathook(unsafe.Pointer(C.goFloatHook)))
}

// Atoms decoded for Borrowed hooks. libpd runs on one thread at a time, so
// the thread driving it owns this.
var scratchAtoms = make([]engine.Atom, 0, 64)

// A view of a C string when the hooks borrow, a copy otherwise.
func goString(h *engine.Hooks, s *C.char) string {
	if s == nil {
		return ""
	}
	if h.Borrowed {
		return unsafe.String((*byte)(unsafe.Pointer(s)), int(C.strlen(s)))
	}
	return C.GoString(s)
}

func toAtoms(h *engine.Hooks, argc C.int, argv *C.t_atom) []engine.Atom {
	var atoms []engine.Atom
	if h.Borrowed {
		atoms = scratchAtoms[:0]
	} else {
		atoms = make([]engine.Atom, 0, int(argc))
	}
	a := argv
	for range int(argc) {
		switch {
		case C.libpd_is_float(a) != 0:
			atoms = append(atoms, engine.Float(float32(C.libpd_get_float(a))))
		case C.libpd_is_symbol(a) != 0:
			atoms = append(atoms, engine.Symbol(goString(h, C.libpd_get_symbol(a))))
		}
		a = C.libpd_next_atom(a)
	}
	if h.Borrowed {
		// Keep any growth for the next event.
		scratchAtoms = atoms[:0]
	}
	return atoms
}

// With Borrowed hooks the strings and atoms below are views of libpd memory
// and scratchAtoms, valid only until the trampoline returns.

//export goPrintHook
func goPrintHook(s *C.char) {
	if h := current.Load(); h.Print != nil {
		h.Print(goString(h, s))
	}
}

//export goBangHook
func goBangHook(recv *C.char) {
	if h := current.Load(); h.Bang != nil {
		h.Bang(goString(h, recv))
	}
}

//export goFloatHook
func goFloatHook(recv *C.char, x C.float) {
	if h := current.Load(); h.Float != nil {
		h.Float(goString(h, recv), float32(x))
	}
}

//export goDoubleHook
func goDoubleHook(recv *C.char, x C.double) {
	if h := current.Load(); h.Double != nil {
		h.Double(goString(h, recv), float64(x))
	}
}

//export goSymbolHook
func goSymbolHook(recv *C.char, sym *C.char) {
	if h := current.Load(); h.Symbol != nil {
		h.Symbol(goString(h, recv), goString(h, sym))
	}
}

//export goListHook
func goListHook(recv *C.char, argc C.int, argv *C.t_atom) {
	if h := current.Load(); h.List != nil {
		h.List(goString(h, recv), toAtoms(h, argc, argv))
	}
}

//export goMessageHook
func goMessageHook(recv *C.char, msg *C.char, argc C.int, argv *C.t_atom) {
	if h := current.Load(); h.Message != nil {
		h.Message(goString(h, recv), goString(h, msg), toAtoms(h, argc, argv))
	}
}

//export goNoteOnHook
func goNoteOnHook(channel, pitch, velocity C.int) {
	if h := current.Load(); h.NoteOn != nil {
		h.NoteOn(int(channel), int(pitch), int(velocity))
	}
}

//export goControlChangeHook
func goControlChangeHook(channel, controller, value C.int) {
	if h := current.Load(); h.ControlChange != nil {
		h.ControlChange(int(channel), int(controller), int(value))
	}
}

//export goProgramChangeHook
func goProgramChangeHook(channel, value C.int) {
	if h := current.Load(); h.ProgramChange != nil {
		h.ProgramChange(int(channel), int(value))
	}
}

//export goPitchBendHook
func goPitchBendHook(channel, value C.int) {
	if h := current.Load(); h.PitchBend != nil {
		h.PitchBend(int(channel), int(value))
	}
}

//export goAfterTouchHook
func goAfterTouchHook(channel, value C.int) {
	if h := current.Load(); h.AfterTouch != nil {
		h.AfterTouch(int(channel), int(value))
	}
}

//export goPolyAfterTouchHook
func goPolyAfterTouchHook(channel, pitch, value C.int) {
	if h := current.Load(); h.PolyAfterTouch != nil {
		h.PolyAfterTouch(int(channel), int(pitch), int(value))
	}
}

//export goMidiByteHook
func goMidiByteHook(port, b C.int) {
	if h := current.Load(); h.MidiByte != nil {
		h.MidiByte(int(port), int(b))
	}
}
