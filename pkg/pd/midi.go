package pd

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Forward a MIDI message to the engine's MIDI inputs on port 0.
//
// Channel voice messages go to the matching engine call. Note off is sent as
// note on with velocity zero. SysEx is fed byte by byte, and a single
// realtime byte goes to SysRealtime.
func (p *PD) SendMIDI(msg gomidi.Message) error {
	var channel, key, velocity, controller, value, program, pressure uint8
	var relative int16
	var absolute uint16
	var sysex []byte

	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		return p.engine.NoteOn(int(channel), int(key), int(velocity))
	case msg.GetNoteOff(&channel, &key, &velocity):
		return p.engine.NoteOn(int(channel), int(key), 0)
	case msg.GetControlChange(&channel, &controller, &value):
		return p.engine.ControlChange(int(channel), int(controller), int(value))
	case msg.GetProgramChange(&channel, &program):
		return p.engine.ProgramChange(int(channel), int(program))
	case msg.GetPitchBend(&channel, &relative, &absolute):
		return p.engine.PitchBend(int(channel), int(relative))
	case msg.GetAfterTouch(&channel, &pressure):
		return p.engine.AfterTouch(int(channel), int(pressure))
	case msg.GetPolyAfterTouch(&channel, &key, &pressure):
		return p.engine.PolyAfterTouch(int(channel), int(key), int(pressure))
	case msg.GetSysEx(&sysex):
		for _, b := range sysex {
			if err := p.engine.Sysex(0, int(b)); err != nil {
				return err
			}
		}
		return nil
	}

	raw := msg.Bytes()
	if len(raw) == 1 && raw[0] >= 0xF8 {
		return p.engine.SysRealtime(0, int(raw[0]))
	}
	return fmt.Errorf("unsupported midi message %s", msg)
}

// Deliver every MIDI message the engine emits to fn as a MIDI message.
// Engine channels above 15 address further ports and are folded onto 0-15.
// A nil fn clears the MIDI slots.
func (p *PD) SetMIDIHandler(fn func(msg gomidi.Message)) {
	if fn == nil {
		p.bridge.SetNoteOn(nil)
		p.bridge.SetControlChange(nil)
		p.bridge.SetProgramChange(nil)
		p.bridge.SetPitchBend(nil)
		p.bridge.SetAfterTouch(nil)
		p.bridge.SetPolyAfterTouch(nil)
		p.installHooks()
		return
	}

	p.bridge.SetNoteOn(func(channel, pitch, velocity int) {
		fn(gomidi.NoteOn(midiChannel(channel), uint8(pitch), uint8(velocity)))
	})
	p.bridge.SetControlChange(func(channel, controller, value int) {
		fn(gomidi.ControlChange(midiChannel(channel), uint8(controller), uint8(value)))
	})
	p.bridge.SetProgramChange(func(channel, value int) {
		fn(gomidi.ProgramChange(midiChannel(channel), uint8(value)))
	})
	p.bridge.SetPitchBend(func(channel, value int) {
		fn(gomidi.Pitchbend(midiChannel(channel), int16(value)))
	})
	p.bridge.SetAfterTouch(func(channel, value int) {
		fn(gomidi.AfterTouch(midiChannel(channel), uint8(value)))
	})
	p.bridge.SetPolyAfterTouch(func(channel, pitch, value int) {
		fn(gomidi.PolyAfterTouch(midiChannel(channel), uint8(pitch), uint8(value)))
	})
	p.installHooks()
}

func midiChannel(channel int) uint8 {
	return uint8(channel & 0x0F)
}
