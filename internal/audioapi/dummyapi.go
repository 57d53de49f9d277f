package audioapi

import (
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice/device"
)

// A dummy API that lists exactly one output device, which runs the callback
// in real time and discards the output.
//
// This API is intended for testing, and machines without sound hardware.
type DummyAudioIODeviceAPI struct{}

func NewDummyAudioIODeviceAPI() DummyAudioIODeviceAPI {
	return DummyAudioIODeviceAPI{}
}

func (api DummyAudioIODeviceAPI) OutputDevices() ([]AudioIODevice, error) {
	return []AudioIODevice{
		{
			ID:        "0",
			Name:      "DummyOutput",
			IsDefault: true,
		},
	}, nil
}

func (api DummyAudioIODeviceAPI) InitOutputDeviceFromID(id AudioIODevice) (audiodevice.PlaybackDevice, error) {
	if id.ID != "0" {
		return nil, ErrNoDeviceWithID
	}
	return device.NewDummyDevice(), nil
}

func (api DummyAudioIODeviceAPI) InitDefaultOutputDevice() (audiodevice.PlaybackDevice, error) {
	return device.NewDummyDevice(), nil
}
