package audioapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
)

var (
	ErrNoDefaultDevice = errors.New("no default device available")
	ErrNoDeviceWithID  = errors.New("no device with specified ID")
	ErrNoDeviceNamed   = errors.New("no device matching name")
)

type AudioIODevice struct {
	// The ID of the device
	//
	// Comes from the underlying API, printable and canonical within one API.
	// It is this value that identifies the device when asking the API to open it.
	ID string

	// A human-readable name for the device, if one exists.
	// Not necessary, and not canonical.
	Name string

	IsDefault bool
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ID:        %s\n", device.ID)
	fmt.Fprintf(&sb, "Name:      %s\n", device.Name)
	fmt.Fprintf(&sb, "IsDefault: %t\n", device.IsDefault)
	return sb.String()
}

// Define an API to interface with hardware devices.
// Intended to be an abstract way to:
// - Query the playback devices on this machine
// - Open one of them as a PlaybackDevice
type AudioIODeviceAPI interface {
	OutputDevices() ([]AudioIODevice, error)
	InitOutputDeviceFromID(AudioIODevice) (audiodevice.PlaybackDevice, error)
	InitDefaultOutputDevice() (audiodevice.PlaybackDevice, error)
}

// Open the first output device whose name contains name, ignoring case.
// An empty name opens the default device.
func InitOutputDeviceByName(api AudioIODeviceAPI, name string) (audiodevice.PlaybackDevice, error) {
	if name == "" {
		return api.InitDefaultOutputDevice()
	}

	devices, err := api.OutputDevices()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(name)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return api.InitOutputDeviceFromID(d)
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoDeviceNamed, name)
}
