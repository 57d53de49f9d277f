package audioapi

import (
	"errors"
	"strings"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
)

// fakeApi lists a fixed set of devices and records which one was opened.
type fakeApi struct {
	devices []AudioIODevice
	opened  string
	listErr error
}

func (api *fakeApi) OutputDevices() ([]AudioIODevice, error) {
	return api.devices, api.listErr
}

func (api *fakeApi) InitOutputDeviceFromID(id AudioIODevice) (audiodevice.PlaybackDevice, error) {
	api.opened = id.ID
	return NewDummyAudioIODeviceAPI().InitDefaultOutputDevice()
}

func (api *fakeApi) InitDefaultOutputDevice() (audiodevice.PlaybackDevice, error) {
	api.opened = "default"
	return NewDummyAudioIODeviceAPI().InitDefaultOutputDevice()
}

func TestInitOutputDeviceByName(t *testing.T) {
	t.Parallel()

	devices := []AudioIODevice{
		{ID: "a1", Name: "Built-in Output", IsDefault: true},
		{ID: "b2", Name: "USB Audio CODEC"},
		{ID: "c3", Name: "HDMI / DisplayPort"},
	}

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr error
	}{
		{"empty name opens default", "", "default", nil},
		{"exact name", "USB Audio CODEC", "b2", nil},
		{"case insensitive substring", "hdmi", "c3", nil},
		{"first match wins", "o", "a1", nil},
		{"no match", "bluetooth", "", ErrNoDeviceNamed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := &fakeApi{devices: devices}
			d, err := InitOutputDeviceByName(api, tt.query)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("InitOutputDeviceByName(%q) error = %v, want %v", tt.query, err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if d == nil {
				t.Fatal("expected a device")
			}
			if api.opened != tt.want {
				t.Errorf("opened %q, want %q", api.opened, tt.want)
			}
		})
	}
}

func TestInitOutputDeviceByNameListError(t *testing.T) {
	t.Parallel()

	listErr := errors.New("backend gone")
	_, err := InitOutputDeviceByName(&fakeApi{listErr: listErr}, "usb")
	if !errors.Is(err, listErr) {
		t.Errorf("expected list error, got %v", err)
	}
}

func TestDummyApi(t *testing.T) {
	t.Parallel()

	api := NewDummyAudioIODeviceAPI()
	devices, err := api.OutputDevices()
	if err != nil || len(devices) != 1 {
		t.Fatalf("OutputDevices() = %v, %v", devices, err)
	}
	if !devices[0].IsDefault {
		t.Errorf("the only device should be the default")
	}

	d, err := api.InitOutputDeviceFromID(devices[0])
	if err != nil {
		t.Fatal(err)
	}
	if d.Name() != "dummy" {
		t.Errorf("Name() = %q", d.Name())
	}

	if _, err := api.InitOutputDeviceFromID(AudioIODevice{ID: "7"}); !errors.Is(err, ErrNoDeviceWithID) {
		t.Errorf("expected ErrNoDeviceWithID, got %v", err)
	}
}

func TestAudioIODeviceString(t *testing.T) {
	t.Parallel()

	s := AudioIODevice{ID: "b2", Name: "USB Audio CODEC"}.String()
	for _, want := range []string{"b2", "USB Audio CODEC", "false"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
