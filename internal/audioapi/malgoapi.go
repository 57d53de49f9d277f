package audioapi

import (
	"fmt"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice/device"
	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
)

// Lists and opens miniaudio playback devices.
//
// The context is only used for enumeration, each opened device creates its own.
type MalgoApi struct {
	logger   *slog.Logger
	backends []malgo.Backend
	context  *malgo.AllocatedContext
}

func NewMalgoApi(backends ...malgo.Backend) (*MalgoApi, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"miniaudio api uuid", uuid,
	)

	context, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		logger.Error("failed to create miniaudio context", "err", err)
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	return &MalgoApi{
		logger:   logger,
		backends: backends,
		context:  context,
	}, nil
}

func (api *MalgoApi) playbackDevices() ([]malgo.DeviceInfo, error) {
	infos, err := api.context.Devices(malgo.Playback)
	if err != nil {
		api.logger.Error("failed to list playback devices", "err", err)
		return nil, err
	}
	return infos, nil
}

func (api *MalgoApi) OutputDevices() ([]AudioIODevice, error) {
	infos, err := api.playbackDevices()
	if err != nil {
		return nil, err
	}

	outputDevices := make([]AudioIODevice, 0, len(infos))
	for i := range infos {
		outputDevices = append(outputDevices, AudioIODevice{
			ID:        infos[i].ID.String(),
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault != 0,
		})
	}
	return outputDevices, nil
}

func (api *MalgoApi) InitOutputDeviceFromID(id AudioIODevice) (audiodevice.PlaybackDevice, error) {
	infos, err := api.playbackDevices()
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].ID.String() == id.ID {
			api.logger.Debug("selected playback device", "name", infos[i].Name())
			return device.NewMalgoDeviceWithID(infos[i].ID, api.backends...), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDeviceWithID, id.ID)
}

func (api *MalgoApi) InitDefaultOutputDevice() (audiodevice.PlaybackDevice, error) {
	return device.NewMalgoDevice(api.backends...), nil
}

func (api *MalgoApi) Close() {
	if err := api.context.Uninit(); err != nil {
		api.logger.Warn("error releasing miniaudio context", "err", err)
	}
	api.context.Free()
}
