package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/internal/utils"
	"github.com/spf13/viper"
)

var Devices = []string{"miniaudio", "dummy", "file"}

var ErrInvalidConfig = errors.New("invalid config")

// Load the defaults, then the config file over them.
// A missing config file is not an error, the defaults are used.
func LoadConfig(configFilePath string) error {
	utils.SetViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found", "configFilePath", configFilePath)
		} else {
			slog.Error("error during config read", "err", err)
			return err
		}
	}

	return validate()
}

func validate() error {
	if !slices.Contains(Devices, viper.GetString("device")) {
		return fmt.Errorf("%w: device %q is not one of %v", ErrInvalidConfig, viper.GetString("device"), Devices)
	}
	if viper.GetInt("samplerate") <= 0 {
		return fmt.Errorf("%w: samplerate must be positive", ErrInvalidConfig)
	}
	if viper.GetInt("outchannels") <= 0 {
		return fmt.Errorf("%w: outchannels must be positive", ErrInvalidConfig)
	}
	if viper.GetInt("inchannels") < 0 {
		return fmt.Errorf("%w: inchannels must not be negative", ErrInvalidConfig)
	}
	if viper.GetString("device") == "file" && viper.GetString("outputfile") == "" {
		return fmt.Errorf("%w: the file device needs an outputfile", ErrInvalidConfig)
	}
	if viper.GetFloat64("gain") < 0 {
		return fmt.Errorf("%w: gain must not be negative", ErrInvalidConfig)
	}
	return nil
}
