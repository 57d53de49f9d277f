package utils

import "github.com/spf13/viper"

// Set the viper defaults for a pdplay session.
// For use in cmd/pdplay, as well as the examples.
func SetViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	// Engine
	viper.SetDefault("searchpaths", []string{})
	viper.SetDefault("verbose", false)
	viper.SetDefault("queued", true)
	viper.SetDefault("messageringsize", 0)
	viper.SetDefault("midiringsize", 0)

	// Audio
	viper.SetDefault("samplerate", 44100)
	viper.SetDefault("inchannels", 0)
	viper.SetDefault("outchannels", 2)
	viper.SetDefault("blocksize", 0)
	viper.SetDefault("periodframes", 0)
	viper.SetDefault("gain", 1.0)

	// Device, one of "miniaudio", "dummy", "file"
	viper.SetDefault("device", "miniaudio")
	// Substring of the playback device name, empty for the default device.
	viper.SetDefault("devicename", "")
	viper.SetDefault("outputfile", "out.wav")
	viper.SetDefault("outputsamplerate", 0)
	viper.SetDefault("outputchannels", 0)

	// Session length in seconds. Zero plays until interrupted.
	viper.SetDefault("duration", 0)
}
