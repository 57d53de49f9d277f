package device

import (
	"math"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
)

// Wraps a PlaybackDevice, scaling everything the callback writes by an
// adjustable gain. Every other method is the wrapped device's.
type GainDevice struct {
	audiodevice.PlaybackDevice

	// float32 bits, written by the controller and read on the audio thread.
	gain atomic.Uint32
}

func NewGainDevice(inner audiodevice.PlaybackDevice, gain float32) *GainDevice {
	d := &GainDevice{PlaybackDevice: inner}
	d.SetGain(gain)
	return d
}

func (d *GainDevice) Init(config audiodevice.PlaybackConfig) error {
	callback := config.Callback
	if callback != nil {
		config.Callback = func(out, in []float32, frameCount int) {
			callback(out, in, frameCount)
			d.gainAdjust(out)
		}
	}
	return d.PlaybackDevice.Init(config)
}

func (d *GainDevice) gainAdjust(samples []float32) {
	gain := d.Gain()
	if gain == 1 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}

// Set the gain to a new value. Must be non-negative.
// 0.0 means muted, 1.0 is natural scaling, technically uncapped but
// output clips if values are made too large.
func (d *GainDevice) SetGain(gain float32) {
	if gain < 0.0 || math.IsNaN(float64(gain)) {
		gain = 0.0
	}
	d.gain.Store(math.Float32bits(gain))
}

func (d *GainDevice) Gain() float32 {
	return math.Float32frombits(d.gain.Load())
}
