package device

import (
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/oov/audio/resampler"
)

const resampleQuality = 10

type formatConversionFunction func(samples []float32) []float32

// Converts interleaved periods from a source format to a sink format.
//
// Each stage reuses a buffer sized for periodFrames source frames, so the
// output slice is only valid until the next call.
type formatConverter struct {
	source audiodevice.DeviceProperties
	sink   audiodevice.DeviceProperties

	functions []formatConversionFunction
}

func newFormatConverter(source, sink audiodevice.DeviceProperties, periodFrames int) formatConverter {
	functions := make([]formatConversionFunction, 0, 2)
	channels := source.NumChannels

	if source.NumChannels == 1 && sink.NumChannels == 2 {
		slog.Debug("adding mono to stereo")
		functions = append(functions, monoToStereo(periodFrames))
		channels = 2
	}
	if source.NumChannels == 2 && sink.NumChannels == 1 {
		slog.Debug("adding stereo to mono")
		functions = append(functions, stereoToMono(periodFrames))
		channels = 1
	}
	if source.SampleRate != sink.SampleRate {
		slog.Debug("adding resampler", "from", source.SampleRate, "to", sink.SampleRate)
		functions = append(functions, newResampleFunction(channels, source.SampleRate, sink.SampleRate, periodFrames))
	}

	return formatConverter{
		source:    source,
		sink:      sink,
		functions: functions,
	}
}

func (c *formatConverter) convert(samples []float32) []float32 {
	for _, f := range c.functions {
		samples = f(samples)
	}
	return samples
}

func monoToStereo(periodFrames int) formatConversionFunction {
	buf := make([]float32, 2*periodFrames)
	return func(samples []float32) []float32 {
		samples = samples[:min(len(samples), periodFrames)]
		for i, v := range samples {
			buf[2*i] = v
			buf[2*i+1] = v
		}
		return buf[:2*len(samples)]
	}
}

func stereoToMono(periodFrames int) formatConversionFunction {
	buf := make([]float32, periodFrames)
	return func(samples []float32) []float32 {
		frames := min(len(samples)/2, periodFrames)
		for i := range frames {
			buf[i] = (samples[2*i] + samples[2*i+1]) / 2
		}
		return buf[:frames]
	}
}

// Resample each channel of an interleaved stream, keeping filter state
// between periods.
func newResampleFunction(channels, fromRate, toRate, periodFrames int) formatConversionFunction {
	if channels < 1 {
		return func(samples []float32) []float32 { return samples }
	}
	r := resampler.New(channels, fromRate, toRate, resampleQuality)

	// Headroom for the filter releasing a little more than the rate ratio.
	sinkFrames := periodFrames*toRate/fromRate + 64
	planarSource := make([][]float32, channels)
	planarSink := make([][]float32, channels)
	for ch := range channels {
		planarSource[ch] = make([]float32, periodFrames)
		planarSink[ch] = make([]float32, sinkFrames)
	}
	buf := make([]float32, channels*sinkFrames)

	return func(samples []float32) []float32 {
		frames := min(len(samples)/channels, periodFrames)

		// Decode to planar, samples are interleaved
		for i := range frames {
			for ch := range channels {
				planarSource[ch][i] = samples[i*channels+ch]
			}
		}

		written := sinkFrames
		for ch := range channels {
			_, n := r.ProcessFloat32(ch, planarSource[ch][:frames], planarSink[ch])
			written = min(written, n)
		}

		// Interleave again
		for i := range written {
			for ch := range channels {
				buf[i*channels+ch] = planarSink[ch][i]
			}
		}
		return buf[:written*channels]
	}
}
