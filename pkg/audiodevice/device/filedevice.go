package device

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

type FileDeviceOptions struct {
	Path string
	// Sample rate of the written file. Zero writes at the device rate.
	SampleRate int
	// Channels of the written file, 1 or 2 when converting. Zero writes the device channels.
	Channels int
}

// A PlaybackDevice that runs the callback in real time and writes the output
// to a 16 bit .WAV file.
//
// The file is finalized by Uninit. Capture input is silence.
type FileDevice struct {
	logger  *slog.Logger
	uuid    uuid.UUID
	options FileDeviceOptions

	mu          sync.Mutex
	config      audiodevice.PlaybackConfig
	initialized bool
	clock       clock

	fileHandle *os.File
	encoder    *wav.Encoder
	converter  formatConverter
	buf        *goaudio.IntBuffer

	out []float32
	in  []float32
}

func NewFileDevice(options FileDeviceOptions) *FileDevice {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file output device uuid", uuid,
	)
	return &FileDevice{
		logger:  logger,
		uuid:    uuid,
		options: options,
	}
}

func (d *FileDevice) Init(config audiodevice.PlaybackConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return audiodevice.ErrAlreadyInitialized
	}
	if config.SampleRate <= 0 || config.Channels <= 0 || config.CaptureChannels < 0 || config.PeriodFrames < 0 {
		return fmt.Errorf("invalid device config: %d Hz, %d out, %d in, %d period frames",
			config.SampleRate, config.Channels, config.CaptureChannels, config.PeriodFrames)
	}
	if config.PeriodFrames == 0 {
		config.PeriodFrames = DefaultPeriodFrames
	}

	source := audiodevice.DeviceProperties{SampleRate: config.SampleRate, NumChannels: config.Channels}
	sink := source
	if d.options.SampleRate > 0 {
		sink.SampleRate = d.options.SampleRate
	}
	if d.options.Channels > 0 {
		sink.NumChannels = d.options.Channels
	}
	if sink.NumChannels != source.NumChannels && (source.NumChannels > 2 || sink.NumChannels > 2) {
		return fmt.Errorf("cannot convert %d channels to %d", source.NumChannels, sink.NumChannels)
	}

	f, err := os.Create(d.options.Path)
	if err != nil {
		d.logger.Error(
			"could not open audio file",
			"audioFile", d.options.Path,
			"err", err,
		)
		return err
	}

	d.fileHandle = f
	d.encoder = wav.NewEncoder(f, sink.SampleRate, 16, sink.NumChannels, 1)
	d.converter = newFormatConverter(source, sink, config.PeriodFrames)
	d.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			SampleRate:  sink.SampleRate,
			NumChannels: sink.NumChannels,
		},
		Data:           make([]int, 0, 2*config.PeriodFrames*max(sink.NumChannels, source.NumChannels)),
		SourceBitDepth: 16,
	}
	d.config = config
	d.out = make([]float32, config.PeriodFrames*config.Channels)
	d.in = nil
	if config.CaptureChannels > 0 {
		d.in = make([]float32, config.PeriodFrames*config.CaptureChannels)
	}
	d.clock = clock{
		period: periodDuration(config.PeriodFrames, config.SampleRate),
		step:   d.step,
	}
	d.initialized = true

	d.logger.Debug(
		"opened audio file",
		"audioFile", d.options.Path,
		"sampleRate", sink.SampleRate,
		"channels", sink.NumChannels,
		"periodFrames", config.PeriodFrames,
	)
	return nil
}

func (d *FileDevice) step() {
	const maxInt16 = float32(math.MaxInt16)

	clear(d.out)
	if d.config.Callback != nil {
		d.config.Callback(d.out, d.in, d.config.PeriodFrames)
	}

	samples := d.converter.convert(d.out)
	d.buf.Data = d.buf.Data[:0]
	for _, sample := range samples {
		sample = max(-1, min(1, sample))
		d.buf.Data = append(d.buf.Data, int(sample*maxInt16))
	}
	if err := d.encoder.Write(d.buf); err != nil {
		d.logger.Error("error while writing period to file", "err", err)
	}
}

func (d *FileDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return audiodevice.ErrNotInitialized
	}
	d.clock.start()
	return nil
}

func (d *FileDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock.halt()
	return nil
}

func (d *FileDevice) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock.running()
}

// Stop, and finalize the file.
func (d *FileDevice) Uninit() {
	d.logger.Debug("uninit called")
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return
	}
	d.clock.halt()
	if err := d.encoder.Close(); err != nil {
		d.logger.Error("error finalizing audio file", "err", err)
	}
	d.fileHandle.Sync()
	d.fileHandle.Close()
	d.initialized = false
}

func (d *FileDevice) Name() string {
	return "file"
}

func (d *FileDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return audiodevice.DeviceProperties{
		SampleRate:  d.config.SampleRate,
		NumChannels: d.config.Channels,
	}
}
