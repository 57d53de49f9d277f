package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/cmd/pdplay/config"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine/libpd"
	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/pd"
	"github.com/spf13/viper"
	gomidi "gitlab.com/gomidi/midi/v2"
)

func newDeviceAPI() (audioapi.AudioIODeviceAPI, func(), error) {
	if viper.GetString("device") == "dummy" {
		return audioapi.NewDummyAudioIODeviceAPI(), func() {}, nil
	}
	api, err := audioapi.NewMalgoApi()
	if err != nil {
		return nil, nil, err
	}
	return api, api.Close, nil
}

func listDevices() error {
	api, closeAPI, err := newDeviceAPI()
	if err != nil {
		return err
	}
	defer closeAPI()

	devices, err := api.OutputDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		fmt.Println(d)
	}
	return nil
}

func newDevice() (audiodevice.PlaybackDevice, error) {
	var inner audiodevice.PlaybackDevice
	switch viper.GetString("device") {
	case "file":
		inner = device.NewFileDevice(device.FileDeviceOptions{
			Path:       viper.GetString("outputfile"),
			SampleRate: viper.GetInt("outputsamplerate"),
			Channels:   viper.GetInt("outputchannels"),
		})
	default:
		api, closeAPI, err := newDeviceAPI()
		if err != nil {
			return nil, err
		}
		defer closeAPI()
		inner, err = audioapi.InitOutputDeviceByName(api, viper.GetString("devicename"))
		if err != nil {
			return nil, err
		}
	}
	return device.NewGainDevice(inner, float32(viper.GetFloat64("gain"))), nil
}

// Patch output is printed to stdout, logging goes to stderr or the log file.
func setHandlers(p *pd.PD) {
	p.SetPrintHandler(func(s string) {
		fmt.Print(s)
	})
	p.SetBangHandler(func(recv string) {
		slog.Info("bang", "recv", recv)
	})
	p.SetFloatHandler(func(recv string, x float32) {
		slog.Info("float", "recv", recv, "value", x)
	})
	p.SetSymbolHandler(func(recv string, sym string) {
		slog.Info("symbol", "recv", recv, "symbol", sym)
	})
	p.SetListHandler(func(recv string, atoms []engine.Atom) {
		slog.Info("list", "recv", recv, "atoms", atoms)
	})
	p.SetMessageHandler(func(recv string, msg string, atoms []engine.Atom) {
		slog.Info("message", "recv", recv, "msg", msg, "atoms", atoms)
	})
	p.SetMIDIHandler(func(msg gomidi.Message) {
		slog.Debug("midi", "msg", msg.String())
	})
}

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	patchPath := flag.String("patch", "", "Patch to play.")
	patchDir := flag.String("dir", "", "Directory holding the patch. Defaults to the directory of -patch.")
	durationFlag := flag.Duration("duration", 0, "How long to play. Overrides the config file. Zero plays until interrupted.")
	subscribe := flag.String("subscribe", "", "Receiver name to subscribe to and log.")
	listDevicesFlag := flag.Bool("listdevices", false, "List the playback devices and exit.")
	flag.Parse()

	if err := config.LoadConfig(*configFilePath); err != nil {
		slog.Error("error while loading config", "err", err)
		panic(err)
	}
	logFilePointer, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		slog.HandlerOptions{},
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	if *listDevicesFlag {
		if err := listDevices(); err != nil {
			slog.Error("could not list devices", "err", err)
			os.Exit(1)
		}
		return
	}
	if *patchPath == "" {
		slog.Error("no patch given, use -patch")
		os.Exit(2)
	}

	// --------------------------------------------------------------------------------

	if !libpd.Available() {
		slog.Error("this binary was built without libpd, rebuild with -tags libpd")
		os.Exit(1)
	}
	eng, err := libpd.New()
	if err != nil {
		slog.Error("could not create engine", "err", err)
		os.Exit(1)
	}

	p, err := pd.New(eng, pd.Options{
		Queued:          viper.GetBool("queued"),
		MessageRingSize: viper.GetInt("messageringsize"),
		MIDIRingSize:    viper.GetInt("midiringsize"),
	})
	if err != nil {
		slog.Error("could not initialize pd", "err", err)
		os.Exit(1)
	}
	defer p.Release()

	p.SetVerbose(viper.GetBool("verbose"))
	for _, dir := range viper.GetStringSlice("searchpaths") {
		p.AddToSearchPath(dir)
	}
	setHandlers(p)
	if *subscribe != "" {
		if err := p.Subscribe(*subscribe); err != nil {
			slog.Error("could not subscribe", "recv", *subscribe, "err", err)
		}
	}
	slog.Info("libpd", "version", p.Version(), "blockSize", p.BlockSize())

	// --------------------------------------------------------------------------------

	duration := time.Duration(viper.GetInt("duration")) * time.Second
	if *durationFlag > 0 {
		duration = *durationFlag
	}

	patch, dir := filepath.Base(*patchPath), *patchDir
	if dir == "" {
		dir = filepath.Dir(*patchPath)
	}

	playbackDevice, err := newDevice()
	if err != nil {
		slog.Error("could not open playback device", "err", err)
		p.Release()
		os.Exit(1)
	}

	var lastDropped uint64
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = p.Play(ctx, pd.PlayConfig{
		Patch:    patch,
		Dir:      dir,
		Duration: duration,
		Audio: pd.AudioConfig{
			SampleRate:   viper.GetInt("samplerate"),
			ChannelsIn:   viper.GetInt("inchannels"),
			ChannelsOut:  viper.GetInt("outchannels"),
			BlockSize:    viper.GetInt("blocksize"),
			PeriodFrames: viper.GetInt("periodframes"),
		},
		Device: playbackDevice,
		OnPoll: func() {
			if dropped := p.Dropped(); dropped > lastDropped {
				slog.Warn("queued callbacks dropped", "total", dropped)
				lastDropped = dropped
			}
		},
	})
	if err != nil {
		slog.Error("error while playing patch", "patch", *patchPath, "err", err)
		p.Release()
		os.Exit(1)
	}
}
