package pd

import (
	"context"
	"errors"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/audiodevice"
)

const DefaultPollInterval = 10 * time.Millisecond

type PlayConfig struct {
	Patch string
	Dir   string
	// How long to play. Zero plays until ctx is done.
	Duration time.Duration
	Audio    AudioConfig
	Device   audiodevice.PlaybackDevice

	// While playing, queued callbacks are drained and OnPoll is called at this interval.
	PollInterval time.Duration
	OnPoll       func()
}

// Play a patch on a device: set up audio, open the patch, switch DSP on, wait,
// then undo all of it in reverse.
func (p *PD) Play(ctx context.Context, cfg PlayConfig) (err error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if err := p.InitAudio(cfg.Audio.ChannelsIn, cfg.Audio.ChannelsOut, cfg.Audio.SampleRate); err != nil {
		return err
	}
	audio := p.NewAudio(cfg.Device)
	defer p.dropAudio(audio)
	if err := audio.Initialize(cfg.Audio); err != nil {
		return err
	}

	id, err := p.OpenPatch(cfg.Patch, cfg.Dir)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, p.ClosePatch(id))
	}()

	if err := p.ComputeAudio(true); err != nil {
		return err
	}
	if err := audio.Start(); err != nil {
		p.ComputeAudio(false)
		return err
	}
	p.logger.Info("playing", "patch", cfg.Patch, "duration", cfg.Duration)

	p.wait(ctx, cfg)

	// Stop the device before touching the engine from this goroutine again.
	stopErr := audio.Stop()
	p.poll(cfg)
	return errors.Join(stopErr, p.ComputeAudio(false))
}

func (p *PD) wait(ctx context.Context, cfg PlayConfig) {
	var deadline <-chan time.Time
	if cfg.Duration > 0 {
		timer := time.NewTimer(cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			p.poll(cfg)
		}
	}
}

func (p *PD) poll(cfg PlayConfig) {
	if p.Queued() {
		p.ReceiveMessages()
		p.ReceiveMIDI()
	}
	if cfg.OnPoll != nil {
		cfg.OnPoll()
	}
}

// Block the calling goroutine for ms milliseconds.
func Sleep(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
