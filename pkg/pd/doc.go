// Package pd is the host-facing side of the bridge: it owns the engine, the
// patch and subscription tables, the callback bridge and the audio lifecycle.
//
// A typical session:
//
//	p, _ := pd.New(eng, pd.Options{Queued: true})
//	defer p.Release()
//	p.InitAudio(1, 2, 44100)
//	audio := p.NewAudio(device.NewMalgoDevice())
//	audio.Initialize(pd.AudioConfig{SampleRate: 44100, ChannelsIn: 1, ChannelsOut: 2})
//	id, _ := p.OpenPatch("test.pd", "./patches")
//	p.ComputeAudio(true)
//	audio.Start()
//	for ... { p.ReceiveMessages() }
//
// All methods except the audio callback belong to a single controller goroutine.
package pd
