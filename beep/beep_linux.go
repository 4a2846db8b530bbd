//go:build linux

package beep

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"murmur/dictation"
)

var (
	cueSamples map[dictation.Cue][]int16
	soundOnce  sync.Once
)

// PulseAudio needs about 200ms of data to fill its buffer, so short cues
// are padded with their decaying tail.
func initSound() {
	cueSamples = make(map[dictation.Cue][]int16, len(tones))
	for cue, t := range tones {
		cueSamples[cue] = t.samples(2, 0.2)
	}
}

func initOutput() { soundOnce.Do(initSound) }

func playCue(cue dictation.Cue) error {
	soundOnce.Do(initSound)
	samples := cueSamples[cue]
	if len(samples) == 0 {
		return nil
	}
	c, err := pulse.NewClient()
	if err != nil {
		return fmt.Errorf("pulse client: %w", err)
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return fmt.Errorf("pulse playback: %w", err)
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
	return nil
}
