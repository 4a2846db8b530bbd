// Package beep plays the short synthesized cues that mark the start and end
// of a dictation and signal errors.
package beep

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"murmur/dictation"
	"murmur/log"
)

const sampleRate = 44100

// tone is a decaying sine, optionally played twice with a gap.
type tone struct {
	freq     float64
	duration float64
	volume   float64
	decay    float64
	repeat   bool
	gap      float64
}

var tones = map[dictation.Cue]tone{
	// high pitch, short
	dictation.CueStartRecording: {freq: 1200, duration: 0.03, volume: 0.5, decay: 60},
	// medium pitch, slightly longer
	dictation.CueStopRecording: {freq: 900, duration: 0.05, volume: 0.5, decay: 40},
	// low pitch double-beep
	dictation.CueError: {freq: 350, duration: 0.08, volume: 0.6, decay: 30, repeat: true, gap: 0.05},
}

// samples renders t as interleaved signed 16-bit PCM. Output shorter than
// minDuration is padded with the decaying tail.
func (t tone) samples(channels int, minDuration float64) []int16 {
	d := t.duration
	if !t.repeat && d < minDuration {
		d = minDuration
	}
	one := render(t.freq, d, t.volume, t.decay, channels)
	if !t.repeat {
		return one
	}
	gap := make([]int16, int(float64(sampleRate)*t.gap)*channels)
	out := make([]int16, 0, 2*len(one)+len(gap))
	out = append(out, one...)
	out = append(out, gap...)
	return append(out, one...)
}

func render(freq, duration, volume, decay float64, channels int) []int16 {
	n := int(float64(sampleRate) * duration)
	out := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		for c := 0; c < channels; c++ {
			out[i*channels+c] = s
		}
	}
	return out
}

// Service plays cues without blocking the caller.
type Service struct {
	disabled atomic.Bool
	play     func(dictation.Cue) error
}

// New returns a Service backed by the platform audio output.
func New() *Service {
	return &Service{play: playCue}
}

func (s *Service) Disable() { s.disabled.Store(true) }

func (s *Service) Enabled() bool { return !s.disabled.Load() }

// Init prepares the output device so the first cue is not delayed.
func (s *Service) Init() {
	if s.Enabled() {
		initOutput()
	}
}

// Play starts cue and returns once it is queued. Playback errors are logged.
func (s *Service) Play(ctx context.Context, cue dictation.Cue) error {
	if _, ok := tones[cue]; !ok {
		return fmt.Errorf("beep: unknown cue %q", cue)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.disabled.Load() {
		return nil
	}
	go func() {
		if err := s.play(cue); err != nil {
			log.Warnf("beep %s: %v", cue, err)
		}
	}()
	return nil
}
