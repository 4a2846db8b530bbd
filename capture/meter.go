package capture

import (
	"encoding/binary"
	"math"
)

const (
	speechFrameMs = 20
	// RMS above this (about -34 dBFS) counts a 20ms frame as speech.
	speechRMS       = 0.02
	speechThreshold = 0.10 // share of speech frames for a tick to count as speaking
)

// meter slices incoming PCM into ticks. Each tick reports the RMS level of
// `bands` equal slices of the tick and whether it contained speech.
type meter struct {
	bands    int
	tickLen  int // samples per tick
	frameLen int // samples per speech frame
	buf      []int16
	onTick   func(levels []float32, speech bool)
}

func newMeter(sampleRate, bands int, onTick func([]float32, bool)) *meter {
	tickLen := sampleRate * int(tickInterval.Milliseconds()) / 1000
	return &meter{
		bands:    max(1, bands),
		tickLen:  tickLen,
		frameLen: sampleRate * speechFrameMs / 1000,
		buf:      make([]int16, 0, tickLen),
		onTick:   onTick,
	}
}

// feed takes little-endian int16 PCM. It is not safe for concurrent use;
// capture callbacks arrive on one goroutine.
func (m *meter) feed(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		m.buf = append(m.buf, int16(binary.LittleEndian.Uint16(pcm[i:])))
		if len(m.buf) == m.tickLen {
			m.onTick(bandLevels(m.buf, m.bands), hasSpeech(m.buf, m.frameLen))
			m.buf = m.buf[:0]
		}
	}
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func bandLevels(samples []int16, bands int) []float32 {
	levels := make([]float32, bands)
	size := len(samples) / bands
	if size == 0 {
		return levels
	}
	for b := range levels {
		levels[b] = float32(min(1, rms(samples[b*size:(b+1)*size])))
	}
	return levels
}

func hasSpeech(samples []int16, frameLen int) bool {
	total, speech := 0, 0
	for i := 0; i+frameLen <= len(samples); i += frameLen {
		total++
		if rms(samples[i:i+frameLen]) >= speechRMS {
			speech++
		}
	}
	if total == 0 {
		return false
	}
	return float64(speech)/float64(total) >= speechThreshold
}
