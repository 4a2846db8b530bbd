package capture

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type silenceEvent int

const (
	silenceNone      silenceEvent = iota
	silenceWarn                   // no voice detected
	silenceWarnClear              // speech resumed after warning
	silenceRepeat                 // still silent, warn again
	silenceAutoStop               // silent for the whole window
)

// silenceMonitor watches per-tick speech flags. It warns once the last
// warnAfter of audio is mostly silent and, when autoStop is set, asks for the
// recording to end once the last stopAfter is.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	autoStop bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastWarn    int
}

func newSilenceMonitor(warnAfter, stopAfter time.Duration) *silenceMonitor {
	warnAt := max(1, int(warnAfter/tickInterval))
	windowSz := int(stopAfter / tickInterval)
	autoStop := windowSz > 0
	if windowSz < warnAt {
		windowSz = warnAt
	}
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		autoStop: autoStop,
		window:   make([]bool, windowSz),
	}
}

func (m *silenceMonitor) ratio(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) silenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)
	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastWarn = m.ticks
		return silenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return silenceWarnClear
	}

	if !m.autoStop {
		return silenceNone
	}
	// stop wins over a repeat warning on the same tick
	if m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return silenceAutoStop
	}
	if m.warned && m.ticks-m.lastWarn >= m.warnAt {
		m.lastWarn = m.ticks
		return silenceRepeat
	}
	return silenceNone
}
