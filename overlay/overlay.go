// Package overlay shows the recording indicator: a small floating window
// when built with the gui tag, a full-screen terminal view otherwise, or
// nothing at all.
package overlay

import (
	"context"
	"errors"

	"murmur/dictation"
)

var ErrNoWindow = errors.New("overlay window not available")

// State is what an indicator draws.
type State struct {
	Phase  dictation.Phase
	Levels []float32
	// LastText is the newest processed transcript; Results counts them.
	LastText string
	Results  uint64
}

// Level is the loudest band, used to drive the eye.
func (s State) Level() float64 {
	var l float32
	for _, v := range s.Levels {
		l = max(l, v)
	}
	return float64(l)
}

// Info is static text shown next to the indicator.
type Info struct {
	Hotkey   string
	Device   string
	Provider string
	Version  string
}

type Overlay interface {
	Show() error
	Hide() error
	Update(State)
	// Run drives the indicator until ctx is done or the user closes it.
	Run(ctx context.Context) error
}

// None is the headless overlay. Show and Hide report ErrNoWindow so callers
// can tell nothing is drawn.
type None struct{}

func (None) Show() error  { return ErrNoWindow }
func (None) Hide() error  { return ErrNoWindow }
func (None) Update(State) {}

func (None) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
