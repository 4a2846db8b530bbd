// Package clipboard puts dictated text into the focused application, either
// by pasting it through the system clipboard or by typing it key by key.
package clipboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"murmur/log"
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Mode selects how text reaches the target application.
type Mode string

const (
	// ModePaste copies text and sends the paste shortcut.
	ModePaste Mode = "paste"
	// ModeType sends one keystroke per character and leaves the clipboard alone.
	ModeType Mode = "type"
	// ModeCopy only copies; the user pastes by hand.
	ModeCopy Mode = "copy"
)

func (m Mode) Valid() bool {
	switch m {
	case ModePaste, ModeType, ModeCopy:
		return true
	}
	return false
}

type Options struct {
	Mode Mode
	// Restore puts the previous clipboard contents back RestoreDelay after a
	// paste, once the target application has read the new text.
	Restore      bool
	RestoreDelay time.Duration
}

type board interface {
	Read() (string, error)
	Write(string) error
}

type keyboard interface {
	Paste() error
	Type(string) error
}

type systemBoard struct{}

func (systemBoard) Read() (string, error)   { return Read() }
func (systemBoard) Write(text string) error { return Copy(text) }

type systemKeyboard struct{}

func (systemKeyboard) Paste() error           { return Paste() }
func (systemKeyboard) Type(text string) error { return Type(text) }

// Injector delivers text to the foreground application.
type Injector struct {
	opts  Options
	board board
	keys  keyboard

	// serialises injections so a restore never clobbers the next paste
	mu       sync.Mutex
	pending  *time.Timer
	lastPrev string
}

func NewInjector(opts Options) *Injector {
	if opts.Mode == "" {
		opts.Mode = ModePaste
	}
	return &Injector{opts: opts, board: systemBoard{}, keys: systemKeyboard{}}
}

// Init prepares the keystroke device ahead of the first injection.
func (in *Injector) Init() error {
	if in.opts.Mode == ModeCopy {
		return nil
	}
	return Init()
}

func (in *Injector) InjectText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	switch in.opts.Mode {
	case ModeType:
		if err := in.keys.Type(text); err != nil {
			return fmt.Errorf("type text: %w", err)
		}
		return nil
	case ModeCopy:
		if err := in.board.Write(text); err != nil {
			return fmt.Errorf("copy text: %w", err)
		}
		return nil
	}

	prev, restore := in.previousLocked()
	if err := in.board.Write(text); err != nil {
		return fmt.Errorf("copy text: %w", err)
	}
	if err := in.keys.Paste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	if restore {
		in.pending = time.AfterFunc(in.opts.RestoreDelay, func() {
			if err := in.board.Write(prev); err != nil {
				log.Warnf("restore clipboard: %v", err)
			}
		})
	}
	return nil
}

// previousLocked reads the clipboard to restore later. A restore that has
// not fired yet is cancelled and its value is kept instead, so the user's
// original contents survive back-to-back dictations.
func (in *Injector) previousLocked() (string, bool) {
	if !in.opts.Restore {
		return "", false
	}
	if in.pending != nil {
		stopped := in.pending.Stop()
		in.pending = nil
		if stopped {
			return in.lastPrev, true
		}
	}
	prev, err := in.board.Read()
	if err != nil {
		log.Debugf("read clipboard: %v", err)
		return "", false
	}
	in.lastPrev = prev
	return prev, prev != ""
}
