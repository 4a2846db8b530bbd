package session

import (
	"context"

	"murmur/dictation"
	"murmur/event"
)

// Capture records audio and turns it into a dictation result.
type Capture interface {
	// StartCapture begins recording. An empty language means no override.
	StartCapture(ctx context.Context, language string) error
	StopCapture(ctx context.Context) (dictation.Result, error)
	CancelCapture(ctx context.Context) error
}

// Hotkeys owns global hotkey registrations and the listening loop.
type Hotkeys interface {
	RegisterHotkey(ctx context.Context, reg dictation.Registration) error
	UnregisterHotkey(ctx context.Context, id string) error
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
}

// Sounds plays short audio cues.
type Sounds interface {
	Play(ctx context.Context, cue dictation.Cue) error
}

// Injector pastes text into the application that currently has focus.
type Injector interface {
	InjectText(ctx context.Context, text string) error
}

// Overlay is the floating recording indicator. Both calls are best-effort.
type Overlay interface {
	Show() error
	Hide() error
}

// Source is a push stream the controller can attach a handler to.
type Source[T any] interface {
	Listen(fn func(T)) (event.Unlisten, error)
}

// Streams bundles the four push streams the controller consumes.
type Streams struct {
	Amplitude    Source[dictation.AmplitudeEvent]
	Phase        Source[dictation.PhaseEvent]
	Completion   Source[dictation.CompletionEvent]
	HotkeyAction Source[dictation.HotkeyActionEvent]
}
