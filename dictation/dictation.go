// Package dictation holds the value types shared by the session controller
// and the services it drives: phases, results, hotkey registrations and the
// payloads carried on the push event streams.
package dictation

import (
	"errors"
	"fmt"
	"time"
)

// ErrCaptureCancelled is what a capture service's stop returns when the
// recording was cancelled before its result could be delivered.
var ErrCaptureCancelled = errors.New("capture cancelled")

// Phase is the controller's current stage in the dictation lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseLocked     Phase = "locked"
	PhaseProcessing Phase = "processing"
)

// IsValid reports whether p is one of the four known phases.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhaseRecording, PhaseLocked, PhaseProcessing:
		return true
	}
	return false
}

// Active reports whether audio is being captured in this phase.
func (p Phase) Active() bool {
	return p == PhaseRecording || p == PhaseLocked
}

// Result is produced once per successful capture cycle.
type Result struct {
	RawText       string `json:"raw_text"`
	ProcessedText string `json:"processed_text"`
	DurationMs    int64  `json:"duration_ms"`
	TargetApp     string `json:"target_app,omitempty"`
}

// Duration returns the recorded length as a time.Duration.
func (r Result) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Registration describes one global hotkey and its tap gestures.
type Registration struct {
	ID             string        `json:"id" yaml:"id"`
	Keys           []string      `json:"keys" yaml:"keys"`
	EnableLock     bool          `json:"enable_lock" yaml:"enable_lock"`
	LockTapCount   int           `json:"lock_tap_count" yaml:"lock_tap_count"`
	UnlockTapCount int           `json:"unlock_tap_count" yaml:"unlock_tap_count"`
	TapTimeout     time.Duration `json:"tap_timeout" yaml:"tap_timeout"`
}

// DefaultHotkeyID is the registration id the dictation controller owns.
const DefaultHotkeyID = "dictation-main"

// DefaultRegistration returns the stock Ctrl+Shift+D binding: lock after two
// taps, unlock after three, 400ms between taps.
func DefaultRegistration() Registration {
	return Registration{
		ID:             DefaultHotkeyID,
		Keys:           []string{"Control", "Shift", "D"},
		EnableLock:     true,
		LockTapCount:   2,
		UnlockTapCount: 3,
		TapTimeout:     400 * time.Millisecond,
	}
}

// Validate checks the registration for values the tap tracker cannot use.
func (r Registration) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("hotkey id is empty")
	}
	if len(r.Keys) == 0 {
		return fmt.Errorf("hotkey %q has no keys", r.ID)
	}
	if r.TapTimeout <= 0 {
		return fmt.Errorf("hotkey %q: tap timeout must be positive", r.ID)
	}
	if r.EnableLock {
		if r.LockTapCount < 1 || r.UnlockTapCount < 1 {
			return fmt.Errorf("hotkey %q: tap counts must be at least 1", r.ID)
		}
		if r.LockTapCount >= r.UnlockTapCount {
			return fmt.Errorf("hotkey %q: lock taps (%d) must be fewer than unlock taps (%d)",
				r.ID, r.LockTapCount, r.UnlockTapCount)
		}
	}
	return nil
}

// Action is what a hotkey gesture asks the controller to do.
type Action string

const (
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionLock       Action = "lock"
	ActionUnlock     Action = "unlock"
)

// Cue names a sound the Sound Service can play.
type Cue string

const (
	CueStartRecording Cue = "StartRecording"
	CueStopRecording  Cue = "StopRecording"
	CueError          Cue = "Error"
)

// AmplitudeEvent carries one sample of per-band input levels.
type AmplitudeEvent struct {
	Levels []float32 `json:"levels"`
}

// PhaseEvent is the Capture Service's own view of the current phase.
type PhaseEvent struct {
	State Phase `json:"state"`
}

// CompletionEvent announces a capture cycle the service finished on its own.
type CompletionEvent struct {
	Result Result `json:"result"`
}

// HotkeyActionEvent is emitted by the Hotkey Service for every gesture of
// every registered hotkey.
type HotkeyActionEvent struct {
	HotkeyID string `json:"hotkey_id"`
	Action   Action `json:"action"`
}
