package hotkey

import (
	"time"

	"murmur/dictation"
)

// State is where a single hotkey is in its gesture.
type State int

const (
	StateIdle State = iota
	// StatePressed: combo is down, not yet long enough to count as a hold.
	StatePressed
	// StateHeld: combo is down past the tap timeout (push-to-talk).
	StateHeld
	// StateTapped: combo was released quickly; waiting for a follow-up tap.
	StateTapped
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressed:
		return "pressed"
	case StateHeld:
		return "held"
	case StateTapped:
		return "tapped"
	case StateLocked:
		return "locked"
	}
	return "unknown"
}

// Tracker turns key-down and key-up edges of one hotkey into dictation
// actions:
//
//   - first press activates; holding past the tap timeout and releasing
//     deactivates (push-to-talk)
//   - with lock enabled, lock_tap_count quick taps lock the recording
//   - while locked, unlock_tap_count quick taps unlock it
//   - a single quick tap that is not followed up deactivates once the tap
//     timeout runs out
//
// Tracker is not safe for concurrent use; callers pass the current time so
// tests can drive it deterministically.
type Tracker struct {
	reg      dictation.Registration
	state    State
	taps     int
	lastDown time.Time
	lastUp   time.Time
}

func NewTracker(reg dictation.Registration) *Tracker {
	return &Tracker{reg: reg}
}

func (t *Tracker) State() State                         { return t.state }
func (t *Tracker) Registration() dictation.Registration { return t.reg }

// Down handles the combo going down.
func (t *Tracker) Down(now time.Time) (dictation.Action, bool) {
	if !t.lastDown.IsZero() && now.Sub(t.lastDown) < t.reg.TapTimeout {
		t.taps++
	} else {
		t.taps = 1
	}
	t.lastDown = now

	switch t.state {
	case StateIdle:
		t.state = StatePressed
		return dictation.ActionActivate, true
	case StateTapped:
		if t.reg.EnableLock && t.taps >= t.reg.LockTapCount {
			t.state = StateLocked
			t.taps = 0
			return dictation.ActionLock, true
		}
		t.state = StatePressed
	case StateLocked:
		if t.taps >= t.reg.UnlockTapCount {
			t.state = StateIdle
			t.taps = 0
			return dictation.ActionUnlock, true
		}
	}
	return "", false
}

// Up handles the combo being released.
func (t *Tracker) Up(now time.Time) (dictation.Action, bool) {
	t.lastUp = now
	switch t.state {
	case StatePressed:
		if t.reg.EnableLock {
			t.state = StateTapped
			return "", false
		}
		t.state = StateIdle
		return dictation.ActionDeactivate, true
	case StateHeld:
		t.state = StateIdle
		return dictation.ActionDeactivate, true
	}
	return "", false
}

// Tick applies timeouts that have passed by now: a press becomes a hold and
// an unanswered tap ends the recording.
func (t *Tracker) Tick(now time.Time) (dictation.Action, bool) {
	switch t.state {
	case StatePressed:
		if now.Sub(t.lastDown) >= t.reg.TapTimeout {
			t.state = StateHeld
		}
	case StateTapped:
		if now.Sub(t.lastUp) >= t.reg.TapTimeout {
			t.state = StateIdle
			t.taps = 0
			return dictation.ActionDeactivate, true
		}
	}
	return "", false
}

// Deadline reports when Tick next needs to run, if at all.
func (t *Tracker) Deadline() (time.Time, bool) {
	switch t.state {
	case StatePressed:
		return t.lastDown.Add(t.reg.TapTimeout), true
	case StateTapped:
		return t.lastUp.Add(t.reg.TapTimeout), true
	}
	return time.Time{}, false
}

// Reset drops any gesture in progress.
func (t *Tracker) Reset() {
	t.state = StateIdle
	t.taps = 0
	t.lastDown = time.Time{}
	t.lastUp = time.Time{}
}
