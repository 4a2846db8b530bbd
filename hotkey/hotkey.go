// Package hotkey watches global key combinations and turns their press,
// hold and tap gestures into dictation actions.
package hotkey

// Hotkey is one bound key combination. Keydown fires when the last key of
// the combination goes down while the rest are held; Keyup fires when any
// of them is released.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Binder creates a Hotkey for a list of canonical key names.
type Binder func(keys []string) (Hotkey, error)
