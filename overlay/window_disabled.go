//go:build !gui

package overlay

const GUIAvailable = false

// NewWindow fails in builds without the gui tag.
func NewWindow(Info) (Overlay, error) {
	return nil, ErrNoWindow
}
