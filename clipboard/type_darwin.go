//go:build darwin

package clipboard

// Type has no keystroke path on macOS; it pastes through the clipboard.
func Type(text string) error {
	if err := Copy(text); err != nil {
		return err
	}
	return Paste()
}
