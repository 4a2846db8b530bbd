//go:build !linux && !darwin

package beep

import "murmur/dictation"

// No audio playback on this platform; cues are silent.

func initOutput() {}

func playCue(dictation.Cue) error { return nil }
