//go:build linux

package clipboard

import "murmur/log"

type keyStroke struct {
	code  uint16
	shift bool
}

// US layout evdev codes for printable ASCII.
var strokes = func() map[rune]keyStroke {
	m := map[rune]keyStroke{
		' ': {57, false}, '\n': {28, false}, '\t': {15, false},
		'.': {52, false}, ',': {51, false}, '/': {53, false},
		';': {39, false}, '\'': {40, false}, '[': {26, false},
		']': {27, false}, '-': {12, false}, '=': {13, false},
		'\\': {43, false}, '`': {41, false},
		'!': {2, true}, '@': {3, true}, '#': {4, true},
		'$': {5, true}, '%': {6, true}, '^': {7, true},
		'&': {8, true}, '*': {9, true}, '(': {10, true},
		')': {11, true}, '_': {12, true}, '+': {13, true},
		'{': {26, true}, '}': {27, true}, '|': {43, true},
		':': {39, true}, '"': {40, true}, '<': {51, true},
		'>': {52, true}, '?': {53, true}, '~': {41, true},
	}
	letters := [26]uint16{
		30, 48, 46, 32, 18, 33, 34, 35, 23, 36,
		37, 38, 50, 49, 24, 25, 16, 19, 31, 20,
		22, 47, 17, 45, 21, 44,
	}
	for i, code := range letters {
		m['a'+rune(i)] = keyStroke{code, false}
		m['A'+rune(i)] = keyStroke{code, true}
	}
	digits := [10]uint16{11, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for i, code := range digits {
		m['0'+rune(i)] = keyStroke{code, false}
	}
	return m
}()

// Type sends each character of text as a keystroke via uinput. Characters
// without a key on a US layout are skipped.
func Type(text string) error {
	if err := Init(); err != nil {
		return err
	}
	skipped := 0
	for _, r := range text {
		k, ok := strokes[r]
		if !ok {
			skipped++
			continue
		}
		if err := keyTap(k.code, k.shift); err != nil {
			return err
		}
	}
	if skipped > 0 {
		log.Warnf("type: skipped %d characters without a key", skipped)
	}
	return nil
}
