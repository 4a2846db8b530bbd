package hotkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownKey = errors.New("hotkey: unknown key")

var modifierNames = map[string]bool{
	"Control": true,
	"Shift":   true,
	"Alt":     true,
	"Meta":    true,
}

var keyAliases = map[string]string{
	"ctrl":    "Control",
	"control": "Control",
	"shift":   "Shift",
	"alt":     "Alt",
	"option":  "Alt",
	"opt":     "Alt",
	"meta":    "Meta",
	"cmd":     "Meta",
	"command": "Meta",
	"super":   "Meta",
	"win":     "Meta",
	"space":   "Space",
	"enter":   "Enter",
	"return":  "Enter",
	"esc":     "Escape",
	"escape":  "Escape",
	"tab":     "Tab",
	"delete":  "Delete",
	"left":    "ArrowLeft",
	"right":   "ArrowRight",
	"up":      "ArrowUp",
	"down":    "ArrowDown",
}

// canonicalKey maps a user-facing key name onto the names the backends
// understand: Control, Shift, Alt, Meta, Space, Enter, Escape, Tab, Delete,
// Arrow*, A-Z, 0-9 and F1-F20.
func canonicalKey(name string) (string, error) {
	n := strings.TrimSpace(name)
	lower := strings.ToLower(n)
	if c, ok := keyAliases[lower]; ok {
		return c, nil
	}
	if strings.HasPrefix(lower, "arrow") {
		if c, ok := keyAliases[strings.TrimPrefix(lower, "arrow")]; ok && strings.HasPrefix(c, "Arrow") {
			return c, nil
		}
	}
	if len(n) == 1 {
		ch := strings.ToUpper(n)[0]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			return string(ch), nil
		}
	}
	if len(lower) >= 2 && lower[0] == 'f' {
		if num, err := strconv.Atoi(lower[1:]); err == nil && num >= 1 && num <= 20 && lower[1] != '0' {
			return fmt.Sprintf("F%d", num), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// ParseKeys canonicalises keys and removes duplicates, keeping order.
func ParseKeys(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty combination", ErrUnknownKey)
	}
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		c, err := canonicalKey(k)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// splitCombo separates modifiers from the single main key. A combination
// made only of modifiers uses its last modifier as the main key.
func splitCombo(keys []string) (mods []string, key string) {
	for _, k := range keys {
		if modifierNames[k] {
			mods = append(mods, k)
		} else {
			key = k
		}
	}
	if key == "" && len(mods) > 0 {
		key = mods[len(mods)-1]
		mods = mods[:len(mods)-1]
	}
	return mods, key
}

// Format renders keys the way they are shown to the user, e.g. Control+Shift+D.
func Format(keys []string) string {
	return strings.Join(keys, "+")
}
