//go:build linux

package hotkey

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
)

const inputEventSize = 24

// evdevCodes lists the input-event-codes.h codes for each canonical key.
var evdevCodes = map[string][]uint16{
	"Control": {29, 97}, "Shift": {42, 54}, "Alt": {56, 100}, "Meta": {125, 126},
	"Space": {57}, "Enter": {28}, "Escape": {1}, "Tab": {15}, "Delete": {111},
	"ArrowUp": {103}, "ArrowLeft": {105}, "ArrowRight": {106}, "ArrowDown": {108},
	"Q": {16}, "W": {17}, "E": {18}, "R": {19}, "T": {20}, "Y": {21}, "U": {22},
	"I": {23}, "O": {24}, "P": {25}, "A": {30}, "S": {31}, "D": {32}, "F": {33},
	"G": {34}, "H": {35}, "J": {36}, "K": {37}, "L": {38}, "Z": {44}, "X": {45},
	"C": {46}, "V": {47}, "B": {48}, "N": {49}, "M": {50},
	"1": {2}, "2": {3}, "3": {4}, "4": {5}, "5": {6}, "6": {7}, "7": {8}, "8": {9},
	"9": {10}, "0": {11},
	"F1": {59}, "F2": {60}, "F3": {61}, "F4": {62}, "F5": {63}, "F6": {64},
	"F7": {65}, "F8": {66}, "F9": {67}, "F10": {68}, "F11": {87}, "F12": {88},
	"F13": {183}, "F14": {184}, "F15": {185}, "F16": {186}, "F17": {187},
	"F18": {188}, "F19": {189}, "F20": {190},
}

// linuxHotkey reads every keyboard under /dev/input directly, so it works
// the same under X11 and Wayland. Held keys are tracked across devices.
type linuxHotkey struct {
	keys    []string
	codes   map[uint16]string
	keydown chan struct{}
	keyup   chan struct{}
	files   []*os.File
	stop    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	held map[uint16]bool
	down bool
}

// New binds keys to the evdev keyboards of this machine.
func New(keys []string) (Hotkey, error) {
	codes := make(map[uint16]string)
	for _, k := range keys {
		cs, ok := evdevCodes[k]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, k)
		}
		for _, c := range cs {
			codes[c] = k
		}
	}
	return &linuxHotkey{
		keys:    keys,
		codes:   codes,
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		held:    make(map[uint16]bool),
	}, nil
}

func (h *linuxHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	h.stop = make(chan struct{})

	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.readEvents(f)
	}

	if len(h.files) == 0 {
		return fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}
	return nil
}

func (h *linuxHotkey) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	for {
		select {
		case <-h.stop:
			return
		default:
		}

		n, err := f.Read(buf)
		if err != nil {
			return
		}

		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			evType := binary.LittleEndian.Uint16(buf[i+16:])
			evCode := binary.LittleEndian.Uint16(buf[i+18:])
			evValue := int32(binary.LittleEndian.Uint32(buf[i+20:]))
			if evType == evKey {
				h.handle(evCode, evValue)
			}
		}
	}
}

// handle applies one key edge. Autorepeat (value 2) is ignored so a held
// combination produces a single keydown.
func (h *linuxHotkey) handle(code uint16, value int32) {
	if _, ok := h.codes[code]; !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch value {
	case keyPress:
		h.held[code] = true
	case keyRelease:
		delete(h.held, code)
	default:
		return
	}

	all := h.allHeld()
	switch {
	case all && !h.down && value == keyPress:
		h.down = true
		notify(h.keydown)
	case !all && h.down:
		h.down = false
		notify(h.keyup)
	}
}

func (h *linuxHotkey) allHeld() bool {
	pressed := make(map[string]bool, len(h.held))
	for c := range h.held {
		pressed[h.codes[c]] = true
	}
	for _, k := range h.keys {
		if !pressed[k] {
			return false
		}
	}
	return true
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *linuxHotkey) Unregister() {
	h.once.Do(func() {
		if h.stop != nil {
			close(h.stop)
		}
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *linuxHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *linuxHotkey) Keyup() <-chan struct{} {
	return h.keyup
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

func isKeyboard(eventName string) bool {
	capsPath := filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key")
	data, err := os.ReadFile(capsPath)
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

// Diagnose reports whether at least one keyboard device can be opened.
func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	for _, path := range keyboards {
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			return fmt.Sprintf("%d keyboard(s) found, opened %s", len(keyboards), path), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
}
