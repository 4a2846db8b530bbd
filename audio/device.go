package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	ErrNoDevices     = errors.New("no capture devices found")
	ErrSelectAborted = errors.New("device selection aborted")
)

// FindDevice returns the first device whose name contains name, ignoring case.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q", name)
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderList := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			btTag := ""
			if IsBluetooth(d.Name) {
				btTag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
			}
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
			} else {
				fmt.Printf("    %s%s\r\n", d.Name, btTag)
			}
		}
	}
	renderList()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		var done, abort bool
		cursor, done, abort = pickerKey(buf[:n], cursor, len(devices))
		switch {
		case abort:
			fmt.Print("\r\n")
			return nil, ErrSelectAborted
		case done:
			fmt.Print("\r\n")
			return &devices[cursor], nil
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderList()
	}
}

// pickerKey applies one key press to the picker cursor.
func pickerKey(key []byte, cursor, count int) (next int, done, abort bool) {
	up := func() int { return max(cursor-1, 0) }
	down := func() int { return min(cursor+1, count-1) }

	if len(key) == 1 {
		switch key[0] {
		case '\r':
			return cursor, true, false
		case 3, 'q': // Ctrl+C
			return cursor, false, true
		case 'j':
			return down(), false, false
		case 'k':
			return up(), false, false
		}
	}
	if len(key) == 3 && key[0] == 0x1b && key[1] == '[' {
		switch key[2] {
		case 'A':
			return up(), false, false
		case 'B':
			return down(), false, false
		}
	}
	return cursor, false, false
}
