//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes raw mode left behind by evdev readers or a crashed picker.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
