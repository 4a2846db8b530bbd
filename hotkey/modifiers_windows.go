package hotkey

import "golang.design/x/hotkey"

var modifiers = map[string]hotkey.Modifier{
	"Control": hotkey.ModCtrl,
	"Shift":   hotkey.ModShift,
	"Alt":     hotkey.ModAlt,
	"Meta":    hotkey.ModWin,
}
