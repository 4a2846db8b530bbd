//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"

	"murmur/overlay"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// the window's event loop needs the main thread in gui builds
	if overlay.GUIAvailable {
		os.Exit(run(os.Args[1:]))
	}
	code := 0
	mainthread.Init(func() { code = run(os.Args[1:]) })
	os.Exit(code)
}
