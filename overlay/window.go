//go:build gui

package overlay

import (
	"context"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// GUIAvailable reports whether this binary was built with the window.
const GUIAvailable = true

// Window is a frameless always-on-top eye near the bottom of the screen,
// with a tray menu to quit. Run must be called from the main goroutine.
type Window struct {
	info Info

	mu     sync.Mutex
	app    fyne.App
	window fyne.Window
	eye    *eyeWidget
	posX   int
	posY   int
}

func NewWindow(info Info) (Overlay, error) {
	return &Window{info: info}, nil
}

func (w *Window) ready() (fyne.Window, *eyeWidget, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window, w.eye, w.window != nil
}

func (w *Window) Show() error {
	win, eye, ok := w.ready()
	if !ok {
		return ErrNoWindow
	}
	eye.setActive(true)
	fyne.Do(func() {
		// position and stop it from stealing focus before it appears
		if g := glfw.GetCurrentContext(); g != nil {
			g.SetPos(w.posX, w.posY)
			g.SetAttrib(glfw.FocusOnShow, glfw.False)
			g.SetAttrib(glfw.Floating, glfw.True)
			g.Show()
			return
		}
		win.Show()
	})
	return nil
}

func (w *Window) Hide() error {
	win, eye, ok := w.ready()
	if !ok {
		return ErrNoWindow
	}
	eye.setActive(false)
	fyne.Do(win.Hide)
	return nil
}

func (w *Window) Update(s State) {
	if _, eye, ok := w.ready(); ok {
		eye.setLevel(s.Level(), s.Phase.Active())
	}
}

func (w *Window) Run(ctx context.Context) error {
	a := app.NewWithID("io.murmur.overlay")
	a.Settings().SetTheme(&darkTheme{})

	if desk, ok := a.(desktop.App); ok {
		title := "murmur"
		if w.info.Hotkey != "" {
			title += " (" + w.info.Hotkey + ")"
		}
		desk.SetSystemTrayMenu(fyne.NewMenu(title, fyne.NewMenuItem("Quit", a.Quit)))
		desk.SetSystemTrayIcon(theme.MediaRecordIcon())
	}

	screenW, screenH := 1920, 1080
	if m := glfw.GetPrimaryMonitor(); m != nil {
		_, _, screenW, screenH = m.GetWorkarea()
	}

	var win fyne.Window
	if drv, ok := a.Driver().(desktop.Driver); ok {
		win = drv.CreateSplashWindow()
	} else {
		win = a.NewWindow("murmur")
	}
	eye := newEyeWidget()
	win.SetContent(eye)
	win.SetFixedSize(true)
	win.SetPadded(false)
	size := eye.MinSize()
	win.Resize(size)

	w.mu.Lock()
	w.app, w.window, w.eye = a, win, eye
	w.posX = (screenW - int(size.Width)) / 2
	w.posY = screenH - int(size.Height) - 20
	w.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { fyne.Do(a.Quit) })
	defer stop()

	// stays hidden until the first Show
	a.Run()

	w.mu.Lock()
	w.window, w.eye = nil, nil
	w.mu.Unlock()
	eye.stop()
	return nil
}

type darkTheme struct{}

func (d *darkTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return color.RGBA{18, 18, 18, 255}
	case theme.ColorNameForeground:
		return color.RGBA{200, 200, 200, 255}
	}
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}

func (d *darkTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (d *darkTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (d *darkTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
