//go:build gui

package overlay

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

// ANSI 256 palette entries from the terminal eye, as RGB.
var (
	rgbActive = []color.Color{
		color.RGBA{0, 0, 0, 255},
		color.RGBA{255, 255, 0, 255},
		color.RGBA{255, 215, 0, 255},
		color.RGBA{255, 175, 0, 255},
		color.RGBA{255, 135, 0, 255},
		color.RGBA{255, 0, 0, 255},
		color.RGBA{215, 0, 0, 255},
		color.RGBA{175, 0, 0, 255},
		color.RGBA{135, 0, 0, 255},
		color.RGBA{95, 0, 0, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{255, 255, 255, 255},
		color.RGBA{180, 180, 180, 255},
	}
	rgbIdle = []color.Color{
		color.RGBA{0, 0, 0, 255},
		color.RGBA{255, 255, 255, 255},
		color.RGBA{255, 215, 215, 255},
		color.RGBA{255, 175, 175, 255},
		color.RGBA{255, 135, 135, 255},
		color.RGBA{215, 0, 0, 255},
		color.RGBA{175, 0, 0, 255},
		color.RGBA{135, 0, 0, 255},
		color.RGBA{95, 0, 0, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{48, 48, 48, 255},
		color.RGBA{255, 255, 255, 255},
		color.RGBA{180, 180, 180, 255},
	}
)

type eyeWidget struct {
	widget.BaseWidget

	mu     sync.Mutex
	frame  int
	level  float64
	active bool
	done   chan struct{}
	once   sync.Once
}

func newEyeWidget() *eyeWidget {
	e := &eyeWidget{done: make(chan struct{})}
	e.ExtendBaseWidget(e)
	go e.animate()
	return e
}

func (e *eyeWidget) setActive(a bool) {
	e.mu.Lock()
	e.active = a
	if !a {
		e.level = 0
	}
	e.mu.Unlock()
}

// setLevel smooths fast on the way up and slower on the way down.
func (e *eyeWidget) setLevel(l float64, active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !active {
		e.level = 0
		return
	}
	if l > e.level {
		e.level = e.level*0.2 + l*0.8
	} else {
		e.level = e.level*0.7 + l*0.3
	}
}

func (e *eyeWidget) stop() { e.once.Do(func() { close(e.done) }) }

func (e *eyeWidget) animate() {
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			e.frame++
			e.mu.Unlock()
			fyne.Do(e.Refresh)
		}
	}
}

func (e *eyeWidget) MinSize() fyne.Size {
	return fyne.NewSize(float32(eyeWidth*8), float32(eyeHeight*16))
}

func (e *eyeWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &eyeRenderer{eye: e, rects: make([][]*canvas.Rectangle, eyeHeight)}
	for y := range r.rects {
		r.rects[y] = make([]*canvas.Rectangle, eyeWidth)
		for x := range r.rects[y] {
			r.rects[y][x] = canvas.NewRectangle(color.Black)
		}
	}
	return r
}

type eyeRenderer struct {
	eye   *eyeWidget
	rects [][]*canvas.Rectangle
}

func (r *eyeRenderer) Layout(size fyne.Size) {
	cellW := size.Width / float32(eyeWidth)
	cellH := size.Height / float32(eyeHeight)
	for y, row := range r.rects {
		for x, rect := range row {
			rect.Move(fyne.NewPos(float32(x)*cellW, float32(y)*cellH))
			rect.Resize(fyne.NewSize(cellW, cellH))
		}
	}
}

func (r *eyeRenderer) MinSize() fyne.Size { return r.eye.MinSize() }

func (r *eyeRenderer) Refresh() {
	r.eye.mu.Lock()
	frame, level, active := r.eye.frame, r.eye.level, r.eye.active
	r.eye.mu.Unlock()

	pixels := eyePixels(frame, level, active)
	colors := rgbIdle
	if active {
		colors = rgbActive
	}
	for cy, row := range r.rects {
		for cx, rect := range row {
			rect.FillColor = blend(colors[pixels[cy*2][cx]], colors[pixels[cy*2+1][cx]])
			rect.Refresh()
		}
	}
}

func blend(top, bot color.Color) color.Color {
	tr, tg, tb, _ := top.RGBA()
	br, bg, bb, _ := bot.RGBA()
	return color.RGBA{R: uint8((tr + br) / 512), G: uint8((tg + bg) / 512), B: uint8((tb + bb) / 512), A: 255}
}

func (r *eyeRenderer) Objects() []fyne.CanvasObject {
	objs := make([]fyne.CanvasObject, 0, eyeWidth*eyeHeight)
	for _, row := range r.rects {
		for _, rect := range row {
			objs = append(objs, rect)
		}
	}
	return objs
}

func (r *eyeRenderer) Destroy() { r.eye.stop() }
