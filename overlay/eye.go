package overlay

import "math"

const (
	eyeWidth    = 44
	eyeHeight   = 15 // character rows; every row holds two pixels
	pixelHeight = eyeHeight * 2
)

type ring struct {
	radius     float64
	breatheAmt float64
	colorIdx   int
}

var rings = []ring{
	{0.6, 0.10, 1},
	{1.3, 0.12, 2},
	{2.0, 0.15, 3},
	{2.8, 0.35, 4}, // red rings react the most
	{3.5, 0.40, 5},
	{4.2, 0.38, 6},
	{5.0, 0.30, 7},
	{5.8, 0.15, 8},
	{6.5, 0.03, 9},
	{7.2, 0.0, 10},
	{8.0, 0.0, 11},
	{10.0, 0.0, 12},
	{12.0, 0.0, 13},
}

type spot struct {
	ox, oy float64
	radius float64
	color  int
}

// glass reflections
var spots = func() []spot {
	const dSide, dSide2, dTop, dTop2 = 9.0, 7.2, 10.0, 8.2
	return []spot{
		{-dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{-dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -dTop, 0.8, 14},
		{0, -dTop2, 0.6, 15},
		{dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
}()

// eyePixels draws the eye as palette indices, eyeWidth x pixelHeight. The
// rings breathe with frame and swell with level while active.
func eyePixels(frame int, level float64, active bool) [][]int {
	centerX := float64(eyeWidth) / 2
	centerY := float64(pixelHeight) / 2

	var breathe float64
	if active {
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	} else {
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, pixelHeight)
	for y := range pixels {
		pixels[y] = make([]int, eyeWidth)
		for x := range pixels[y] {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := min(r.radius+breathe*r.breatheAmt*20, 10.0)
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	for y := range pixels {
		for x := range pixels[y] {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}
	return pixels
}
