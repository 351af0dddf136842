// Package interact handles user interactions with the convergence plot.
package interact

import (
	"math"

	"gioui.org/io/pointer"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
)

// Viewport maps (iteration, value) data coordinates to screen pixels.
type Viewport struct {
	// Data window
	MinX, MaxX float64
	MinY, MaxY float64

	// Screen area
	Width, Height float32
	Margin        float32

	// Zoom on the value axis (1.0 = fitted)
	Zoom float64
}

// NewViewport creates a viewport with a unit data window.
func NewViewport() *Viewport {
	return &Viewport{MaxX: 1, MaxY: 1, Margin: 40, Zoom: 1}
}

// Reset drops the value zoom.
func (v *Viewport) Reset() {
	v.Zoom = 1
}

// Resize sets the screen area.
func (v *Viewport) Resize(width, height float32) {
	v.Width = width
	v.Height = height
}

// Fit sets the data window to cover the objective and the finite upper
// bounds of recs. Infinite bounds from the first rounds are left out.
func (v *Viewport) Fit(recs []algo.IterationRecord) {
	v.MinX, v.MaxX = 0, float64(max(len(recs)-1, 1))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range recs {
		for _, y := range []float64{r.Objective, r.UpperBound} {
			if math.IsInf(y, 0) || math.IsNaN(y) {
				continue
			}
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}
	}
	if lo > hi {
		lo, hi = 0, 1
	}
	if hi-lo < 1e-9 {
		pad := math.Max(math.Abs(hi)*0.05, 0.5)
		lo, hi = lo-pad, hi+pad
	}
	// zoom around the lowest value, where the bounds meet
	hi = lo + (hi-lo)/v.Zoom
	pad := (hi - lo) * 0.05
	v.MinY, v.MaxY = lo-pad, hi+pad
}

// DataToScreen converts data coordinates to screen coordinates. The value
// axis points up.
func (v *Viewport) DataToScreen(x, y float64) (screenX, screenY float32) {
	w := v.Width - 2*v.Margin
	h := v.Height - 2*v.Margin
	screenX = v.Margin + float32((x-v.MinX)/(v.MaxX-v.MinX))*w
	screenY = v.Margin + h - float32((y-v.MinY)/(v.MaxY-v.MinY))*h
	return
}

// ScreenToData converts screen coordinates to data coordinates.
func (v *Viewport) ScreenToData(screenX, screenY float32) (x, y float64) {
	w := v.Width - 2*v.Margin
	h := v.Height - 2*v.Margin
	x = v.MinX + float64((screenX-v.Margin)/w)*(v.MaxX-v.MinX)
	y = v.MinY + float64((v.Margin+h-screenY)/h)*(v.MaxY-v.MinY)
	return
}

// Contains reports whether the value lies inside the data window.
func (v *Viewport) Contains(y float64) bool {
	return y >= v.MinY && y <= v.MaxY
}

// HandleEvent processes scroll events for zooming the value axis.
func (v *Viewport) HandleEvent(ev pointer.Event) {
	if ev.Kind != pointer.Scroll || ev.Scroll.Y == 0 {
		return
	}
	zoomFactor := 1.1
	if ev.Scroll.Y > 0 {
		v.Zoom /= zoomFactor
	} else {
		v.Zoom *= zoomFactor
	}
	if v.Zoom < 1 {
		v.Zoom = 1
	}
	if v.Zoom > 1000 {
		v.Zoom = 1000
	}
}
