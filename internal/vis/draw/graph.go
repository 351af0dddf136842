// Package draw provides rendering functions for visualization.
package draw

import (
	"image"
	"image/color"
	"math"

	"gioui.org/f32"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/interact"
)

// Colors for the convergence plot
var (
	ColorObjective = color.NRGBA{R: 80, G: 180, B: 100, A: 255}
	ColorBound     = color.NRGBA{R: 100, G: 140, B: 220, A: 255}
	ColorGap       = color.NRGBA{R: 100, G: 140, B: 220, A: 40}
	ColorCursor    = color.NRGBA{R: 255, G: 200, B: 80, A: 255}
	ColorGrid      = color.NRGBA{R: 50, G: 55, B: 60, A: 255}
)

// DrawBounds renders the master objective and the upper bound per iteration,
// shading the gap between them and marking the iteration at cursor.
func DrawBounds(gtx layout.Context, recs []algo.IterationRecord, vp *interact.Viewport, cursor int) {
	DrawGrid(gtx, vp, ColorGrid)

	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		if vp.Contains(prev.UpperBound) && vp.Contains(cur.UpperBound) {
			drawGapBand(gtx, vp, i-1, prev, i, cur)
			DrawSegment(gtx, vp, float64(i-1), prev.UpperBound, float64(i), cur.UpperBound, ColorBound)
		}
		DrawSegment(gtx, vp, float64(i-1), prev.Objective, float64(i), cur.Objective, ColorObjective)
	}
	for i, r := range recs {
		DrawMarker(gtx, vp, float64(i), r.Objective, ColorObjective, 3)
		if vp.Contains(r.UpperBound) {
			DrawMarker(gtx, vp, float64(i), r.UpperBound, ColorBound, 3)
		}
	}

	if cursor >= 0 && cursor < len(recs) {
		sx, _ := vp.DataToScreen(float64(cursor), 0)
		rect := image.Rect(int(sx), int(vp.Margin), int(sx)+1, int(vp.Height-vp.Margin))
		paint.FillShape(gtx.Ops, ColorCursor, clip.Rect(rect).Op())
		DrawMarker(gtx, vp, float64(cursor), recs[cursor].Objective, ColorCursor, 5)
	}
}

func drawGapBand(gtx layout.Context, vp *interact.Viewport, i0 int, r0 algo.IterationRecord, i1 int, r1 algo.IterationRecord) {
	x0, lo0 := vp.DataToScreen(float64(i0), r0.Objective)
	_, hi0 := vp.DataToScreen(float64(i0), r0.UpperBound)
	x1, lo1 := vp.DataToScreen(float64(i1), r1.Objective)
	_, hi1 := vp.DataToScreen(float64(i1), r1.UpperBound)

	var path clip.Path
	path.Begin(gtx.Ops)
	path.MoveTo(f32.Pt(x0, hi0))
	path.LineTo(f32.Pt(x1, hi1))
	path.LineTo(f32.Pt(x1, lo1))
	path.LineTo(f32.Pt(x0, lo0))
	path.Close()

	paint.FillShape(gtx.Ops, ColorGap, clip.Outline{Path: path.End()}.Op())
}

// DrawMarker draws a data point as a filled circle.
func DrawMarker(gtx layout.Context, vp *interact.Viewport, x, y float64, col color.NRGBA, radius float32) {
	screenX, screenY := vp.DataToScreen(x, y)

	center := f32.Pt(screenX, screenY)
	r := radius

	var path clip.Path
	path.Begin(gtx.Ops)
	path.Move(f32.Pt(center.X+r, center.Y))

	// Approximate circle with segments
	segments := 16
	for i := 1; i <= segments; i++ {
		angle := float64(i) * 2 * math.Pi / float64(segments)
		px := center.X + r*float32(math.Cos(angle))
		py := center.Y + r*float32(math.Sin(angle))
		path.Line(f32.Pt(px-path.Pos().X, py-path.Pos().Y))
	}
	path.Close()

	paint.FillShape(gtx.Ops, col, clip.Outline{Path: path.End()}.Op())
}

// DrawSegment draws a line between two data points.
func DrawSegment(gtx layout.Context, vp *interact.Viewport, xa, ya, xb, yb float64, col color.NRGBA) {
	x1, y1 := vp.DataToScreen(xa, ya)
	x2, y2 := vp.DataToScreen(xb, yb)

	dx := x2 - x1
	dy := y2 - y1
	length := float32(math.Sqrt(float64(dx*dx + dy*dy)))
	if length < 0.1 {
		return
	}

	dx /= length
	dy /= length

	// Perpendicular for line width
	width := float32(2.0)
	px := -dy * width / 2
	py := dx * width / 2

	var path clip.Path
	path.Begin(gtx.Ops)
	path.MoveTo(f32.Pt(x1+px, y1+py))
	path.LineTo(f32.Pt(x2+px, y2+py))
	path.LineTo(f32.Pt(x2-px, y2-py))
	path.LineTo(f32.Pt(x1-px, y1-py))
	path.Close()

	paint.FillShape(gtx.Ops, col, clip.Outline{Path: path.End()}.Op())
}

// GridStep returns a round spacing giving roughly five lines over span.
func GridStep(span float64) float64 {
	if span <= 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		return 1
	}
	raw := span / 5
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	switch r := raw / mag; {
	case r < 1.5:
		return mag
	case r < 3.5:
		return 2 * mag
	case r < 7.5:
		return 5 * mag
	default:
		return 10 * mag
	}
}

// DrawGrid draws horizontal value lines and vertical iteration lines.
func DrawGrid(gtx layout.Context, vp *interact.Viewport, col color.NRGBA) {
	left, right := int(vp.Margin), int(vp.Width-vp.Margin)
	top, bottom := int(vp.Margin), int(vp.Height-vp.Margin)

	step := GridStep(vp.MaxY - vp.MinY)
	for y := math.Ceil(vp.MinY/step) * step; y <= vp.MaxY; y += step {
		_, sy := vp.DataToScreen(vp.MinX, y)
		rect := image.Rect(left, int(sy), right, int(sy)+1)
		paint.FillShape(gtx.Ops, col, clip.Rect(rect).Op())
	}

	xStep := math.Max(1, GridStep(vp.MaxX-vp.MinX))
	for x := math.Ceil(vp.MinX/xStep) * xStep; x <= vp.MaxX; x += xStep {
		sx, _ := vp.DataToScreen(x, vp.MinY)
		rect := image.Rect(int(sx), top, int(sx)+1, bottom)
		paint.FillShape(gtx.Ops, col, clip.Rect(rect).Op())
	}
}
