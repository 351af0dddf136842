// Package widgets provides Gio UI widgets for the visualizer.
package widgets

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"gioui.org/io/event"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/widget/material"

	"github.com/elektrokombinacija/cgcp-planner/internal/vis/draw"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/interact"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/state"
)

// Plot is the convergence view: bounds per iteration.
type Plot struct {
	state    *state.State
	viewport *interact.Viewport
}

// NewPlot creates a new plot widget.
func NewPlot(st *state.State, vp *interact.Viewport) *Plot {
	return &Plot{
		state:    st,
		viewport: vp,
	}
}

// Layout renders the plot.
func (p *Plot) Layout(gtx layout.Context, th *material.Theme) layout.Dimensions {
	bounds := gtx.Constraints.Max
	defer clip.Rect(image.Rect(0, 0, bounds.X, bounds.Y)).Push(gtx.Ops).Pop()

	paint.Fill(gtx.Ops, color.NRGBA{R: 25, G: 28, B: 32, A: 255})

	p.handlePointerEvents(gtx)

	recs := p.state.Run.Records()
	p.viewport.Resize(float32(bounds.X), float32(bounds.Y))
	p.viewport.Fit(recs)
	draw.DrawBounds(gtx, recs, p.viewport, p.state.Playback.Index())

	p.drawAxisLabels(gtx, th)
	p.drawStatus(gtx, th)

	return layout.Dimensions{Size: bounds}
}

func (p *Plot) drawAxisLabels(gtx layout.Context, th *material.Theme) {
	vp := p.viewport
	step := draw.GridStep(vp.MaxY - vp.MinY)
	for y := math.Ceil(vp.MinY/step) * step; y <= vp.MaxY; y += step {
		_, sy := vp.DataToScreen(vp.MinX, y)
		p.label(gtx, th, image.Pt(2, int(sy)-14), fmt.Sprintf("%.4g", y), color.NRGBA{R: 150, G: 150, B: 150, A: 255})
	}
}

func (p *Plot) drawStatus(gtx layout.Context, th *material.Theme) {
	run := p.state.Run
	lines := []string{p.state.Name}
	if rec, ok := p.state.Current(); ok {
		lines = append(lines,
			fmt.Sprintf("iteration %d  columns %d  %s", rec.Iteration, rec.Columns, rec.Elapsed.Round(time.Millisecond)),
			fmt.Sprintf("objective %.6f  bound %.6f  gap %.3g", rec.Objective, rec.UpperBound, rec.Gap),
			fmt.Sprintf("duals %v  dual distance %.3g", formatDuals(rec.Duals), rec.DualDistance),
		)
	}
	switch {
	case run.IsActive():
		lines = append(lines, "running")
	case run.Err() != nil:
		lines = append(lines, "error: "+run.Err().Error())
	case run.Summary() != nil:
		sum := run.Summary()
		lines = append(lines, fmt.Sprintf("%s stopped (%s) after %d iterations", sum.Algorithm, sum.Stop, sum.Iterations))
	}
	if sol := run.Solution(); sol != nil {
		lines = append(lines, fmt.Sprintf("expected reward %.6f  meets limits %t", sol.ExpectedReward(), sol.MeetsLimits(1e-6)))
	}

	x := int(p.viewport.Margin) + 10
	for i, line := range lines {
		p.label(gtx, th, image.Pt(x, 8+18*i), line, color.NRGBA{R: 220, G: 220, B: 220, A: 255})
	}
}

func (p *Plot) label(gtx layout.Context, th *material.Theme, at image.Point, txt string, col color.NRGBA) {
	defer op.Offset(at).Push(gtx.Ops).Pop()
	l := material.Label(th, 12, txt)
	l.Color = col
	gtx.Constraints.Min = image.Point{}
	l.Layout(gtx)
}

func formatDuals(duals []float64) string {
	if len(duals) > 4 {
		return fmt.Sprintf("%.3g ... (%d)", duals[:4], len(duals))
	}
	return fmt.Sprintf("%.3g", duals)
}

func (p *Plot) handlePointerEvents(gtx layout.Context) {
	area := clip.Rect(image.Rect(0, 0, gtx.Constraints.Max.X, gtx.Constraints.Max.Y)).Push(gtx.Ops)
	event.Op(gtx.Ops, p)
	area.Pop()

	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target:  p,
			Kinds:   pointer.Press | pointer.Scroll,
			ScrollY: pointer.ScrollRange{Min: -100, Max: 100},
		})
		if !ok {
			break
		}
		pe, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		p.viewport.HandleEvent(pe)
		if pe.Kind == pointer.Press && pe.Buttons.Contain(pointer.ButtonPrimary) {
			x, _ := p.viewport.ScreenToData(pe.Position.X, pe.Position.Y)
			p.state.Playback.Pause()
			p.state.Playback.Seek(math.Round(x))
		}
	}
}
