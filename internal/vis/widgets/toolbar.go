package widgets

import (
	"image"
	"image/color"

	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"github.com/elektrokombinacija/cgcp-planner/internal/vis/state"
)

// control is one toolbar button. active may be nil.
type control struct {
	click  widget.Clickable
	label  func() string
	active func() bool
	action func()
}

// Toolbar provides playback and run controls.
type Toolbar struct {
	state *state.State

	// Algorithms lists the planners the run button can start.
	Algorithms []string
	// OnRun starts a planner run; nil hides the run controls.
	OnRun func(algorithm string)

	selected int

	playback []*control
	speed    []*control
	run      []*control
}

func fixed(s string) func() string { return func() string { return s } }

// NewToolbar creates a new toolbar.
func NewToolbar(st *state.State) *Toolbar {
	t := &Toolbar{state: st}
	pb := st.Playback

	t.playback = []*control{
		{label: fixed("|<"), action: pb.StepBack},
		{label: func() string {
			if pb.Playing {
				return "||"
			}
			return ">"
		}, action: pb.TogglePlay},
		{label: fixed(">|"), action: pb.StepForward},
		{label: fixed("[]"), action: pb.Reset},
	}
	t.speed = []*control{
		{label: fixed("-"), action: func() { pb.SetSpeed(pb.Speed / 1.5) }},
		{label: fixed("+"), action: func() { pb.SetSpeed(pb.Speed * 1.5) }},
		{label: fixed("Live"), active: func() bool { return pb.Follow }, action: func() {
			pb.Follow = !pb.Follow
			st.Sync()
		}},
	}
	t.run = []*control{
		{label: t.Algorithm, action: func() {
			if len(t.Algorithms) > 0 {
				t.selected = (t.selected + 1) % len(t.Algorithms)
			}
		}},
		{label: func() string {
			if st.Run.IsActive() {
				return "Running"
			}
			return "Run"
		}, active: st.Run.IsActive, action: func() {
			if t.OnRun != nil && !st.Run.IsActive() {
				t.OnRun(t.Algorithm())
			}
		}},
	}
	return t
}

// Algorithm returns the planner the run button starts.
func (t *Toolbar) Algorithm() string {
	if len(t.Algorithms) == 0 {
		return ""
	}
	return t.Algorithms[t.selected%len(t.Algorithms)]
}

// Layout renders the toolbar.
func (t *Toolbar) Layout(gtx layout.Context, th *material.Theme) layout.Dimensions {
	height := 48

	// Background
	rect := image.Rect(0, 0, gtx.Constraints.Max.X, height)
	paint.FillShape(gtx.Ops, color.NRGBA{R: 40, G: 43, B: 48, A: 255}, clip.Rect(rect).Op())

	t.handleClicks(gtx)

	return layout.Inset{Left: unit.Dp(10), Right: unit.Dp(10), Top: unit.Dp(8), Bottom: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle, Spacing: layout.SpaceStart}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return t.layoutGroup(gtx, th, t.playback)
			}),
			layout.Rigid(t.layoutSeparator),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return t.layoutGroup(gtx, th, t.speed)
			}),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return layout.Dimensions{}
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				if t.OnRun == nil {
					return layout.Dimensions{}
				}
				return t.layoutGroup(gtx, th, t.run)
			}),
		)
	})
}

func (t *Toolbar) layoutGroup(gtx layout.Context, th *material.Theme, group []*control) layout.Dimensions {
	children := make([]layout.FlexChild, 0, 2*len(group))
	for i, c := range group {
		c := c
		if i > 0 {
			children = append(children, layout.Rigid(layout.Spacer{Width: unit.Dp(4)}.Layout))
		}
		children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return t.button(gtx, th, c)
		}))
	}
	return layout.Flex{Axis: layout.Horizontal, Spacing: layout.SpaceStart}.Layout(gtx, children...)
}

func (t *Toolbar) layoutSeparator(gtx layout.Context) layout.Dimensions {
	return layout.Inset{Left: unit.Dp(8), Right: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		rect := image.Rect(0, 0, 1, 24)
		paint.FillShape(gtx.Ops, color.NRGBA{R: 60, G: 65, B: 70, A: 255}, clip.Rect(rect).Op())
		return layout.Dimensions{Size: image.Point{X: 1, Y: 24}}
	})
}

func (t *Toolbar) button(gtx layout.Context, th *material.Theme, c *control) layout.Dimensions {
	bg := color.NRGBA{R: 55, G: 58, B: 65, A: 255}
	if c.active != nil && c.active() {
		bg = color.NRGBA{R: 80, G: 130, B: 180, A: 255}
	}
	if c.click.Hovered() {
		bg.R = min(bg.R, 240) + 15
		bg.G = min(bg.G, 240) + 15
		bg.B = min(bg.B, 240) + 15
	}
	text := c.label()

	return c.click.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Background{}.Layout(gtx,
			func(gtx layout.Context) layout.Dimensions {
				gtx.Constraints.Min = image.Point{X: 32, Y: 28}
				rect := image.Rect(0, 0, gtx.Constraints.Min.X, gtx.Constraints.Min.Y)
				paint.FillShape(gtx.Ops, bg, clip.Rect(rect).Op())
				return layout.Dimensions{Size: gtx.Constraints.Min}
			},
			func(gtx layout.Context) layout.Dimensions {
				return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					label := material.Label(th, 12, text)
					label.Color = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
					return label.Layout(gtx)
				})
			},
		)
	})
}

func (t *Toolbar) handleClicks(gtx layout.Context) {
	for _, group := range [][]*control{t.playback, t.speed, t.run} {
		for _, c := range group {
			for c.click.Clicked(gtx) {
				c.action()
			}
		}
	}
}
