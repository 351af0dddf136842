// Package vis implements a Gio-based convergence viewer for the planner.
package vis

import (
	"context"
	"image/color"
	"log/slog"
	"time"

	"gioui.org/app"
	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/widget/material"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/interact"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/observer"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/state"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/widgets"
)

// Planner runs the named algorithm and reports progress to obs.
type Planner func(ctx context.Context, algorithm string, obs algo.Observer) (*core.Solution, error)

// App is the main visualization application.
type App struct {
	state    *state.State
	theme    *material.Theme
	plot     *widgets.Plot
	timeline *widgets.Timeline
	toolbar  *widgets.Toolbar
	viewport *interact.Viewport
	logger   *slog.Logger

	planner Planner
	window  *app.Window
	ctx     context.Context

	autostart string
}

// NewApp creates a viewer for the named instance. A nil planner gives a
// replay-only viewer, fed through Load.
func NewApp(name string, algorithms []string, planner Planner, logger *slog.Logger) *App {
	th := material.NewTheme()
	st := state.NewState(name)
	vp := interact.NewViewport()

	a := &App{
		state:    st,
		theme:    th,
		plot:     widgets.NewPlot(st, vp),
		timeline: widgets.NewTimeline(st),
		toolbar:  widgets.NewToolbar(st),
		viewport: vp,
		logger:   logger,
		planner:  planner,
		ctx:      context.Background(),
	}
	if planner != nil {
		a.toolbar.Algorithms = algorithms
		a.toolbar.OnRun = a.start
	}
	return a
}

// Load shows recorded iterations, as read back from a run log.
func (a *App) Load(records []algo.IterationRecord, sum *algo.RunSummary) {
	a.state.Run.Load(records, sum)
	a.state.Playback.Reset()
	a.state.Sync()
}

// Autostart makes Run launch algorithm as soon as the window is up.
func (a *App) Autostart(algorithm string) {
	a.autostart = algorithm
}

func (a *App) start(algorithm string) {
	if a.planner == nil || a.state.Run.IsActive() {
		return
	}
	a.state.Run.Start()
	a.state.Playback.Follow = true
	obs := observer.NewRunObserver(a.state.Run, a.invalidate)
	ctx := a.ctx

	go func() {
		started := time.Now()
		sol, err := a.planner(ctx, algorithm, obs)
		if err != nil {
			a.logger.Error("planner failed", slog.String("algorithm", algorithm), slog.Any("error", err))
			a.state.Run.Fail(err)
			a.invalidate()
			return
		}
		// planners without a decomposition loop never report a finish
		if a.state.Run.IsActive() {
			obj := sol.ExpectedReward()
			a.state.Run.Finish(algo.RunSummary{
				Algorithm:  algorithm,
				Objective:  obj,
				UpperBound: obj,
				Elapsed:    time.Since(started),
			}, sol)
		}
		a.logger.Info("planner finished", slog.String("algorithm", algorithm), slog.Float64("reward", sol.ExpectedReward()))
		a.invalidate()
	}()
}

func (a *App) invalidate() {
	if a.window != nil {
		a.window.Invalidate()
	}
}

// Run starts the application event loop. A planner run in flight is
// cancelled when the window closes.
func (a *App) Run(w *app.Window) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.ctx = ctx
	a.window = w
	if a.autostart != "" {
		a.start(a.autostart)
	}

	var ops op.Ops

	// Event filters for keyboard input
	tag := new(int)

	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err

		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)

			for {
				ev, ok := gtx.Event(key.Filter{Focus: tag, Optional: key.ModCtrl | key.ModShift})
				if !ok {
					break
				}
				if ke, ok := ev.(key.Event); ok && ke.State == key.Press {
					a.handleKeyEvent(ke)
				}
			}

			// Request focus for keyboard input
			event.Op(gtx.Ops, tag)

			a.state.Sync()
			a.state.Playback.Advance(time.Now())

			a.layout(gtx)
			e.Frame(gtx.Ops)

			if a.state.Playback.Playing {
				w.Invalidate()
			}
		}
	}
}

func (a *App) handleKeyEvent(e key.Event) {
	pb := a.state.Playback
	switch e.Name {
	case key.NameSpace:
		pb.TogglePlay()
	case key.NameLeftArrow:
		pb.StepBack()
	case key.NameRightArrow:
		pb.StepForward()
	case key.NameHome:
		pb.Reset()
	case key.NameEnd:
		pb.Seek(pb.Last)
	case "L":
		pb.Follow = true
		a.state.Sync()
	case "R":
		a.viewport.Reset()
	case key.NameReturn:
		if e.Modifiers.Contain(key.ModCtrl) {
			a.start(a.toolbar.Algorithm())
		}
	}
}

func (a *App) layout(gtx layout.Context) layout.Dimensions {
	// Fill background
	paint.Fill(gtx.Ops, color.NRGBA{R: 30, G: 30, B: 35, A: 255})

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		// Toolbar at top
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.toolbar.Layout(gtx, a.theme)
		}),
		// Convergence plot
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return a.plot.Layout(gtx, a.theme)
		}),
		// Timeline at bottom
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.timeline.Layout(gtx, a.theme)
		}),
	)
}
