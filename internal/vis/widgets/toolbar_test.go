package widgets

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/state"
)

func TestToolbar_RunControls(t *testing.T) {
	st := state.NewState("toy")
	tb := NewToolbar(st)
	assert.Empty(t, tb.Algorithm())

	var started []string
	tb.Algorithms = []string{"colgen", "cmdp"}
	tb.OnRun = func(name string) { started = append(started, name) }

	selectBtn, runBtn := tb.run[0], tb.run[1]
	assert.Equal(t, "colgen", selectBtn.label())
	selectBtn.action()
	assert.Equal(t, "cmdp", tb.Algorithm())
	selectBtn.action()
	assert.Equal(t, "colgen", tb.Algorithm())

	runBtn.action()
	assert.Equal(t, []string{"colgen"}, started)

	st.Run.Start()
	assert.Equal(t, "Running", runBtn.label())
	runBtn.action()
	assert.Len(t, started, 1, "no second run while one is active")
}

func TestToolbar_PlaybackControls(t *testing.T) {
	st := state.NewState("toy")
	for i := 0; i < 5; i++ {
		st.Run.Add(algo.IterationRecord{Iteration: i})
	}
	st.Sync()
	tb := NewToolbar(st)

	play := tb.playback[1]
	assert.Equal(t, ">", play.label())
	play.action()
	assert.True(t, st.Playback.Playing)
	assert.Equal(t, "||", play.label())

	tb.playback[3].action()
	assert.Equal(t, 0, st.Playback.Index())
	tb.playback[2].action()
	assert.Equal(t, 1, st.Playback.Index())

	speed := st.Playback.Speed
	tb.speed[1].action()
	assert.InDelta(t, speed*1.5, st.Playback.Speed, 1e-9)

	live := tb.speed[2]
	assert.False(t, live.active())
	live.action()
	assert.True(t, live.active())
	assert.Equal(t, 4, st.Playback.Index())
}
