package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
)

func records(n int) []algo.IterationRecord {
	recs := make([]algo.IterationRecord, n)
	for i := range recs {
		recs[i] = algo.IterationRecord{Iteration: i, Objective: float64(i), UpperBound: float64(2*n - i)}
	}
	return recs
}

func TestPlayback_AdvanceStopsAtLast(t *testing.T) {
	p := NewPlaybackState(10)
	p.Speed = 4
	p.TogglePlay()
	require.True(t, p.Playing)
	assert.False(t, p.Follow)

	start := p.lastUpdate
	p.Advance(start.Add(time.Second))
	assert.InDelta(t, 4.0, p.Position, 1e-9)
	assert.Equal(t, 4, p.Index())

	p.Advance(start.Add(10 * time.Second))
	assert.Equal(t, 10.0, p.Position)
	assert.False(t, p.Playing)
	assert.Equal(t, 1.0, p.Progress())
}

func TestPlayback_StepAndSeek(t *testing.T) {
	p := NewPlaybackState(3)
	p.Follow = false
	p.StepForward()
	p.StepForward()
	assert.Equal(t, 2, p.Index())
	p.StepBack()
	assert.Equal(t, 1, p.Index())

	p.Seek(-5)
	assert.Equal(t, 0.0, p.Position)
	p.Seek(99)
	assert.Equal(t, 3.0, p.Position)

	p.SetSpeed(1000)
	assert.Equal(t, 100.0, p.Speed)
	p.SetSpeed(0)
	assert.Equal(t, 0.5, p.Speed)
}

func TestPlayback_ExtendFollows(t *testing.T) {
	p := NewPlaybackState(0)
	p.Extend(5)
	assert.Equal(t, 5.0, p.Position)

	p.Seek(2)
	p.Extend(8)
	assert.Equal(t, 2.0, p.Position, "seeking stops following")

	p.Extend(1)
	assert.Equal(t, 1.0, p.Position)
	p.Extend(-1)
	assert.Equal(t, 0.0, p.Last)
}

func TestState_SyncAndCurrent(t *testing.T) {
	s := NewState("toy")
	_, ok := s.Current()
	assert.False(t, ok)

	s.Run.Start()
	for _, r := range records(4) {
		s.Run.Add(r)
	}
	s.Sync()
	rec, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, 3, rec.Iteration)

	s.Playback.Seek(1)
	rec, _ = s.Current()
	assert.Equal(t, 1, rec.Iteration)
}

func TestRunState_Lifecycle(t *testing.T) {
	r := NewRunState()
	r.Start()
	assert.True(t, r.IsActive())

	duals := []float64{1, 2}
	r.Add(algo.IterationRecord{Duals: duals})
	duals[0] = 42
	assert.Equal(t, 1.0, r.Records()[0].Duals[0], "records keep their own duals")

	r.Finish(algo.RunSummary{Algorithm: "colgen", Stop: algo.StopGap}, nil)
	assert.False(t, r.IsActive())
	require.NotNil(t, r.Summary())
	assert.Equal(t, algo.StopGap, r.Summary().Stop)

	r.Start()
	assert.Zero(t, r.Len())
	assert.Nil(t, r.Summary())

	boom := errors.New("boom")
	r.Fail(boom)
	assert.False(t, r.IsActive())
	assert.ErrorIs(t, r.Err(), boom)

	r.Load(records(3), nil)
	assert.Equal(t, 3, r.Len())
	assert.NoError(t, r.Err())
}
