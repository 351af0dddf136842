// Package state manages the visualization state.
package state

import (
	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
)

// State holds all visualization state.
type State struct {
	Name     string
	Run      *RunState
	Playback *PlaybackState
}

// NewState creates the state for the named instance.
func NewState(name string) *State {
	return &State{
		Name:     name,
		Run:      NewRunState(),
		Playback: NewPlaybackState(0),
	}
}

// Sync extends the playback to the recorded iterations. Called once per frame.
func (s *State) Sync() {
	s.Playback.Extend(float64(s.Run.Len() - 1))
}

// Current returns the iteration record under the cursor.
func (s *State) Current() (algo.IterationRecord, bool) {
	recs := s.Run.Records()
	if len(recs) == 0 {
		return algo.IterationRecord{}, false
	}
	i := min(max(s.Playback.Index(), 0), len(recs)-1)
	return recs[i], true
}
