package state

import "time"

// PlaybackState steps through the iterations of a run.
type PlaybackState struct {
	Position float64 // Current iteration, fractional while playing
	Last     float64 // Index of the last recorded iteration
	Speed    float64 // Iterations per second
	Playing  bool
	// Follow keeps the cursor on the newest iteration while a run is live.
	Follow     bool
	lastUpdate time.Time
}

// NewPlaybackState creates a playback over last+1 iterations.
func NewPlaybackState(last float64) *PlaybackState {
	return &PlaybackState{
		Last:       last,
		Speed:      5,
		Follow:     true,
		lastUpdate: time.Now(),
	}
}

// TogglePlay toggles playback on/off.
func (p *PlaybackState) TogglePlay() {
	p.Playing = !p.Playing
	if p.Playing {
		p.lastUpdate = time.Now()
		p.Follow = false
		if p.Position >= p.Last {
			p.Position = 0
		}
	}
}

// Pause stops playback.
func (p *PlaybackState) Pause() {
	p.Playing = false
}

// Reset rewinds to the first iteration.
func (p *PlaybackState) Reset() {
	p.Position = 0
	p.Playing = false
	p.Follow = false
}

// Extend grows the playback to last, moving the cursor along when following.
func (p *PlaybackState) Extend(last float64) {
	if last < 0 {
		last = 0
	}
	p.Last = last
	if p.Follow {
		p.Position = last
	}
	if p.Position > last {
		p.Position = last
	}
}

// Advance moves the cursor by the time elapsed until now.
func (p *PlaybackState) Advance(now time.Time) {
	if !p.Playing {
		return
	}

	elapsed := now.Sub(p.lastUpdate).Seconds()
	p.lastUpdate = now

	p.Position += elapsed * p.Speed

	if p.Position >= p.Last {
		p.Position = p.Last
		p.Playing = false
	}
}

// Seek sets the cursor, clamped to the recorded iterations.
func (p *PlaybackState) Seek(pos float64) {
	p.Follow = false
	if pos < 0 {
		pos = 0
	}
	if pos > p.Last {
		pos = p.Last
	}
	p.Position = pos
}

// StepForward moves to the next iteration.
func (p *PlaybackState) StepForward() {
	p.Pause()
	p.Seek(float64(p.Index() + 1))
}

// StepBack moves to the previous iteration.
func (p *PlaybackState) StepBack() {
	p.Pause()
	p.Seek(float64(p.Index() - 1))
}

// SetSpeed sets the playback speed.
func (p *PlaybackState) SetSpeed(speed float64) {
	if speed < 0.5 {
		speed = 0.5
	}
	if speed > 100 {
		speed = 100
	}
	p.Speed = speed
}

// Index returns the iteration under the cursor.
func (p *PlaybackState) Index() int {
	return int(p.Position)
}

// Progress returns current progress as 0-1.
func (p *PlaybackState) Progress() float64 {
	if p.Last <= 0 {
		return 0
	}
	return p.Position / p.Last
}
