package subtitle

import "time"

// Cue is a single timed subtitle entry. Within a track, cues are sorted
// ascending by Start and indices run contiguously from 1.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Duration returns the on-screen time of the cue.
func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// Shift returns a copy of the cue moved by offset.
func (c Cue) Shift(offset time.Duration) Cue {
	c.Start += offset
	c.End += offset
	return c
}

// Renumber reassigns indices 1..N in place, in slice order.
func Renumber(cues []Cue) {
	for i := range cues {
		cues[i].Index = i + 1
	}
}
