package app

import (
	"context"
	"time"

	"github.com/MrWong99/parley/internal/recording"
)

const cueLength = 90 * time.Millisecond

// beeper is satisfied by [audioctx.Manager].
type beeper interface {
	Beep(ctx context.Context, freq float64, d time.Duration)
}

// cuePlayer renders recording cues as short tones: rising for start,
// falling for stop.
type cuePlayer struct {
	out beeper
}

var _ recording.CuePlayer = cuePlayer{}

func (c cuePlayer) PlayCue(cue recording.Cue) {
	switch cue {
	case recording.CueStarted:
		c.out.Beep(context.Background(), 880, cueLength)
	case recording.CueStopped:
		c.out.Beep(context.Background(), 440, cueLength)
	}
}
