package audio

import "math"

const (
	floorDBFS = -60.0

	defaultAttack  = 0.6
	defaultRelease = 0.15
)

// LevelMeter turns raw sample blocks into a smoothed 0..1 loudness value
// suitable for a VU-style display. Rising levels follow quickly (attack),
// falling levels decay slowly (release).
//
// LevelMeter is not safe for concurrent use.
type LevelMeter struct {
	Attack  float64
	Release float64

	level float64
}

// NewLevelMeter returns a meter with the default attack and release factors.
func NewLevelMeter() *LevelMeter {
	return &LevelMeter{Attack: defaultAttack, Release: defaultRelease}
}

// Observe feeds samples into the meter and returns the new smoothed level.
func (m *LevelMeter) Observe(samples []float32) float64 {
	target := Loudness(RMS(samples))
	factor := m.Release
	if target > m.level {
		factor = m.Attack
	}
	m.level += (target - m.level) * factor
	return m.level
}

// Level returns the current smoothed level without observing new samples.
func (m *LevelMeter) Level() float64 { return m.level }

// Reset drops the meter back to silence.
func (m *LevelMeter) Reset() { m.level = 0 }

// Loudness maps an RMS amplitude onto [0, 1] using a dBFS scale floored at
// -60 dB.
func Loudness(rms float64) float64 {
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	if db <= floorDBFS {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return (db - floorDBFS) / -floorDBFS
}
