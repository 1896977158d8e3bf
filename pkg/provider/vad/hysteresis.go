package vad

// Hysteresis turns per-frame speech probabilities into start/continue/end
// events. Separate speech and silence thresholds plus minimum run lengths keep
// the output from flickering on borderline frames.
//
// The zero value is not usable; build one with [NewHysteresis].
type Hysteresis struct {
	speechThreshold  float64
	silenceThreshold float64
	startFrames      int
	endFrames        int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewHysteresis builds a tracker from cfg, applying defaults for zero frame
// counts.
func NewHysteresis(cfg Config) *Hysteresis {
	h := &Hysteresis{
		speechThreshold:  cfg.SpeechThreshold,
		silenceThreshold: cfg.SilenceThreshold,
		startFrames:      cfg.StartFrames,
		endFrames:        cfg.EndFrames,
	}
	if h.startFrames == 0 {
		h.startFrames = 3
	}
	if h.endFrames == 0 {
		h.endFrames = 30
	}
	return h
}

// Next consumes one frame's probability and returns the resulting event.
func (h *Hysteresis) Next(p float64) Event {
	ev := Event{Probability: p}
	if h.inSpeech {
		if p < h.silenceThreshold {
			h.silenceCount++
			if h.silenceCount >= h.endFrames {
				h.inSpeech = false
				h.silenceCount = 0
				ev.Type = SpeechEnd
				return ev
			}
		} else {
			h.silenceCount = 0
		}
		ev.Type = SpeechContinue
		return ev
	}

	if p >= h.speechThreshold {
		h.speechCount++
		if h.speechCount >= h.startFrames {
			h.inSpeech = true
			h.speechCount = 0
			ev.Type = SpeechStart
			return ev
		}
	} else {
		h.speechCount = 0
	}
	ev.Type = Silence
	return ev
}

// InSpeech reports whether the tracker is inside a speech segment.
func (h *Hysteresis) InSpeech() bool { return h.inSpeech }

// Reset returns the tracker to silence.
func (h *Hysteresis) Reset() {
	h.inSpeech = false
	h.speechCount = 0
	h.silenceCount = 0
}
