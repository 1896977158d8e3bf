package vad

import "testing"

func TestHysteresis_StartAndEnd(t *testing.T) {
	t.Parallel()

	h := NewHysteresis(Config{SpeechThreshold: 0.5, SilenceThreshold: 0.3, StartFrames: 2, EndFrames: 3})

	steps := []struct {
		p    float64
		want EventType
	}{
		{0.9, Silence},
		{0.1, Silence}, // run broken
		{0.9, Silence},
		{0.9, SpeechStart},
		{0.4, SpeechContinue}, // between thresholds keeps speech alive
		{0.1, SpeechContinue},
		{0.1, SpeechContinue},
		{0.1, SpeechEnd},
		{0.1, Silence},
	}
	for i, s := range steps {
		if got := h.Next(s.p).Type; got != s.want {
			t.Fatalf("step %d (p=%.1f): got %s, want %s", i, s.p, got, s.want)
		}
	}
}

func TestHysteresis_Reset(t *testing.T) {
	t.Parallel()

	h := NewHysteresis(Config{SpeechThreshold: 0.5, SilenceThreshold: 0.3, StartFrames: 1})
	if got := h.Next(1).Type; got != SpeechStart {
		t.Fatalf("got %s, want speech_start", got)
	}
	h.Reset()
	if h.InSpeech() {
		t.Error("InSpeech after Reset = true")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := Config{SampleRate: 0, FrameSizeMs: -1, SpeechThreshold: 0.2, SilenceThreshold: 0.4}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error")
	}

	if got := DefaultConfig().FrameBytes(); got != 640 {
		t.Errorf("FrameBytes = %d, want 640", got)
	}
}
