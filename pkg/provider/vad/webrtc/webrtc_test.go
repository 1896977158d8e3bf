package webrtc

import (
	"testing"

	"github.com/MrWong99/parley/pkg/provider/vad"
)

func TestNewSession_RejectsUnsupportedFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{name: "44.1k rate", cfg: withRate(vad.DefaultConfig(), 44100)},
		{name: "25ms frames", cfg: withFrame(vad.DefaultConfig(), 25)},
		{name: "invalid thresholds", cfg: vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 0.1, SilenceThreshold: 0.9}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New().NewSession(tc.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSession_SilenceAndFrameSize(t *testing.T) {
	t.Parallel()

	sess, err := New(WithMode(3)).NewSession(vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	if _, err := sess.ProcessFrame(make([]byte, 100)); err == nil {
		t.Error("expected error for short frame")
	}

	ev, err := sess.ProcessFrame(make([]byte, vad.DefaultConfig().FrameBytes()))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.Silence {
		t.Errorf("digital silence classified as %s", ev.Type)
	}

	_ = sess.Close()
	if _, err := sess.ProcessFrame(make([]byte, vad.DefaultConfig().FrameBytes())); err != ErrClosed {
		t.Errorf("ProcessFrame after Close = %v, want ErrClosed", err)
	}
}

func TestWithMode_Clamps(t *testing.T) {
	if got := New(WithMode(9)).mode; got != 3 {
		t.Errorf("mode = %d, want 3", got)
	}
	if got := New(WithMode(-1)).mode; got != 0 {
		t.Errorf("mode = %d, want 0", got)
	}
}

func withRate(c vad.Config, r int) vad.Config  { c.SampleRate = r; return c }
func withFrame(c vad.Config, f int) vad.Config { c.FrameSizeMs = f; return c }
