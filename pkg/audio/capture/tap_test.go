package capture

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/mock"
	"github.com/MrWong99/parley/pkg/provider/vad"
	vadmock "github.com/MrWong99/parley/pkg/provider/vad/mock"
)

func TestVADTap_ReceivesConvertedCopies(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{}
	tap, err := NewVADTap(&vadmock.Engine{Session: sess}, vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewVADTap: %v", err)
	}
	defer tap.Close()

	stream := mock.NewInputStream(audio.Format{SampleRate: 44100, Channels: 1})
	c := New(&mock.Input{OpenResult: stream}, WithTap(tap), WithClock(clock.NewFake(time.Unix(0, 0))))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	feed(stream, 3*FrameSize, 1024, 0.2)
	waitFor(t, "3 frames", func() bool { return c.Frames() == 3 })
	if _, _, err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// 3 frames of 4096 @ 44.1 kHz become 3*1486 samples @ 16 kHz, scored in
	// 320-sample (20 ms) steps.
	waitFor(t, "13 scored frames", func() bool { return sess.FrameCount() == 13 })
	for i, call := range sess.ProcessFrameCalls {
		if len(call.Frame) != 640 {
			t.Fatalf("call %d: frame is %d bytes, want 640", i, len(call.Frame))
		}
	}
}

func TestVADTap_PanicNeverReachesCapture(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{PanicWith: "detector exploded"}
	tap, err := NewVADTap(&vadmock.Engine{Session: sess}, vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewVADTap: %v", err)
	}

	stream := mock.NewInputStream(audio.Format{SampleRate: 16000, Channels: 1})
	c := New(&mock.Input{OpenResult: stream}, WithTap(tap))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	feed(stream, 2*FrameSize, 2048, 0.3)
	waitFor(t, "2 frames", func() bool { return c.Frames() == 2 })
	waitFor(t, "panicking detector called twice", func() bool { return sess.FrameCount() >= 2 })

	buf, _, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if buf.Len() != 2 {
		t.Errorf("frames = %d, want 2", buf.Len())
	}
	if err := tap.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestVADTap_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	sess := &vadmock.Session{EventResult: vad.Event{Type: vad.SpeechStart, Probability: 1}}
	tap, err := NewVADTap(&vadmock.Engine{Session: sess}, vad.DefaultConfig(),
		WithQueueDepth(1),
		WithOnEvent(func(vad.Event) { <-release }),
	)
	if err != nil {
		t.Fatalf("NewVADTap: %v", err)
	}

	frame := audio.Frame{Samples: make([]float32, 320), SampleRate: 16000, Channels: 1}
	if !tap.Push(frame.Clone()) {
		t.Fatal("first push rejected")
	}
	waitFor(t, "worker busy", func() bool { return sess.FrameCount() == 1 })

	if !tap.Push(frame.Clone()) {
		t.Fatal("second push should fill the queue")
	}
	if tap.Push(frame.Clone()) {
		t.Fatal("third push should be dropped")
	}
	if got := tap.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}

	close(release)
	if err := tap.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if tap.Push(frame) {
		t.Error("Push after Close accepted")
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("session Close calls = %d, want 1", sess.CloseCallCount)
	}
}
