package whisper_test

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/parley/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNativeTranscribe_SilenceYieldsNoSpeech(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t), whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	res, err := p.Transcribe(context.Background(), wavRequest(t, make([]float32, 16000), 16000, ""))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !res.NoSpeech() {
		t.Errorf("Text = %q, want no speech", res.Text)
	}
}

func TestNativeTranscribe_CancelledContext(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, wavRequest(t, sine(16000, 16000), 16000, "en")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNativeClose_Idempotent(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
