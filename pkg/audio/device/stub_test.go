//go:build !portaudio

package device

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
)

func TestDefault_StubUnavailable(t *testing.T) {
	in, out := Default()
	if _, err := in.Open(context.Background(), VoiceConstraints()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("input Open err = %v, want ErrUnavailable", err)
	}
	if _, err := out.Open(context.Background(), audio.Format{SampleRate: 48000, Channels: 1}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("output Open err = %v, want ErrUnavailable", err)
	}
}
