// Package energy implements a pure-Go [vad.Engine] that scores frames by
// their RMS loudness. It needs no native library and serves as the fallback
// when the WebRTC detector is not wanted.
package energy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/vad"
)

// ErrClosed is returned by ProcessFrame after the session is closed.
var ErrClosed = errors.New("energy vad: session closed")

// Engine creates energy-based sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = Engine{}

// NewSession implements [vad.Engine].
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{frameBytes: cfg.FrameBytes(), hyst: vad.NewHysteresis(cfg)}, nil
}

type session struct {
	mu         sync.Mutex
	frameBytes int
	hyst       *vad.Hysteresis
	closed     bool
}

func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, ErrClosed
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	samples := audio.Int16ToFloat(audio.BytesToInt16(frame))
	return s.hyst.Next(audio.Loudness(audio.RMS(samples))), nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hyst.Reset()
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
