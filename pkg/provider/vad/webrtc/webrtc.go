// Package webrtc implements [vad.Engine] on top of the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad).
//
// The WebRTC detector only accepts 8, 16, 32 or 48 kHz audio in 10, 20 or
// 30 ms frames; NewSession rejects anything else up front.
package webrtc

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/parley/pkg/provider/vad"
)

var (
	supportedRates  = []int{8000, 16000, 32000, 48000}
	supportedFrames = []int{10, 20, 30}
)

// ErrClosed is returned by ProcessFrame after the session is closed.
var ErrClosed = errors.New("webrtc vad: session closed")

// Option is a functional option for [Engine].
type Option func(*Engine)

// WithMode sets the detector aggressiveness, 0 (least) to 3 (most). Values
// outside the range are clamped. Default: 2.
func WithMode(mode int) Option {
	return func(e *Engine) {
		e.mode = min(max(mode, 0), 3)
	}
}

// Engine creates WebRTC VAD sessions.
type Engine struct {
	mode int
}

var _ vad.Engine = (*Engine)(nil)

// New returns an Engine with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{mode: 2}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !slices.Contains(supportedRates, cfg.SampleRate) {
		return nil, fmt.Errorf("webrtc vad: unsupported sample rate %d", cfg.SampleRate)
	}
	if !slices.Contains(supportedFrames, cfg.FrameSizeMs) {
		return nil, fmt.Errorf("webrtc vad: unsupported frame size %d ms", cfg.FrameSizeMs)
	}

	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := det.SetMode(e.mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", e.mode, err)
	}

	return &session{
		det:        det,
		rate:       cfg.SampleRate,
		frameBytes: cfg.FrameBytes(),
		hyst:       vad.NewHysteresis(cfg),
	}, nil
}

type session struct {
	mu         sync.Mutex
	det        *webrtcvad.VAD
	rate       int
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
		return vad.Event{}, fmt.Errorf("webrtc vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	active, err := s.det.Process(s.rate, frame)
	if err != nil {
		return vad.Event{}, fmt.Errorf("webrtc vad: process: %w", err)
	}
	p := 0.0
	if active {
		p = 1.0
	}
	return s.hyst.Next(p), nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hyst.Reset()
}

// Close marks the session closed. The detector's C state is reclaimed by the
// library's finalizer.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.det = nil
	return nil
}
