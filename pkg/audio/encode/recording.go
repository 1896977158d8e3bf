package encode

import (
	"encoding/base64"
	"sync"
)

// MIME types of the containers the encoder produces.
const (
	MIMEOpus = "audio/ogg; codecs=opus"
	MIMEWAV  = "audio/wav"
)

// Recording is one finalised, encoded microphone capture. It is immutable
// once produced; consumers call [Recording.Release] when done with it.
type Recording struct {
	mu       sync.Mutex
	payload  []byte
	mimeType string
	duration int
	released bool
}

// NewRecording wraps an already encoded payload.
func NewRecording(payload []byte, mimeType string, durationSeconds int) *Recording {
	return &Recording{payload: payload, mimeType: mimeType, duration: durationSeconds}
}

// Payload returns the encoded bytes, or nil after Release. Callers must not
// modify the returned slice.
func (r *Recording) Payload() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payload
}

// MIMEType returns the container tag, e.g. [MIMEOpus].
func (r *Recording) MIMEType() string { return r.mimeType }

// DurationSeconds is the capture's wall-clock length rounded to whole seconds.
func (r *Recording) DurationSeconds() int { return r.duration }

// Empty reports whether the recording should be discarded: zero duration or
// no payload.
func (r *Recording) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duration == 0 || len(r.payload) == 0
}

// Base64 returns the payload in standard base64 transport encoding.
func (r *Recording) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Payload())
}

// Release drops the payload. It is safe to call more than once.
func (r *Recording) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = nil
	r.released = true
}

// Released reports whether Release has been called.
func (r *Recording) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
