package capture

import (
	"errors"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
)

// ErrBufferConsumed is returned by [Buffer.Take] after the first call.
var ErrBufferConsumed = errors.New("capture: buffer already consumed")

// Buffer is the ordered sequence of frames captured during one recording.
// It grows only until it is consumed by [Buffer.Take]; appends after that are
// dropped.
type Buffer struct {
	mu     sync.Mutex
	frames []audio.Frame
	format audio.Format
	taken  bool
}

func newBuffer(f audio.Format) *Buffer {
	return &Buffer{format: f}
}

// Append adds f to the end of the buffer.
func (b *Buffer) Append(f audio.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taken {
		return
	}
	b.frames = append(b.frames, f)
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Samples returns the total number of buffered samples across all channels.
func (b *Buffer) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.frames {
		n += len(f.Samples)
	}
	return n
}

// Format returns the native format of the buffered frames.
func (b *Buffer) Format() audio.Format {
	return b.format
}

// Take concatenates all frames into one slice and releases the frames. It
// succeeds exactly once; the caller owns the returned slice.
func (b *Buffer) Take() ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taken {
		return nil, ErrBufferConsumed
	}
	b.taken = true

	n := 0
	for _, f := range b.frames {
		n += len(f.Samples)
	}
	out := make([]float32, 0, n)
	for _, f := range b.frames {
		out = append(out, f.Samples...)
	}
	b.frames = nil
	return out, nil
}
