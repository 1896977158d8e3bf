//go:build !portaudio

package device

import (
	"context"
	"fmt"

	"github.com/MrWong99/parley/pkg/audio"
)

// Default returns devices that always fail with [ErrUnavailable]. Rebuild
// with -tags portaudio for real audio I/O.
func Default() (Input, Output) {
	return stubInput{}, stubOutput{}
}

type stubInput struct{}

func (stubInput) Open(context.Context, Constraints) (InputStream, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", ErrUnavailable)
}

type stubOutput struct{}

func (stubOutput) Open(context.Context, audio.Format) (OutputStream, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", ErrUnavailable)
}
