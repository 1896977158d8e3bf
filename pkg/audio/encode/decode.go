package encode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/wav"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"layeh.com/gopus"

	"github.com/MrWong99/parley/pkg/audio"
)

// opusMaxFrame is the largest Opus frame (120 ms at 48 kHz).
const opusMaxFrame = 5760

// ErrUnsupportedContainer is returned by Decode for unknown MIME types.
var ErrUnsupportedContainer = errors.New("encode: unsupported container")

// Decode returns the recording's audio as mono float samples and their
// sample rate.
func Decode(rec *Recording) ([]float32, int, error) {
	return DecodePayload(rec.Payload(), rec.MIMEType())
}

// DecodePayload is [Decode] for a bare payload tagged with mimeType.
func DecodePayload(payload []byte, mimeType string) ([]float32, int, error) {
	switch {
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return decodeOggOpus(payload)
	case strings.HasPrefix(mimeType, "audio/wav"), strings.HasPrefix(mimeType, "audio/x-wav"):
		return decodeWAV(payload)
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedContainer, mimeType)
	}
}

func decodeOggOpus(payload []byte) ([]float32, int, error) {
	reader, header, err := oggreader.NewWith(bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("encode: decode ogg header: %w", err)
	}
	channels := max(int(header.Channels), 1)
	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, 0, fmt.Errorf("encode: create opus decoder: %w", err)
	}

	var pcm []int16
	for {
		page, _, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("encode: read ogg page: %w", err)
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}
		out, err := dec.Decode(page, opusMaxFrame, false)
		if err != nil {
			return nil, 0, fmt.Errorf("encode: opus decode: %w", err)
		}
		pcm = append(pcm, out...)
	}

	if skip := int(header.PreSkip) * channels; skip > 0 && skip <= len(pcm) {
		pcm = pcm[skip:]
	}
	return audio.Downmix(audio.Int16ToFloat(pcm), channels), opusSampleRate, nil
}

func decodeWAV(payload []byte) ([]float32, int, error) {
	d := wav.NewDecoder(bytes.NewReader(payload))
	if !d.IsValidFile() {
		return nil, 0, errors.New("encode: invalid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("encode: read wav pcm: %w", err)
	}

	scale := float32(int64(1) << (max(int(d.BitDepth), 8) - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return audio.Downmix(samples, int(d.NumChans)), int(d.SampleRate), nil
}
