package encode

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"layeh.com/gopus"

	"github.com/MrWong99/parley/pkg/audio"
)

// Opus is always encoded at 48 kHz mono in 20 ms packets.
const (
	opusSampleRate  = 48000
	opusFrameSizeMs = 20
	opusFrameSize   = opusSampleRate * opusFrameSizeMs / 1000 // 960
	opusMaxPacket   = 4000

	wavSampleRate = 16000
)

// Codec turns mono or interleaved float PCM into a container payload.
type Codec interface {
	// Name is a short identifier for logs and metrics.
	Name() string

	// MIMEType is the container tag of the produced payload.
	MIMEType() string

	// Encode consumes samples in format f.
	Encode(samples []float32, f audio.Format) ([]byte, error)
}

var (
	probeOnce  sync.Once
	probeCodec Codec
)

// Probe returns the preferred codec for this process. The first call checks
// whether an Opus encoder can be created; later calls return the cached
// answer.
func Probe() Codec {
	probeOnce.Do(func() {
		if _, err := gopus.NewEncoder(opusSampleRate, 1, gopus.Voip); err != nil {
			slog.Warn("opus encoder unavailable, falling back to 16 kHz WAV", "err", err)
			probeCodec = WAVCodec{}
			return
		}
		probeCodec = OpusCodec{}
	})
	return probeCodec
}

// ─── Opus in Ogg ──────────────────────────────────────────────────────────────

// OpusCodec encodes 48 kHz mono Opus packets muxed into an Ogg stream, using
// the encoder's VoIP tuning.
type OpusCodec struct{}

var _ Codec = OpusCodec{}

// Name implements [Codec].
func (OpusCodec) Name() string { return "opus" }

// MIMEType implements [Codec].
func (OpusCodec) MIMEType() string { return MIMEOpus }

// Encode implements [Codec].
func (OpusCodec) Encode(samples []float32, f audio.Format) ([]byte, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, 1, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	mono := audio.Resample(audio.Downmix(samples, f.Channels), f.SampleRate, opusSampleRate)
	pcm := audio.FloatToInt16(mono)

	var out bytes.Buffer
	ogg, err := oggwriter.NewWith(&out, opusSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create ogg writer: %w", err)
	}

	frame := make([]int16, opusFrameSize)
	var seq uint16
	var ts uint32
	for off := 0; off < len(pcm); off += opusFrameSize {
		n := copy(frame, pcm[off:])
		clear(frame[n:])

		packet, err := enc.Encode(frame, opusFrameSize, opusMaxPacket)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		err = ogg.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           1,
			},
			Payload: packet,
		})
		if err != nil {
			return nil, fmt.Errorf("ogg write: %w", err)
		}
		seq++
		ts += opusFrameSize
	}
	if err := ogg.Close(); err != nil {
		return nil, fmt.Errorf("ogg close: %w", err)
	}
	return out.Bytes(), nil
}

// ─── WAV ──────────────────────────────────────────────────────────────────────

// WAVCodec downmixes and resamples to 16 kHz mono and writes 16-bit PCM WAV.
type WAVCodec struct{}

var _ Codec = WAVCodec{}

// Name implements [Codec].
func (WAVCodec) Name() string { return "wav" }

// MIMEType implements [Codec].
func (WAVCodec) MIMEType() string { return MIMEWAV }

// Encode implements [Codec].
func (WAVCodec) Encode(samples []float32, f audio.Format) ([]byte, error) {
	mono := audio.Resample(audio.Downmix(samples, f.Channels), f.SampleRate, wavSampleRate)
	pcm := audio.FloatToInt16(mono)
	return EncodeWAV(pcm, wavSampleRate)
}

// EncodeWAV writes 16-bit mono PCM at rate as a WAV file.
func EncodeWAV(pcm []int16, rate int) ([]byte, error) {
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, rate, 16, 1, 1)

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close: %w", err)
	}
	return ws.Bytes(), nil
}
