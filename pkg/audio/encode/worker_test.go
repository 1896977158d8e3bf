package encode

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

type failingCodec struct{}

func (failingCodec) Name() string     { return "broken" }
func (failingCodec) MIMEType() string { return "audio/broken" }
func (failingCodec) Encode([]float32, audio.Format) ([]byte, error) {
	return nil, errors.New("codec exploded")
}

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.4 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func receive(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestWorker_DurationRoundsWallClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{name: "2.6s rounds up", elapsed: 2600 * time.Millisecond, want: 3},
		{name: "1.49s rounds down", elapsed: 1490 * time.Millisecond, want: 1},
		{name: "exactly 2s", elapsed: 2 * time.Second, want: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := NewWorker(WithCodec(WAVCodec{}))
			defer w.Close()

			// 3 frames of 4096 samples at 44.1 kHz hold only ~0.28 s of audio.
			job := &Job{
				Samples: sine(3*4096, 44100, 440),
				Format:  audio.Format{SampleRate: 44100, Channels: 1},
				Elapsed: tc.elapsed,
			}
			res := receive(t, w.Submit(context.Background(), job))
			if res.Err != nil {
				t.Fatalf("encode: %v", res.Err)
			}
			if got := res.Recording.DurationSeconds(); got != tc.want {
				t.Errorf("DurationSeconds = %d, want %d", got, tc.want)
			}
			if res.Recording.MIMEType() != MIMEWAV {
				t.Errorf("MIMEType = %q, want %q", res.Recording.MIMEType(), MIMEWAV)
			}
		})
	}
}

func TestWorker_SubmitMovesSamples(t *testing.T) {
	t.Parallel()

	w := NewWorker(WithCodec(WAVCodec{}))
	defer w.Close()

	job := &Job{Samples: sine(4096, 48000, 200), Format: audio.Format{SampleRate: 48000, Channels: 1}, Elapsed: time.Second}
	ch := w.Submit(context.Background(), job)
	if job.Samples != nil {
		t.Error("Submit left samples in the job")
	}
	if res := receive(t, ch); res.Err != nil {
		t.Fatalf("encode: %v", res.Err)
	}
}

func TestWorker_ZeroDurationIsEmpty(t *testing.T) {
	t.Parallel()

	w := NewWorker(WithCodec(WAVCodec{}))
	defer w.Close()

	job := &Job{Samples: sine(4096, 48000, 200), Format: audio.Format{SampleRate: 48000, Channels: 1}, Elapsed: 400 * time.Millisecond}
	res := receive(t, w.Submit(context.Background(), job))
	if res.Err != nil {
		t.Fatalf("encode: %v", res.Err)
	}
	if !res.Recording.Empty() {
		t.Error("sub-half-second capture should produce an empty recording")
	}
}

func TestWorker_CodecFailureWrapsSentinel(t *testing.T) {
	t.Parallel()

	w := NewWorker(WithCodec(failingCodec{}))
	defer w.Close()

	job := &Job{Samples: make([]float32, 10), Format: audio.Format{SampleRate: 16000, Channels: 1}, Elapsed: time.Second}
	res := receive(t, w.Submit(context.Background(), job))
	if !errors.Is(res.Err, ErrEncodingFailure) {
		t.Fatalf("err = %v, want ErrEncodingFailure", res.Err)
	}
	if res.Recording != nil {
		t.Error("failed encode produced a recording")
	}
}

func TestWorker_Closed(t *testing.T) {
	t.Parallel()

	w := NewWorker(WithCodec(WAVCodec{}))
	w.Close()
	w.Close()

	res := receive(t, w.Submit(context.Background(), &Job{Elapsed: time.Second}))
	if !errors.Is(res.Err, ErrWorkerClosed) {
		t.Errorf("err = %v, want ErrWorkerClosed", res.Err)
	}
}

func TestWorker_SubmitRacingCloseAlwaysAnswers(t *testing.T) {
	t.Parallel()

	for range 50 {
		w := NewWorker(WithCodec(WAVCodec{}), WithQueue(1))
		results := make(chan (<-chan Result), 8)
		var wg sync.WaitGroup
		for range cap(results) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				job := &Job{Samples: sine(160, 16000, 440), Format: audio.Format{SampleRate: 16000, Channels: 1}, Elapsed: time.Second}
				results <- w.Submit(context.Background(), job)
			}()
		}
		w.Close()
		wg.Wait()
		close(results)
		for ch := range results {
			if res := receive(t, ch); res.Err != nil && !errors.Is(res.Err, ErrWorkerClosed) {
				t.Fatalf("err = %v, want nil or ErrWorkerClosed", res.Err)
			}
		}
	}
}

func TestWorker_CancelledContext(t *testing.T) {
	t.Parallel()

	w := NewWorker(WithCodec(WAVCodec{}))
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := receive(t, w.Submit(ctx, &Job{Samples: make([]float32, 100), Elapsed: time.Second}))
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", res.Err)
	}
}

func TestWAV_DecodeRecoversRateAndLength(t *testing.T) {
	t.Parallel()

	in := sine(48000, 48000, 300) // 1 s
	payload, err := WAVCodec{}.Encode(in, audio.Format{SampleRate: 48000, Channels: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("RIFF")) {
		t.Fatalf("payload does not start with RIFF: %q", payload[:4])
	}

	pcm, rate, err := Decode(NewRecording(payload, MIMEWAV, 1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	if len(pcm) != 16000 {
		t.Errorf("samples = %d, want 16000", len(pcm))
	}
	if peak := peakAbs(pcm); peak < 0.3 || peak > 0.5 {
		t.Errorf("peak = %.3f, want ~0.4", peak)
	}
}

func TestOpus_EncodesOggAndDecodes(t *testing.T) {
	t.Parallel()

	in := sine(44100, 44100, 300) // 1 s
	payload, err := OpusCodec{}.Encode(in, audio.Format{SampleRate: 44100, Channels: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("OggS")) {
		t.Fatalf("payload does not start with OggS")
	}

	pcm, rate, err := Decode(NewRecording(payload, MIMEOpus, 1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 48000 {
		t.Errorf("rate = %d, want 48000", rate)
	}
	// 50 packets of 960 minus pre-skip.
	if len(pcm) < 40000 || len(pcm) > 48000 {
		t.Errorf("samples = %d, want roughly one second", len(pcm))
	}
}

func TestDecode_UnsupportedContainer(t *testing.T) {
	t.Parallel()

	_, _, err := Decode(NewRecording([]byte{1, 2}, "audio/flac", 1))
	if !errors.Is(err, ErrUnsupportedContainer) {
		t.Errorf("err = %v, want ErrUnsupportedContainer", err)
	}
}

func TestRecording_Base64AndRelease(t *testing.T) {
	t.Parallel()

	rec := NewRecording([]byte("abc"), MIMEWAV, 2)
	if got, want := rec.Base64(), base64.StdEncoding.EncodeToString([]byte("abc")); got != want {
		t.Errorf("Base64 = %q, want %q", got, want)
	}
	if rec.Empty() {
		t.Error("Empty = true for populated recording")
	}
	rec.Release()
	rec.Release()
	if !rec.Released() || rec.Payload() != nil {
		t.Error("Release did not drop the payload")
	}
	if !rec.Empty() {
		t.Error("released recording should be empty")
	}
}

func TestProbe_IsStable(t *testing.T) {
	t.Parallel()

	first := Probe()
	if first == nil {
		t.Fatal("Probe returned nil")
	}
	if Probe() != first {
		t.Error("Probe changed its answer")
	}
}

func TestMemWriteSeeker_PatchesEarlierBytes(t *testing.T) {
	t.Parallel()

	ws := &memWriteSeeker{}
	_, _ = ws.Write([]byte("hello world"))
	if _, err := ws.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	_, _ = ws.Write([]byte("J"))
	if _, err := ws.Seek(0, 2); err != nil {
		t.Fatalf("Seek end: %v", err)
	}
	_, _ = ws.Write([]byte("!"))
	if got := string(ws.Bytes()); got != "Jello world!" {
		t.Errorf("Bytes = %q, want %q", got, "Jello world!")
	}
	if _, err := ws.Seek(-100, 1); err == nil {
		t.Error("expected error for negative position")
	}
}

func peakAbs(s []float32) float64 {
	var p float64
	for _, v := range s {
		p = max(p, math.Abs(float64(v)))
	}
	return p
}
