package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// FormatConverter converts frames to a fixed target [Format], resampling and
// downmixing as needed. It logs the first mismatch it sees so that a device
// running at an unexpected rate is visible without flooding the log.
//
// A FormatConverter must not be copied after first use.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert returns frame in the target format. Frames that already match are
// returned unchanged (no copy).
func (c *FormatConverter) Convert(frame Frame) Frame {
	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	samples := frame.Samples
	channels := frame.Channels
	if c.Target.Channels == 1 && channels > 1 {
		samples = Downmix(samples, channels)
		channels = 1
	}
	if frame.SampleRate != c.Target.SampleRate {
		if channels == 1 {
			samples = Resample(samples, frame.SampleRate, c.Target.SampleRate)
		} else {
			samples = resampleInterleaved(samples, channels, frame.SampleRate, c.Target.SampleRate)
		}
	}
	if c.Target.Channels == 2 && channels == 1 {
		samples = MonoToStereo(samples)
		channels = 2
	}

	return Frame{
		Samples:    samples,
		SampleRate: c.Target.SampleRate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

// Downmix averages interleaved multi-channel samples into mono. A channel
// count of one (or less) returns samples unchanged.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// MonoToStereo duplicates each mono sample into a left/right pair.
func MonoToStereo(samples []float32) []float32 {
	out := make([]float32, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. It is intended for speech, where the aliasing of a simple
// interpolator is inaudible after a lossy codec.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := samples[idx]
		s1 := s0
		if idx < last {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

func resampleInterleaved(samples []float32, channels, srcRate, dstRate int) []float32 {
	planes := make([][]float32, channels)
	frames := len(samples) / channels
	for ch := range channels {
		plane := make([]float32, frames)
		for i := range frames {
			plane[i] = samples[i*channels+ch]
		}
		planes[ch] = Resample(plane, srcRate, dstRate)
	}
	n := len(planes[0])
	out := make([]float32, n*channels)
	for i := range n {
		for ch := range channels {
			out[i*channels+ch] = planes[ch][i]
		}
	}
	return out
}

// FloatToInt16 converts normalised float samples to signed 16-bit PCM,
// clipping values outside [-1, 1].
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Int16ToFloat converts signed 16-bit PCM to normalised float samples.
func Int16ToFloat(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768
	}
	return out
}

// Int16ToBytes converts int16 samples to little-endian bytes.
func Int16ToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16 converts little-endian bytes to int16 samples. A trailing odd
// byte is ignored.
func BytesToInt16(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// RMS returns the root-mean-square level of samples in [0, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
