package device

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "permission", err: errors.New("Operation not permitted"), want: ErrPermissionDenied},
		{name: "access denied", err: errors.New("Access denied by user"), want: ErrPermissionDenied},
		{name: "unavailable", err: errors.New("Device unavailable"), want: ErrUnavailable},
		{name: "no default", err: errors.New("no default input device"), want: ErrUnavailable},
		{name: "other", err: errors.New("Invalid sample rate"), want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tc.err)
			if !errors.Is(got, tc.err) {
				t.Errorf("classified error lost the original: %v", got)
			}
			if tc.want != nil && !errors.Is(got, tc.want) {
				t.Errorf("classify(%q) does not match %v", tc.err, tc.want)
			}
			if tc.want == nil && (errors.Is(got, ErrPermissionDenied) || errors.Is(got, ErrUnavailable)) {
				t.Errorf("classify(%q) = %v, want unclassified", tc.err, got)
			}
		})
	}

	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestVoiceConstraints(t *testing.T) {
	c := VoiceConstraints()
	if !c.EchoCancellation || !c.NoiseSuppression || !c.AutoGainControl {
		t.Errorf("voice constraints must enable all processing: %+v", c)
	}
	if c.SampleRate != 0 {
		t.Errorf("SampleRate = %d, want 0 (native)", c.SampleRate)
	}
}
