package recording

import (
	"errors"
	"strings"

	"github.com/MrWong99/parley/pkg/audio/capture"
	"github.com/MrWong99/parley/pkg/audio/encode"
)

// User-facing failure texts. Each names what the user can do next.
const (
	MsgPermissionDenied = "Microphone access was blocked. Allow microphone access for this terminal in your system settings, then press Enter to try again."
	MsgStartFailed      = "The microphone could not be started. Check that an input device is connected, then press Enter to retry."
	MsgEncodingFailed   = "That recording could not be processed. Press Enter to record your answer again."
	MsgTranscriptFailed = "Your answer could not be transcribed. Press Enter to record it again."
)

// placeholderTranscripts are status strings shown while a transcript is
// pending. They never count as a real transcript.
var placeholderTranscripts = []string{
	"Transcribing…",
	"Transcribing...",
	"Processing…",
	"Processing...",
	"Listening…",
	"Listening...",
}

var errorMarkers = []string{"[error]", "Error:"}

// IsPlaceholder reports whether text is a provisional status string rather
// than a transcript.
func IsPlaceholder(text string) bool {
	t := strings.TrimSpace(text)
	for _, p := range placeholderTranscripts {
		if strings.EqualFold(t, p) {
			return true
		}
	}
	return false
}

// HasErrorMarker reports whether text carries an error marker instead of
// speech.
func HasErrorMarker(text string) bool {
	for _, m := range errorMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// MessageFor maps a recording failure to the text shown to the user.
func MessageFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, capture.ErrPermissionDenied):
		return MsgPermissionDenied
	case errors.Is(err, encode.ErrEncodingFailure):
		return MsgEncodingFailed
	case errors.Is(err, ErrTranscriptUnusable):
		return MsgTranscriptFailed
	default:
		return MsgStartFailed
	}
}
