package app

import (
	"fmt"
	"io"
	"strings"
)

const meterCells = 10

// View draws the terminal interface: a status line that is redrawn in place
// and a scrolling log of transcript lines and messages above it. It is only
// used from the UI loop.
type View struct {
	w io.Writer

	label    string
	disabled bool
	level    float64
	speaking bool

	active  bool
	paused  bool
	minutes int
}

// NewView returns a View writing to w.
func NewView(w io.Writer) *View {
	return &View{w: w, label: "Start recording"}
}

// SetButton updates the record button caption.
func (v *View) SetButton(label string, disabled bool) {
	v.label, v.disabled = label, disabled
	v.render()
}

// SetLevel updates the input level meter. Out-of-range values are clamped.
func (v *View) SetLevel(level float64) {
	v.level = min(max(level, 0), 1)
	v.render()
}

// SetSpeaking toggles the voice activity marker.
func (v *View) SetSpeaking(on bool) {
	v.speaking = on
	v.render()
}

// SetSession updates the interview part of the status line.
func (v *View) SetSession(active, paused bool, minutes int) {
	v.active, v.paused, v.minutes = active, paused, minutes
	v.render()
}

// Line prints text above the status line. Empty text is ignored.
func (v *View) Line(text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(v.w, "\r\033[K%s\n", text)
	v.render()
}

// Status returns the current status line without terminal control codes.
func (v *View) Status() string {
	var b strings.Builder
	if v.disabled {
		fmt.Fprintf(&b, "(%s)", v.label)
	} else {
		fmt.Fprintf(&b, "[%s]", v.label)
	}

	lit := int(v.level*meterCells + 0.5)
	b.WriteByte(' ')
	b.WriteString(strings.Repeat("▮", lit))
	b.WriteString(strings.Repeat("▯", meterCells-lit))
	if v.speaking {
		b.WriteString(" ●")
	}

	switch {
	case !v.active:
		b.WriteString("  no interview")
	case v.paused:
		fmt.Fprintf(&b, "  paused, %d min left", v.minutes)
	default:
		fmt.Fprintf(&b, "  %d min left", v.minutes)
	}
	return b.String()
}

func (v *View) render() {
	fmt.Fprintf(v.w, "\r\033[K%s", v.Status())
}
