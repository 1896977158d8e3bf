package playback

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/parley/internal/audioctx"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/mock"
	"github.com/MrWong99/parley/pkg/provider/tts"
	ttsmock "github.com/MrWong99/parley/pkg/provider/tts/mock"
)

// gatedSynth holds each request until its text's gate is closed.
type gatedSynth struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	err   error
}

func (g *gatedSynth) gate(text string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]chan struct{})
	}
	ch, ok := g.gates[text]
	if !ok {
		ch = make(chan struct{})
		g.gates[text] = ch
	}
	return ch
}

func (g *gatedSynth) Synthesize(_ context.Context, req tts.Request) (*tts.Speech, error) {
	<-g.gate(req.Text)
	if g.err != nil {
		return nil, g.err
	}
	return &tts.Speech{
		Audio:  make([]byte, 320),
		Format: audio.Format{SampleRate: 16000, Channels: 1},
		Voice:  req.VoiceID,
	}, nil
}

type fakeOutput struct {
	mu     sync.Mutex
	played chan uint64
	stops  int
	err    error
}

func newFakeOutput() *fakeOutput { return &fakeOutput{played: make(chan uint64, 8)} }

func (o *fakeOutput) Play(_ context.Context, token uint64, _ *tts.Speech) error {
	o.played <- token
	return o.err
}

func (o *fakeOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stops++
}

func (o *fakeOutput) waitPlay(t *testing.T) uint64 {
	t.Helper()
	select {
	case tok := <-o.played:
		return tok
	case <-time.After(2 * time.Second):
		t.Fatal("output never received speech")
		return 0
	}
}

func (o *fakeOutput) expectNoPlay(t *testing.T) {
	t.Helper()
	select {
	case tok := <-o.played:
		t.Fatalf("unexpected Play for token %d", tok)
	case <-time.After(50 * time.Millisecond):
	}
}

type recorder struct {
	mu       sync.Mutex
	attempts []Token
	audible  []string
	errs     []error
}

func (r *recorder) config(cfg *Config) {
	cfg.OnAttempt = func(tok Token, _ string) {
		r.mu.Lock()
		r.attempts = append(r.attempts, tok)
		r.mu.Unlock()
	}
	cfg.OnAudible = func(_ Token, text string) {
		r.mu.Lock()
		r.audible = append(r.audible, text)
		r.mu.Unlock()
	}
	cfg.OnError = func(_ Token, err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}
}

func (r *recorder) snapshot() (attempts []Token, audible []string, errs []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Token(nil), r.attempts...), append([]string(nil), r.audible...), append([]error(nil), r.errs...)
}

func newMachine(synth Synthesizer, out Output, rec *recorder) *Machine {
	cfg := Config{Synthesizer: synth, Output: out, Language: "en-US"}
	if rec != nil {
		rec.config(&cfg)
	}
	return New(cfg)
}

func TestSpeak_PlayingOnlyAfterAudible(t *testing.T) {
	t.Parallel()
	synth := &gatedSynth{}
	close(synth.gate("Welcome to your interview."))
	out := newFakeOutput()
	rec := &recorder{}
	m := newMachine(synth, out, rec)

	tok, ok := m.Speak(context.Background(), "Welcome to your interview.")
	if !ok || tok == 0 {
		t.Fatalf("Speak = (%d, %v), want accepted", tok, ok)
	}
	if m.State() != StateStarting || !m.IsDisabled() {
		t.Fatalf("state = %v, want starting", m.State())
	}
	if got := out.waitPlay(t); got != uint64(tok) {
		t.Fatalf("played token %d, want %d", got, tok)
	}

	m.HandleEvent(audioctx.Event{Token: uint64(tok), Kind: audioctx.EventLoaded})
	if m.State() != StateStarting {
		t.Fatalf("state after Loaded = %v, want starting", m.State())
	}

	m.HandleEvent(audioctx.Event{Token: uint64(tok), Kind: audioctx.EventAudible})
	if m.State() != StatePlaying {
		t.Fatalf("state after Audible = %v, want playing", m.State())
	}
	_, audible, _ := rec.snapshot()
	if len(audible) != 1 || audible[0] != "Welcome to your interview." {
		t.Errorf("audible = %v", audible)
	}

	m.HandleEvent(audioctx.Event{Token: uint64(tok), Kind: audioctx.EventEnded})
	if m.State() != StateIdle || m.Current() != 0 {
		t.Fatalf("after Ended state = %v current = %d", m.State(), m.Current())
	}
}

func TestSpeak_LoadedButBlocked(t *testing.T) {
	t.Parallel()
	synth := &gatedSynth{}
	close(synth.gate("hi"))
	out := newFakeOutput()
	rec := &recorder{}
	m := newMachine(synth, out, rec)

	tok, _ := m.Speak(context.Background(), "hi")
	out.waitPlay(t)
	m.HandleEvent(audioctx.Event{Token: uint64(tok), Kind: audioctx.EventLoaded})
	if m.State() != StateStarting {
		t.Fatalf("state = %v, want starting while loaded but not audible", m.State())
	}
	m.HandleEvent(audioctx.Event{Token: uint64(tok), Kind: audioctx.EventBlocked})

	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle", m.State())
	}
	if !errors.Is(m.Err(), ErrPlaybackBlocked) {
		t.Errorf("Err() = %v, want ErrPlaybackBlocked", m.Err())
	}
	if m.Message() != MsgTapToEnable {
		t.Errorf("Message() = %q", m.Message())
	}
	_, audible, errs := rec.snapshot()
	if len(audible) != 0 {
		t.Errorf("blocked audio reported audible: %v", audible)
	}
	if len(errs) != 1 {
		t.Errorf("OnError calls = %d, want 1", len(errs))
	}
}

func TestSpeak_NotIdleMintsNothing(t *testing.T) {
	t.Parallel()
	synth := &gatedSynth{}
	out := newFakeOutput()
	rec := &recorder{}
	m := newMachine(synth, out, rec)

	first, ok := m.Speak(context.Background(), "one")
	if !ok {
		t.Fatal("first Speak rejected")
	}
	tok, ok := m.Speak(context.Background(), "two")
	if ok || tok != 0 {
		t.Fatalf("second Speak = (%d, %v), want (0, false)", tok, ok)
	}
	if m.LastMinted() != first || m.Current() != first {
		t.Errorf("LastMinted = %d, Current = %d, want %d", m.LastMinted(), m.Current(), first)
	}
	attempts, _, _ := rec.snapshot()
	if len(attempts) != 1 {
		t.Errorf("OnAttempt calls = %d, want 1", len(attempts))
	}
	m.Stop()
	close(synth.gate("one"))
}

func TestSpeak_StaleResultsDiscarded(t *testing.T) {
	t.Parallel()
	synth := &gatedSynth{}
	out := newFakeOutput()
	rec := &recorder{}
	m := newMachine(synth, out, rec)

	first, _ := m.Speak(context.Background(), "first")
	m.Stop()
	second, ok := m.Speak(context.Background(), "second")
	if !ok || second <= first {
		t.Fatalf("second token %d, want > %d", second, first)
	}

	close(synth.gate("second"))
	if got := out.waitPlay(t); got != uint64(second) {
		t.Fatalf("played %d, want %d", got, second)
	}
	close(synth.gate("first"))
	out.expectNoPlay(t)

	m.HandleEvent(audioctx.Event{Token: uint64(first), Kind: audioctx.EventAudible})
	m.HandleEvent(audioctx.Event{Token: uint64(first), Kind: audioctx.EventError, Err: errors.New("late")})
	if m.State() != StateStarting || m.Current() != second {
		t.Fatalf("stale events changed state to %v (current %d)", m.State(), m.Current())
	}

	m.HandleEvent(audioctx.Event{Token: uint64(second), Kind: audioctx.EventAudible})
	if m.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", m.State())
	}
	_, audible, errs := rec.snapshot()
	if len(audible) != 1 || audible[0] != "second" || len(errs) != 0 {
		t.Errorf("audible = %v, errs = %v", audible, errs)
	}
}

func TestSpeak_SynthesisFailure(t *testing.T) {
	t.Parallel()
	synth := &gatedSynth{err: errors.New("all voices failed")}
	close(synth.gate("hi"))
	out := newFakeOutput()
	errc := make(chan error, 1)
	m := New(Config{
		Synthesizer: synth,
		Output:      out,
		OnError:     func(_ Token, err error) { errc <- err },
	})

	m.Speak(context.Background(), "hi")
	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("nil error reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never called")
	}
	if m.State() != StateIdle {
		t.Errorf("state = %v, want idle", m.State())
	}
	if m.Message() != MsgPlaybackFailed {
		t.Errorf("Message() = %q", m.Message())
	}
	out.expectNoPlay(t)
}

func TestSpeak_TracesSynthesis(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	synth := &gatedSynth{}
	close(synth.gate("Tell me about yourself."))
	out := newFakeOutput()
	m := newMachine(synth, out, nil)

	ctx, turn := observe.StartSpan(context.Background(), observe.SpanTurn)
	tok, _ := m.Speak(ctx, "Tell me about yourself.")
	out.waitPlay(t)
	turn.End()

	var synthSpan *tracetest.SpanStub
	for _, s := range exp.GetSpans() {
		if s.Name == observe.SpanSynthesize {
			synthSpan = &s
		}
	}
	if synthSpan == nil {
		t.Fatalf("no %s span in %v", observe.SpanSynthesize, exp.GetSpans())
	}
	if !slices.Contains(synthSpan.Attributes, observe.AttrToken.Int64(int64(tok))) {
		t.Errorf("attributes = %v, missing token %d", synthSpan.Attributes, tok)
	}
	if synthSpan.Parent.TraceID() != trace.SpanContextFromContext(ctx).TraceID() {
		t.Error("synthesis span not part of the turn trace")
	}
}

func TestStop_AlwaysSafe(t *testing.T) {
	t.Parallel()
	synth := &gatedSynth{}
	close(synth.gate("x"))
	out := newFakeOutput()
	m := newMachine(synth, out, nil)

	m.Stop()
	if m.State() != StateIdle {
		t.Fatalf("state = %v", m.State())
	}

	tok, _ := m.Speak(context.Background(), "x")
	out.waitPlay(t)
	m.HandleEvent(audioctx.Event{Token: uint64(tok), Kind: audioctx.EventAudible})
	m.Stop()
	m.Stop()
	if m.State() != StateIdle || m.Current() != 0 {
		t.Fatalf("state = %v current = %d, want idle/0", m.State(), m.Current())
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.stops != 3 {
		t.Errorf("output Stop calls = %d, want 3", out.stops)
	}
}

func TestMachine_WithAudioContext(t *testing.T) {
	t.Parallel()
	stream := &mock.OutputStream{FormatResult: audio.Format{SampleRate: 48000, Channels: 1}}
	var pm *Machine
	mgr, err := audioctx.New(audioctx.Config{
		Output:  &mock.Output{OpenResult: stream},
		OnEvent: func(e audioctx.Event) { pm.HandleEvent(e) },
	})
	if err != nil {
		t.Fatalf("audioctx.New: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })

	var (
		mu      sync.Mutex
		changes []State
	)
	synth := &ttsmock.Provider{DefaultVoiceID: "safe"}
	pm = New(Config{
		Synthesizer: synth,
		Output:      mgr,
		VoiceID:     "officer",
		OnChange: func(_, to State) {
			mu.Lock()
			changes = append(changes, to)
			mu.Unlock()
		},
	})

	if _, ok := pm.Speak(context.Background(), "Tell me about a hard bug you fixed."); !ok {
		t.Fatal("Speak rejected")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(changes)
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transitions = %v", changes)
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []State{StateStarting, StatePlaying, StateIdle}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", changes, want)
		}
	}
	if got := synth.Voices(); len(got) != 1 || got[0] != "officer" {
		t.Errorf("voices = %v", got)
	}
}
