package app

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/audioctx"
	"github.com/MrWong99/parley/internal/interview"
	"github.com/MrWong99/parley/pkg/audio/encode"
)

// HelpText lists the key bindings.
const HelpText = "Keys: Enter answer/stop, s start, p pause/resume, e end, u enable sound, q quit."

// errQuit ends Run without an error.
var errQuit = errors.New("app: quit")

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run draws the interface and processes key presses until q is pressed, the
// key input ends, or ctx is cancelled. Network and device work runs on
// worker goroutines; every state change is applied on a single UI loop.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	keys := make(chan string)
	// Reading a terminal cannot be interrupted, so this goroutine is not
	// part of the group.
	go a.readKeys(keys)

	g.Go(func() error { return a.loop(ctx, keys) })
	g.Go(func() error {
		a.forwardLevels(ctx)
		return nil
	})
	g.Go(func() error {
		a.watchSignals(ctx)
		return nil
	})
	if a.listener != nil {
		g.Go(func() error { return a.serve(ctx, a.listener) })
	}

	err := g.Wait()
	a.workers.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func (a *App) loop(ctx context.Context, keys <-chan string) error {
	defer close(a.done)

	a.view.Line(HelpText)
	a.renderButton()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-a.inbox:
			fn()
		case key, ok := <-keys:
			if !ok {
				return errQuit
			}
			if err := a.handleKey(ctx, key); err != nil {
				return err
			}
		}
	}
}

// post queues fn for the UI loop. After the loop has exited it is dropped.
func (a *App) post(fn func()) {
	select {
	case a.inbox <- fn:
	case <-a.done:
	}
}

// spawn runs fn on a worker goroutine that Run waits for.
func (a *App) spawn(ctx context.Context, fn func(context.Context)) {
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		fn(ctx)
	}()
}

func (a *App) readKeys(keys chan<- string) {
	defer close(keys)
	sc := bufio.NewScanner(a.keys)
	for sc.Scan() {
		select {
		case keys <- strings.TrimSpace(sc.Text()):
		case <-a.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		slog.Warn("reading keys", "err", err)
	}
}

func (a *App) forwardLevels(ctx context.Context) {
	levels := a.capturer.Levels()
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-levels:
			a.post(func() { a.view.SetLevel(l) })
		}
	}
}

// ─── Keys ────────────────────────────────────────────────────────────────────

func (a *App) handleKey(ctx context.Context, key string) error {
	// Every key press is a user gesture for the audio output.
	if a.output.Gesture() {
		a.view.Line("Sound enabled.")
	}

	switch strings.ToLower(key) {
	case "":
		a.answer(ctx)
	case "s":
		a.start(ctx)
	case "p":
		a.togglePause()
	case "e":
		a.end()
	case "u":
		// The gesture above did the work.
	case "q":
		return errQuit
	case "h", "?":
		a.view.Line(HelpText)
	default:
		a.view.Line("Unknown key " + key + ". " + HelpText)
	}
	return nil
}

// answer is Enter: start an interview when none is running, otherwise toggle
// the recording.
func (a *App) answer(ctx context.Context) {
	s := a.cur.Load()
	if !s.orch.Active() {
		a.start(ctx)
		return
	}
	if s.orch.Session().Paused {
		a.view.Line("Interview paused. Press p to continue.")
		return
	}
	if a.recorder.IsButtonDisabled() {
		return
	}

	a.spawn(ctx, func(ctx context.Context) {
		rec, err := a.recorder.Toggle(ctx)
		if err != nil {
			a.post(func() { a.view.Line(a.recorder.Message()) })
			return
		}
		if rec != nil {
			a.process(ctx, s, rec)
		}
	})
}

// process runs one answer through the orchestrator and settles the
// recording machine with the outcome. Worker only.
func (a *App) process(ctx context.Context, s *session, rec *encode.Recording) {
	text, err := s.orch.ProcessAudioMessage(ctx, rec)
	switch {
	case err == nil:
		a.recorder.Transcribed(text)
	case errors.Is(err, interview.ErrStale):
		a.recorder.Transcribed("")
	case text != "":
		// The answer was heard; only the reply failed.
		a.recorder.Transcribed(text)
	default:
		a.recorder.Fail(err)
		switch {
		case errors.Is(err, interview.ErrPaused):
			a.post(func() { a.view.Line("Interview paused. Press p to continue.") })
		case errors.Is(err, interview.ErrNotActive):
			a.post(func() { a.view.Line("No interview is running. Press s to start one.") })
		}
	}
}

func (a *App) start(ctx context.Context) {
	s := a.cur.Load()
	if s.orch.Active() || a.starting {
		a.view.Line("An interview is already running.")
		return
	}
	a.starting = true
	a.spawn(ctx, func(ctx context.Context) {
		if err := s.orch.StartInterview(ctx); err != nil {
			slog.Warn("interview start failed", "err", err)
		}
		a.post(func() {
			a.starting = false
			a.renderSession()
		})
	})
}

func (a *App) togglePause() {
	s := a.cur.Load()
	if !s.orch.Active() {
		return
	}
	if s.orch.Session().Paused {
		s.orch.Resume()
		return
	}
	a.recorder.ForceStop()
	s.orch.Pause()
}

func (a *App) end() {
	s := a.cur.Load()
	a.recorder.ForceStop()
	s.orch.End()
	a.rebuild()
}

// hostSignal applies a host audio notification. If output stays suspended
// and mobile recovery is on, the next key press resumes it.
func (a *App) hostSignal(sig audioctx.Signal) {
	resumed := a.output.Signal(sig)
	if !resumed && a.cfg.Audio.MobileRecovery && a.output.Playing() {
		a.output.ArmFirstGestureRecovery()
	}
	a.renderSession()
}

// ─── Rendering ───────────────────────────────────────────────────────────────

func (a *App) handleEvent(e interview.Event) {
	switch e.Kind {
	case interview.EventTranscript:
		a.view.Line("You: " + e.Text)
	case interview.EventReply:
		a.view.Line("Interviewer: " + e.Text)
	case interview.EventSpeechSkipped:
	case interview.EventStarted, interview.EventQuotaTick:
		a.minutes = e.Minutes
		a.view.Line(e.Message())
	case interview.EventZeroMinutes:
		a.minutes = 0
		a.view.Line(e.Message())
	default:
		a.view.Line(e.Message())
	}
	if e.Kind == interview.EventEnded {
		a.rebuild()
	}
	a.renderSession()
}

func (a *App) renderButton() {
	a.view.SetButton(a.recorder.ButtonLabel(), a.recorder.IsButtonDisabled())
}

func (a *App) renderSession() {
	snap := a.cur.Load().orch.Session()
	a.view.SetSession(snap.Active, snap.Paused, a.minutes)
}
