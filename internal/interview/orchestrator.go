// Package interview sequences one spoken practice interview: transcribe the
// candidate's answer, generate the interviewer's reply, and hand it to the
// speech player, while counting down the account's minute quota.
//
// Every transcription is tagged with a token; a result whose token is no
// longer current (a newer answer arrived, or the session was paused or ended)
// is dropped without touching the conversation.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/parley/internal/audioctx"
	"github.com/MrWong99/parley/internal/clock"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/playback"
	"github.com/MrWong99/parley/internal/quota"
	"github.com/MrWong99/parley/internal/transcript"
	"github.com/MrWong99/parley/pkg/audio/encode"
	"github.com/MrWong99/parley/pkg/provider/stt"
)

// DefaultTick is the quota decrement period.
const DefaultTick = time.Minute

var (
	// ErrQuotaExhausted is returned by turn operations once the balance
	// reached zero.
	ErrQuotaExhausted = errors.New("interview: quota exhausted")

	// ErrNotActive is returned when no interview is running.
	ErrNotActive = errors.New("interview: not active")

	// ErrPaused is returned by ProcessAudioMessage while paused.
	ErrPaused = errors.New("interview: paused")

	// ErrStale marks a result superseded by a newer request or a session
	// change. Callers drop it silently.
	ErrStale = errors.New("interview: stale result")
)

// Speaker plays the interviewer's lines. [playback.Machine] implements it.
type Speaker interface {
	Speak(ctx context.Context, text string) (playback.Token, bool)
	Stop()
}

// Config holds the dependencies of an [Orchestrator].
type Config struct {
	Transcriber stt.Provider
	Replier     Replier
	Speaker     Speaker
	Quota       quota.Store

	// Account is the quota account to charge.
	Account string

	PersonaID string
	Language  string
	Skills    []string

	// Vocabulary lists terms to correct misheard transcripts toward.
	Vocabulary []string

	// Clock defaults to [clock.Real].
	Clock clock.Clock

	// Tick defaults to [DefaultTick].
	Tick time.Duration

	// Unlock is reset when the interview ends. Optional.
	Unlock *audioctx.UnlockState

	// CaptureStopper force-stops the microphone when minutes run out.
	CaptureStopper func()

	// OnZeroMinutes fires once per session when the balance reaches zero.
	OnZeroMinutes func()

	// OnEvent receives progress events, without the orchestrator's lock.
	OnEvent func(Event)

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Orchestrator owns the conversation and the quota countdown. All methods
// are safe for concurrent use; StartInterview and ProcessAudioMessage block
// on network calls and must not run on the UI loop.
type Orchestrator struct {
	stt     stt.Provider
	replier Replier
	speaker Speaker
	store   quota.Store
	account string
	persona string
	lang    string
	skills  []string
	vocab   *transcript.Corrector
	clk     clock.Clock
	tick    time.Duration
	unlock  *audioctx.UnlockState
	stopCap func()
	onZero  func()
	onEvent func(Event)
	metrics *observe.Metrics

	mu          sync.Mutex
	sessionID   string
	active      bool
	paused      bool
	exhausted   bool
	zeroFired   bool
	remaining   int
	ticker      clock.Timer
	turns       []Turn
	token       uint64
	inflight    context.CancelFunc
	lastAudible string
	startedAt   time.Time
}

// New creates an idle Orchestrator with a fresh session id.
func New(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	var vocab *transcript.Corrector
	if len(cfg.Vocabulary) > 0 {
		vocab = transcript.New(cfg.Vocabulary)
	}
	return &Orchestrator{
		stt:       cfg.Transcriber,
		replier:   cfg.Replier,
		speaker:   cfg.Speaker,
		store:     cfg.Quota,
		account:   cfg.Account,
		persona:   cfg.PersonaID,
		lang:      cfg.Language,
		skills:    append([]string(nil), cfg.Skills...),
		vocab:     vocab,
		clk:       cfg.Clock,
		tick:      cfg.Tick,
		unlock:    cfg.Unlock,
		stopCap:   cfg.CaptureStopper,
		onZero:    cfg.OnZeroMinutes,
		onEvent:   cfg.OnEvent,
		metrics:   cfg.Metrics,
		sessionID: uuid.NewString(),
	}
}

// Session returns a snapshot of the interview.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Session{
		ID:               o.sessionID,
		PersonaID:        o.persona,
		Language:         o.lang,
		Skills:           append([]string(nil), o.skills...),
		Active:           o.active,
		Paused:           o.paused,
		RemainingMinutes: o.remaining,
		StartedAt:        o.startedAt,
		Turns:            cloneTurns(o.turns),
	}
}

// Elapsed returns the time since the first line became audible, or zero.
func (o *Orchestrator) Elapsed() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startedAt.IsZero() {
		return 0
	}
	return o.clk.Now().Sub(o.startedAt)
}

// Active reports whether an interview is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// StartInterview reads the balance once, starts the countdown and speaks the
// opening line. Calling it while active is a no-op.
func (o *Orchestrator) StartInterview(ctx context.Context) error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	left, err := o.store.Remaining(ctx, o.account)
	if err != nil {
		err = fmt.Errorf("interview: start: %w", err)
		o.emit(Event{Kind: EventError, Stage: StageQuota, Err: err})
		return err
	}
	if left <= 0 {
		o.mu.Lock()
		o.remaining = 0
		o.mu.Unlock()
		o.exhaust()
		return ErrQuotaExhausted
	}

	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return nil
	}
	o.active = true
	o.paused = false
	o.exhausted = false
	o.zeroFired = false
	o.remaining = left
	o.ticker = o.clk.Every(o.tick, o.onTick)
	turnCtx, tok := o.beginLocked(ctx)
	sid := o.sessionID
	o.mu.Unlock()

	o.metrics.ActiveSessions.Add(ctx, 1)
	o.metrics.QuotaMinutes.Record(ctx, int64(left))
	slog.Info("interview started", "session_id", sid, "persona", o.persona, "minutes", left)
	o.emit(Event{Kind: EventStarted, Minutes: left})

	turnCtx, span := observe.StartSpan(turnCtx, observe.SpanTurn, o.spanAttrs(sid, tok)...)
	reply, err := o.reply(turnCtx, tok)
	observe.EndSpan(span, spanErr(err))
	if err != nil {
		return err
	}
	o.speak(turnCtx, tok, reply)
	return nil
}

// ProcessAudioMessage transcribes rec, records the answer and the reply, and
// starts speaking the reply. It returns the transcript, which is empty when
// no speech was detected. rec is released before returning.
func (o *Orchestrator) ProcessAudioMessage(ctx context.Context, rec *encode.Recording) (_ string, err error) {
	if rec == nil {
		return "", errors.New("interview: process audio: nil recording")
	}
	defer rec.Release()

	o.mu.Lock()
	switch {
	case o.exhausted:
		o.mu.Unlock()
		return "", ErrQuotaExhausted
	case !o.active:
		o.mu.Unlock()
		return "", ErrNotActive
	case o.paused:
		o.mu.Unlock()
		return "", ErrPaused
	}
	turnCtx, tok := o.beginLocked(ctx)
	sid := o.sessionID
	o.mu.Unlock()

	turnCtx, span := observe.StartSpan(turnCtx, observe.SpanTurn, o.spanAttrs(sid, tok)...)
	defer func() { observe.EndSpan(span, spanErr(err)) }()

	// The candidate answered; the previous line no longer matters.
	o.speaker.Stop()

	start := o.clk.Now()
	text, err := o.transcribe(turnCtx, tok, rec)
	if err != nil {
		return "", err
	}
	if text == "" {
		o.metrics.RecordTurn(ctx, "no_speech")
		o.emit(Event{Kind: EventNoSpeech})
		return "", nil
	}

	answer, ok := o.appendTurn(tok, RoleUser, text)
	if !ok {
		return "", ErrStale
	}
	o.emit(Event{Kind: EventTranscript, Text: text})

	reply, err := o.reply(turnCtx, tok)
	if errors.Is(err, ErrStale) {
		o.retract(answer)
		return "", err
	}
	if err != nil {
		return text, err
	}
	o.speak(turnCtx, tok, reply)
	o.metrics.TurnDuration.Record(ctx, o.clk.Now().Sub(start).Seconds())
	o.metrics.RecordTurn(ctx, "reply")
	return text, nil
}

// Audible records that text was confirmed audible. It is wired to the
// player's audible callback.
func (o *Orchestrator) Audible(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastAudible = text
	if o.startedAt.IsZero() && o.active {
		o.startedAt = o.clk.Now()
	}
}

// Pause stops audio and in-flight requests and freezes the countdown.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	if !o.active || o.paused {
		o.mu.Unlock()
		return
	}
	o.paused = true
	o.haltLocked()
	o.mu.Unlock()

	o.speaker.Stop()
	o.emit(Event{Kind: EventPaused})
}

// Resume restarts the countdown after [Orchestrator.Pause].
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	if !o.active || !o.paused || o.exhausted {
		o.mu.Unlock()
		return
	}
	o.paused = false
	o.ticker = o.clk.Every(o.tick, o.onTick)
	o.mu.Unlock()

	o.emit(Event{Kind: EventResumed})
}

// End stops the interview, clears the conversation and starts a new session
// id. It is safe to call at any time.
func (o *Orchestrator) End() {
	o.mu.Lock()
	wasActive := o.active
	oldID := o.sessionID
	elapsed := time.Duration(0)
	if !o.startedAt.IsZero() {
		elapsed = o.clk.Now().Sub(o.startedAt)
	}
	o.haltLocked()
	o.active = false
	o.paused = false
	o.exhausted = false
	o.zeroFired = false
	o.turns = nil
	o.lastAudible = ""
	o.startedAt = time.Time{}
	o.sessionID = uuid.NewString()
	o.mu.Unlock()

	o.speaker.Stop()
	if o.unlock != nil {
		o.unlock.Reset()
	}
	if wasActive {
		o.metrics.ActiveSessions.Add(context.Background(), -1)
		slog.Info("interview ended", "session_id", oldID, "elapsed", elapsed)
	}
	o.emit(Event{Kind: EventEnded})
}

// ─── internals ───────────────────────────────────────────────────────────────

// beginLocked supersedes any in-flight request and mints a new token.
func (o *Orchestrator) beginLocked(ctx context.Context) (context.Context, uint64) {
	if o.inflight != nil {
		o.inflight()
	}
	ctx, cancel := context.WithCancel(ctx)
	o.inflight = cancel
	o.token++
	return ctx, o.token
}

// haltLocked stops the ticker, cancels in-flight work and retires the current
// token so late results are dropped.
func (o *Orchestrator) haltLocked() {
	o.token++
	if o.ticker != nil {
		o.ticker.Stop()
		o.ticker = nil
	}
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
}

func (o *Orchestrator) current(tok uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentLocked(tok)
}

func (o *Orchestrator) currentLocked(tok uint64) bool {
	return tok == o.token && o.active && !o.paused && !o.exhausted
}

// spanErr reports superseded turns as cancelled rather than failed.
func spanErr(err error) error {
	if errors.Is(err, ErrStale) {
		return context.Canceled
	}
	return err
}

func (o *Orchestrator) spanAttrs(sid string, tok uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		observe.AttrSessionID.String(sid),
		observe.AttrToken.Int64(int64(tok)),
		observe.AttrPersona.String(o.persona),
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, tok uint64, rec *encode.Recording) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanTranscribe)
	defer func() { observe.EndSpan(span, spanErr(err)) }()

	start := o.clk.Now()
	res, err := o.stt.Transcribe(ctx, stt.Request{
		AudioBase64: rec.Base64(),
		MIMEType:    rec.MIMEType(),
		Language:    o.lang,
	})
	o.metrics.RecordStage(ctx, observe.StageSTT, o.clk.Now().Sub(start))
	if !o.current(tok) {
		o.metrics.RecordTurn(ctx, "stale")
		return "", ErrStale
	}
	if err != nil {
		err = fmt.Errorf("interview: transcribe: %w", err)
		o.metrics.RecordTurn(ctx, "error")
		o.emit(Event{Kind: EventError, Stage: StageTranscribe, Err: err})
		return "", err
	}
	log := observe.Logger(ctx)
	log.Debug("interview: transcribed", "token", tok, "confidence", res.Confidence, "chars", len(res.Text))
	text := strings.TrimSpace(res.Text)
	if o.vocab != nil && text != "" {
		var fixes []transcript.Correction
		text, fixes = o.vocab.Correct(text)
		for _, f := range fixes {
			log.Debug("interview: corrected term", "heard", f.Original, "term", f.Corrected, "confidence", f.Confidence)
		}
	}
	return text, nil
}

func (o *Orchestrator) reply(ctx context.Context, tok uint64) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanReply)
	defer func() { observe.EndSpan(span, spanErr(err)) }()

	o.mu.Lock()
	req := ReplyRequest{
		Turns:     cloneTurns(o.turns),
		PersonaID: o.persona,
		Language:  o.lang,
		Skills:    append([]string(nil), o.skills...),
		SessionID: o.sessionID,
	}
	o.mu.Unlock()

	start := o.clk.Now()
	text, err := o.replier.Reply(ctx, req)
	o.metrics.RecordStage(ctx, observe.StageLLM, o.clk.Now().Sub(start))
	if !o.current(tok) {
		return "", ErrStale
	}
	if err != nil {
		err = fmt.Errorf("interview: reply: %w", err)
		o.metrics.RecordTurn(ctx, "error")
		o.emit(Event{Kind: EventError, Stage: StageReply, Err: err})
		return "", err
	}
	if _, ok := o.appendTurn(tok, RoleAssistant, text); !ok {
		return "", ErrStale
	}
	o.emit(Event{Kind: EventReply, Text: text})
	return text, nil
}

// speak hands text to the speaker unless it is the line that was last heard
// or tok was retired by Pause, End or a newer answer.
func (o *Orchestrator) speak(ctx context.Context, tok uint64, text string) {
	log := observe.Logger(ctx)
	o.mu.Lock()
	live := o.currentLocked(tok)
	dup := text == o.lastAudible
	o.mu.Unlock()
	if !live {
		log.Debug("interview: dropping reply of retired turn", "token", tok)
		return
	}
	if dup {
		log.Debug("interview: skipping repeated line")
		o.emit(Event{Kind: EventSpeechSkipped, Text: text})
		return
	}
	// Speech outlives the request that produced it; Pause, End and the next
	// answer stop it through the speaker instead.
	if _, ok := o.speaker.Speak(context.WithoutCancel(ctx), text); !ok {
		log.Warn("interview: speaker busy, reply not spoken")
		o.emit(Event{Kind: EventError, Stage: StageSpeak, Err: errors.New("interview: speaker busy")})
	}
}

func (o *Orchestrator) appendTurn(tok uint64, role Role, text string) (Turn, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(tok) {
		return Turn{}, false
	}
	t := Turn{Role: role, Text: text, At: o.clk.Now()}
	o.turns = append(o.turns, t)
	return t, true
}

// retract removes an answer whose reply was superseded, so the history never
// holds an answer without a reply.
func (o *Orchestrator) retract(t Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.turns) - 1; i >= 0; i-- {
		if o.turns[i] == t {
			o.turns = slices.Delete(o.turns, i, i+1)
			return
		}
	}
}

func (o *Orchestrator) onTick() {
	o.mu.Lock()
	if !o.active || o.paused || o.exhausted {
		o.mu.Unlock()
		return
	}
	o.remaining = max(o.remaining-1, 0)
	left := o.remaining
	sid := o.sessionID
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if stored, err := o.store.Decrement(ctx, o.account, 1); err != nil {
		slog.Warn("interview: quota decrement failed", "session_id", sid, "err", err)
	} else if stored != left {
		slog.Debug("interview: stored balance differs", "local", left, "stored", stored)
	}
	cancel()

	o.metrics.QuotaMinutes.Record(context.Background(), int64(left))
	o.emit(Event{Kind: EventQuotaTick, Minutes: left})
	if left == 0 {
		o.exhaust()
	}
}

// exhaust force-stops capture and playback and clears timers. OnZeroMinutes
// fires at most once per session.
func (o *Orchestrator) exhaust() {
	o.mu.Lock()
	o.exhausted = true
	o.haltLocked()
	fire := !o.zeroFired
	o.zeroFired = true
	sid := o.sessionID
	o.mu.Unlock()

	if o.stopCap != nil {
		o.stopCap()
	}
	o.speaker.Stop()
	if !fire {
		return
	}
	slog.Info("interview: minutes exhausted", "session_id", sid)
	o.emit(Event{Kind: EventZeroMinutes})
	if o.onZero != nil {
		o.onZero()
	}
}

func (o *Orchestrator) emit(e Event) {
	if o.onEvent != nil {
		o.onEvent(e)
	}
}
