package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amrita-ai/amritacore/internal/sessions"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// Params are the construction inputs for one ChatTurn (§4.9 "Construction").
type Params struct {
	SessionID         string
	UserInput         string
	Train             map[string]string
	Callback          func(chunk string) error
	Config            *models.AmritaConfig
	Preset            *models.ModelPreset
	HookArgs          []any
	HookKwargs        map[string]any
	ExceptionIgnored  []error
	AutoCreateSession bool
	QueueSize         int
	OverflowQueueSize int
}

const (
	defaultQueueSize    = 25
	defaultOverflowSize = 45
)

// TurnStats is the turn-level instrumentation attached to the turn's
// terminal state once it finishes (SUPPLEMENTED FEATURES #3), grounded on
// the teacher's FailoverMetrics shape.
type TurnStats struct {
	Iterations          int
	ToolCalls           int
	CompressionTriggers int
}

// Turn is a ChatTurn: the state machine executing one user turn. Construct
// with NewTurn, start with Begin, and consume output via ResponseGenerator/
// FullResponse or a callback supplied at construction.
type Turn struct {
	engine    *Engine
	streamID  string
	sessionID string
	session   *sessions.Data

	userInput        string
	train            map[string]string
	config           models.AmritaConfig
	preset           models.ModelPreset
	hookArgs         []any
	hookKwargs       map[string]any
	exceptionIgnored []error

	sink responseSink

	mu        sync.Mutex
	started   bool
	genTaken  bool
	fullTaken bool
	cookieHit bool
	startTime time.Time
	endTime   time.Time
	stats     TurnStats
	result    models.UniResponse
	err       error
	done      chan struct{}
}

// NewTurn constructs a ChatTurn against a session. If the session is
// unknown and p.AutoCreateSession is false, construction fails with
// ErrSessionNotFound.
func NewTurn(ctx context.Context, eng *Engine, p Params) (*Turn, error) {
	cfg := models.DefaultAmritaConfig()
	if p.Config != nil {
		cfg = *p.Config
	}

	sessionID := p.SessionID
	var sessData *sessions.Data
	if p.AutoCreateSession {
		if sessionID == "" {
			sessionID = eng.Sessions.New(&cfg)
		}
		sessData = eng.Sessions.EnsureWithID(sessionID, &cfg)
	} else {
		d, err := eng.Sessions.Get(sessionID)
		if err != nil {
			return nil, newError(KindNotFound, fmt.Errorf("%w: %v", ErrSessionNotFound, err))
		}
		sessData = d
	}

	if err := eng.Sessions.Init(ctx, sessionID); err != nil {
		return nil, newError(KindNotInitialized, err)
	}

	// Precedence: an explicit per-turn override beats the session's
	// standing config, which beats the package default already in cfg.
	if p.Config == nil && sessData.Config != nil {
		cfg = *sessData.Config
	}

	preset := models.ModelPreset{}
	switch {
	case p.Preset != nil:
		preset = *p.Preset
	default:
		if got, err := sessData.Presets.Default(); err == nil {
			preset = got
		}
	}

	if cfg.Cookie.EnableCookie && cfg.Cookie.Cookie == "" {
		cfg.Cookie.Cookie = uuid.New().String()
	}

	queueSize := p.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	overflowSize := p.OverflowQueueSize
	if overflowSize <= 0 {
		overflowSize = defaultOverflowSize
	}

	t := &Turn{
		engine:           eng,
		streamID:         uuid.New().String(),
		sessionID:        sessionID,
		session:          sessData,
		userInput:        p.UserInput,
		train:            p.Train,
		config:           cfg,
		preset:           preset,
		hookArgs:         p.HookArgs,
		hookKwargs:       p.HookKwargs,
		exceptionIgnored: p.ExceptionIgnored,
		done:             make(chan struct{}),
	}
	if p.Callback != nil {
		t.sink = newCallbackSink(p.Callback)
	} else {
		t.sink = newQueueSink(queueSize, overflowSize)
	}
	return t, nil
}

// SessionID implements hooks.TurnHandle.
func (t *Turn) SessionID() string { return t.sessionID }

// StreamID implements hooks.TurnHandle.
func (t *Turn) StreamID() string { return t.streamID }

// YieldResponse implements hooks.TurnHandle: it delivers chunk to whichever
// sink this turn is using. Tools (processing_message) and hook handlers use
// this to stream side output mid-turn.
func (t *Turn) YieldResponse(chunk string) error {
	return t.sink.deliver(context.Background(), chunk)
}

// SetCallback switches an as-yet-unstarted turn to callback-mode delivery.
// It is an error to call this after Begin.
func (t *Turn) SetCallback(fn func(chunk string) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("engine: SetCallback called after Begin")
	}
	t.sink = newCallbackSink(fn)
	return nil
}

// Begin starts the turn's agent loop in the background and returns
// immediately; output is available through ResponseGenerator/FullResponse
// (queue mode) or the configured callback (callback mode). ctx governs the
// whole turn: cancelling it aborts the adapter stream, drops pending tool
// invocations, and fails the turn with ErrCancelled.
func (t *Turn) Begin(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("engine: turn already started")
	}
	t.started = true
	t.startTime = time.Now()
	t.mu.Unlock()

	go t.run(ctx)
	return nil
}

// ResponseGenerator returns a channel of text chunks for queue-mode
// delivery, closed once the turn finishes. One-shot: a second call returns
// ErrAlreadyConsumed. Calling this on a callback-mode turn returns an error,
// since chunks are already being delivered to the callback.
func (t *Turn) ResponseGenerator(ctx context.Context) (<-chan string, error) {
	t.mu.Lock()
	if t.genTaken {
		t.mu.Unlock()
		return nil, ErrAlreadyConsumed
	}
	t.genTaken = true
	q, ok := t.sink.(*queueSink)
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("engine: ResponseGenerator requires queue-mode delivery")
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for {
			chunk, ok, err := q.pop(ctx)
			if !ok {
				_ = err
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// FullResponse drains all chunks and blocks until the turn finishes,
// returning the concatenated text. One-shot like ResponseGenerator.
func (t *Turn) FullResponse(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.fullTaken {
		t.mu.Unlock()
		return "", ErrAlreadyConsumed
	}
	t.fullTaken = true
	q, isQueue := t.sink.(*queueSink)
	t.mu.Unlock()

	var text string
	if isQueue {
		for {
			// The turn's terminal error, if any, is authoritative and
			// surfaced by Wait below, so a pop error here is ignored.
			chunk, ok, _ := q.pop(ctx)
			if !ok {
				break
			}
			text += chunk
		}
	}

	if err := t.Wait(ctx); err != nil {
		return text, err
	}
	if text == "" {
		text = t.Result().Content
	}
	return text, nil
}

// Wait blocks until the turn reaches Done or Failed, or ctx is cancelled.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the terminal UniResponse. Only meaningful after Wait
// returns nil.
func (t *Turn) Result() models.UniResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Stats returns the turn's instrumentation (SUPPLEMENTED FEATURES #3).
// Only meaningful after the turn has finished.
func (t *Turn) Stats() TurnStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// CookieIncident reports whether the cookie marker was detected echoed back
// in the response content (§4.9 "Cookie check").
func (t *Turn) CookieIncident() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cookieHit
}
