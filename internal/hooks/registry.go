package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// HandlerFunc is invoked with the event and the resolved values for every
// declared parameter slot, in declaration order. A handler declares zero
// params when it only needs the event.
type HandlerFunc func(ctx context.Context, ev Event, params []any) error

// Matcher is one registered (event kind, handler, param schema) triple.
type Matcher struct {
	ID      string
	Kind    Kind
	Handler HandlerFunc
	Params  []ParamBinding
	Name    string
}

// Registry routes events to matchers in registration order (I4) and
// resolves each matcher's declared parameters before invoking it.
type Registry struct {
	mu       sync.RWMutex
	matchers map[Kind][]*Matcher
	logger   *slog.Logger
}

// NewRegistry creates an empty hook registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		matchers: make(map[Kind][]*Matcher),
		logger:   logger.With("component", "hooks"),
	}
}

// On registers handler for the given event kind. Returns the matcher ID for
// later use with Off.
func (r *Registry) On(kind Kind, handler HandlerFunc, name string, params ...ParamBinding) string {
	m := &Matcher{
		ID:      uuid.New().String(),
		Kind:    kind,
		Handler: handler,
		Params:  params,
		Name:    name,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers[kind] = append(r.matchers[kind], m)
	return m.ID
}

// Off removes a previously registered matcher by ID.
func (r *Registry) Off(kind Kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.matchers[kind]
	for i, m := range list {
		if m.ID == id {
			r.matchers[kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// DispatchOptions carries the per-dispatch extras the spec calls hook_args
// and hook_kwargs, plus the turn's exception_ignored list.
type DispatchOptions struct {
	HookArgs         []any
	HookKwargs       map[string]any
	ExceptionIgnored []error
}

// Dispatch runs every matcher registered for event.Kind() in registration
// order (I4), sequentially (§4.4 "Dispatch order" — handlers may mutate the
// event, so ordering must be deterministic). Each matcher's declared
// parameters are resolved first, in parallel across that matcher's own
// slots. A matcher with any unresolved ("skip") slot is silently skipped,
// per §4.4 rule 3d/4.
//
// If a resolution error matches opts.ExceptionIgnored (via errors.Is), it
// is re-raised immediately to the caller. Otherwise resolution errors are
// logged, the offending matcher is skipped, and dispatch continues; all
// such errors are joined and returned once every matcher has run.
func (r *Registry) Dispatch(ctx context.Context, event Event, opts DispatchOptions) error {
	r.mu.RLock()
	list := append([]*Matcher(nil), r.matchers[event.Kind()]...)
	r.mu.RUnlock()

	rc := &resolveCtx{
		ctx:      ctx,
		event:    event,
		hookArgs: opts.HookArgs,
		hookKw:   opts.HookKwargs,
	}

	var aggregate error
	for _, m := range list {
		resolved, err := resolveAll(rc, m.Params, map[string]bool{})
		if err != nil {
			if isIgnored(err, opts.ExceptionIgnored) {
				return err
			}
			r.logger.Warn("hook dependency resolution failed, skipping matcher",
				"matcher", m.Name, "kind", event.Kind(), "error", err)
			aggregate = errors.Join(aggregate, fmt.Errorf("matcher %s: %w", m.Name, err))
			continue
		}
		if resolved.skip {
			continue
		}
		if err := r.invoke(ctx, m, event, resolved.values); err != nil {
			r.logger.Warn("hook handler returned error",
				"matcher", m.Name, "kind", event.Kind(), "error", err)
			aggregate = errors.Join(aggregate, err)
		}
	}
	return aggregate
}

func (r *Registry) invoke(ctx context.Context, m *Matcher, ev Event, params []any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hooks: handler %s panicked: %v", m.Name, p)
		}
	}()
	return m.Handler(ctx, ev, params)
}

func isIgnored(err error, ignored []error) bool {
	for _, target := range ignored {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
