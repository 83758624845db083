package amritacore

import (
	"context"

	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/internal/tools"
)

// OnPreCompletion registers a handler fired immediately before each adapter
// call. Declared params resolve per the dependency-injection rules; their
// values arrive positionally in resolved.
func (r *Runtime) OnPreCompletion(name string, fn func(ctx context.Context, ev *PreCompletionEvent, resolved []any) error, params ...ParamBinding) string {
	return r.Hooks.On(hooks.KindPreCompletion, func(ctx context.Context, ev hooks.Event, resolved []any) error {
		return fn(ctx, ev.(*hooks.PreCompletionEvent), resolved)
	}, name, params...)
}

// OnCompletion registers a handler fired after each terminal UniResponse.
func (r *Runtime) OnCompletion(name string, fn func(ctx context.Context, ev *CompletionEvent, resolved []any) error, params ...ParamBinding) string {
	return r.Hooks.On(hooks.KindCompletion, func(ctx context.Context, ev hooks.Event, resolved []any) error {
		return fn(ctx, ev.(*hooks.CompletionEvent), resolved)
	}, name, params...)
}

// OnPresetFallback registers a handler fired when an adapter call fails.
// The handler may mutate ev.Preset to switch providers for the retry, or
// call ev.Fail to abort the turn.
func (r *Runtime) OnPresetFallback(name string, fn func(ctx context.Context, ev *FallbackContext, resolved []any) error, params ...ParamBinding) string {
	return r.Hooks.On(hooks.KindFallback, func(ctx context.Context, ev hooks.Event, resolved []any) error {
		return fn(ctx, ev.(*hooks.FallbackContext), resolved)
	}, name, params...)
}

// OnEvent registers a handler for a user-defined event name, dispatched via
// EmitEvent.
func (r *Runtime) OnEvent(event, name string, fn func(ctx context.Context, ev *CustomEvent, resolved []any) error, params ...ParamBinding) string {
	kind := (&hooks.CustomEvent{Name: event}).Kind()
	return r.Hooks.On(kind, func(ctx context.Context, ev hooks.Event, resolved []any) error {
		return fn(ctx, ev.(*hooks.CustomEvent), resolved)
	}, name, params...)
}

// EmitEvent dispatches a user-defined event to every OnEvent handler
// registered under its name.
func (r *Runtime) EmitEvent(ctx context.Context, event string, payload any) error {
	return r.Hooks.Dispatch(ctx, &hooks.CustomEvent{Name: event, Payload: payload}, hooks.DispatchOptions{})
}

// OnTools registers a tool in the global layer, visible to every session.
func (r *Runtime) OnTools(t Tool) {
	r.Tools.RegisterGlobal(t)
}

// OnSessionTools registers a tool visible to one session only, shadowing a
// global tool of the same name.
func (r *Runtime) OnSessionTools(sessionID string, t Tool) {
	r.Tools.RegisterSession(sessionID, t)
}

// RegisterSimpleTool is the registration form of SimpleTool: derive the
// schema from fn and install the result globally.
func (r *Runtime) RegisterSimpleTool(name string, fn any, paramNames []string, docstring string) error {
	t, err := tools.SimpleTool(name, fn, paramNames, docstring)
	if err != nil {
		return err
	}
	r.Tools.RegisterGlobal(t)
	return nil
}
