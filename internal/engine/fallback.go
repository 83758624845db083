package engine

import (
	"context"
	"errors"
	"time"

	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/internal/providers"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// callWithFallback calls the adapter bound to t.preset, streaming chunks to
// the turn's sink, and implements §4.9 "Fallback semantics": on adapter
// error it dispatches a FallbackContext, allows handlers to switch presets
// or abort, and retries up to LLM.MaxRetries times.
func (t *Turn) callWithFallback(ctx context.Context, messages []models.Message, schemas []models.FunctionDefinitionSchema, term int) (models.UniResponse, error) {
	preset := t.preset

	for attempt := 0; ; attempt++ {
		resp, err := t.callOnce(ctx, preset, messages, schemas)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return models.UniResponse{}, &LoopError{Phase: PhaseAdapterCall, Iteration: term, Cause: ErrCancelled}
		}

		fc := &hooks.FallbackContext{
			Preset:  preset,
			ExcInfo: err,
			Config:  t.config,
			Context: t,
			Term:    term,
		}
		if dispatchErr := t.dispatch(ctx, fc); dispatchErr != nil {
			t.engine.Logger.Warn("fallback hook dispatch error", "session", t.sessionID, "error", dispatchErr)
		}

		if failed, reason := fc.Failed(); failed {
			return models.UniResponse{}, newError(KindFallbackFailed, &LoopError{
				Phase:     PhaseAdapterCall,
				Iteration: term,
				Cause:     wrapFallbackReason(reason, err),
			})
		}

		// auto_retry and max_retries are distinct knobs: handlers still saw
		// the FallbackContext above (and may have called Fail), but with
		// auto_retry off the original error surfaces without another attempt.
		preset = fc.Preset
		if !t.config.LLM.AutoRetry || attempt >= t.config.LLM.MaxRetries {
			return models.UniResponse{}, &LoopError{Phase: PhaseAdapterCall, Iteration: term, Cause: err}
		}
	}
}

// callOnce resolves an adapter for preset, invokes it once, and streams its
// chunks to the sink, returning the terminal UniResponse.
func (t *Turn) callOnce(ctx context.Context, preset models.ModelPreset, messages []models.Message, schemas []models.FunctionDefinitionSchema) (models.UniResponse, error) {
	if preset.Config.MaxTokens <= 0 {
		preset.Config.MaxTokens = t.config.LLM.MaxTokens
	}

	adapter, err := t.engine.Providers.ResolveAdapter(preset)
	if err != nil {
		t.engine.Metrics.observeAdapterCall(preset.Protocol, "unresolved")
		return models.UniResponse{}, newError(KindConfigurationError, err)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if t.config.LLM.LLMTimeoutS > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(t.config.LLM.LLMTimeoutS*float64(time.Second)))
		defer cancel()
	}

	callCtx, span := startAdapterSpan(callCtx, preset.Protocol, preset.Model)
	defer span.End()

	ch, err := adapter.CallAPI(callCtx, messages, schemas)
	if err != nil {
		t.engine.Metrics.observeAdapterCall(preset.Protocol, "error")
		return models.UniResponse{}, wrapAdapterError(preset, err)
	}

	for chunk := range ch {
		if chunk.Final != nil {
			t.engine.Metrics.observeAdapterCall(preset.Protocol, "ok")
			return *chunk.Final, nil
		}
		if chunk.Text == "" {
			continue
		}
		if err := t.sink.deliver(callCtx, chunk.Text); err != nil {
			return models.UniResponse{}, &LoopError{Phase: PhaseAdapterCall, Cause: err}
		}
	}

	t.engine.Metrics.observeAdapterCall(preset.Protocol, "empty_stream")
	return models.UniResponse{}, wrapAdapterError(preset, providers.NewAdapterError(preset.Protocol, preset.Model, errClosedWithoutFinal))
}

var errClosedWithoutFinal = errors.New("providers: adapter stream closed without a terminal chunk")

func wrapAdapterError(preset models.ModelPreset, err error) error {
	if _, ok := providers.AsAdapterError(err); ok {
		return newError(KindAdapterError, err)
	}
	return newError(KindAdapterError, providers.NewAdapterError(preset.Protocol, preset.Model, err))
}

func wrapFallbackReason(reason string, cause error) error {
	if reason == "" {
		return cause
	}
	return &fallbackReasonError{reason: reason, cause: cause}
}

type fallbackReasonError struct {
	reason string
	cause  error
}

func (e *fallbackReasonError) Error() string {
	if e.cause != nil {
		return e.reason + ": " + e.cause.Error()
	}
	return e.reason
}

func (e *fallbackReasonError) Unwrap() error { return e.cause }
