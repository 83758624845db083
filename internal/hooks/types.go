// Package hooks implements the event/matcher subsystem with dependency
// injection (C4): handlers register against an event kind, and each
// handler's declared parameters are resolved — by dependency factory, by
// caller-supplied keyword argument, or by type-matching a positional
// argument — before the handler is invoked.
package hooks

import (
	"github.com/amrita-ai/amritacore/pkg/models"
)

// Kind identifies an event taxonomy member. Built-in kinds are fixed
// strings; user-defined CustomEvent kinds are whatever the caller names
// them.
type Kind string

const (
	KindPreCompletion Kind = "pre_completion"
	KindCompletion    Kind = "completion"
	KindFallback      Kind = "fallback"
)

// Event is the sum type dispatched to matchers. Concrete members are
// PreCompletionEvent, CompletionEvent, FallbackContext, and CustomEvent.
// Events are passed by reference and handlers may mutate them; ordering
// across handlers is observable (I4), which is why dispatch is sequential.
type Event interface {
	Kind() Kind
}

// TurnHandle is the minimal surface a ChatTurn exposes to hooks and tools.
// It exists so this package does not import the engine package (which in
// turn imports hooks).
type TurnHandle interface {
	SessionID() string
	StreamID() string
	YieldResponse(chunk string) error
}

// PreCompletionEvent fires immediately before an adapter call, carrying the
// request messages the handler chain may still mutate.
type PreCompletionEvent struct {
	Messages   []models.Message
	ChatObject TurnHandle
}

// Kind implements Event.
func (e *PreCompletionEvent) Kind() Kind { return KindPreCompletion }

// CompletionEvent fires after a terminal UniResponse is assembled.
type CompletionEvent struct {
	Response   models.UniResponse
	ChatObject TurnHandle
}

// Kind implements Event.
func (e *CompletionEvent) Kind() Kind { return KindCompletion }

// FallbackContext fires when an adapter call fails. Handlers may mutate
// Preset to switch providers, or call Fail to abort the turn.
type FallbackContext struct {
	Preset  models.ModelPreset
	ExcInfo error
	Config  models.AmritaConfig
	Context TurnHandle
	Term    int

	failed    bool
	failedMsg string
}

// Kind implements Event.
func (e *FallbackContext) Kind() Kind { return KindFallback }

// Fail marks the fallback as terminally failed; Failed() reports it
// and the Engine raises FallbackFailed instead of retrying.
func (e *FallbackContext) Fail(reason string) {
	e.failed = true
	e.failedMsg = reason
}

// Failed reports whether a handler called Fail, and why.
func (e *FallbackContext) Failed() (bool, string) {
	return e.failed, e.failedMsg
}

// CustomEvent is the escape hatch for user-defined event kinds.
type CustomEvent struct {
	Name    string
	Payload any
}

// Kind implements Event. Custom event kinds are dispatched under their own
// Name, distinct from the built-in Kind constants.
func (e *CustomEvent) Kind() Kind { return Kind("custom:" + e.Name) }
