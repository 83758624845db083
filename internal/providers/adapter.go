// Package providers implements the model-adapter protocol (C6): a registry
// keyed by protocol tag, and the streaming call contract each adapter
// fulfills by wrapping a real provider SDK.
package providers

import (
	"context"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// Chunk is one item of an adapter's streaming response. A stream that
// completes carries Final on exactly one Chunk, its last; every chunk
// before it carries incremental Text only.
type Chunk struct {
	Text  string
	Final *models.UniResponse
}

// Adapter is constructed from a ModelPreset and performs one completion
// call, returning a channel of Chunk terminated by exactly one chunk with
// Final set. If the preset's ModelConfig.Stream is false, the channel
// yields the terminal chunk only.
//
// The channel is closed after the terminal chunk (or after an error is
// returned synchronously, in which case no channel is produced at all).
// A stream that fails after CallAPI has returned, or whose ctx is done, is
// closed without a Final chunk; the stream error itself is not delivered.
type Adapter interface {
	CallAPI(ctx context.Context, messages []models.Message, tools []models.FunctionDefinitionSchema) (<-chan Chunk, error)
}

// Constructor builds an Adapter bound to a specific preset.
type Constructor func(preset models.ModelPreset) (Adapter, error)
