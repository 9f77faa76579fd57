// Package llm normalizes vendor chat-completion APIs behind one
// message/response shape. Connectors are parameter-translation layers;
// no prompt logic lives here.
package llm

import (
	"context"
	"errors"
)

// ErrUnknownProvider is returned by the factory for an unrecognized tag.
var ErrUnknownProvider = errors.New("llm: unknown provider")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Params tunes one request.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Usage is the vendor-reported token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the normalized completion result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

// StreamDelta is one element of a streamed completion. A delta with Err
// set is terminal; the channel closes after the final element.
type StreamDelta struct {
	Content string
	Err     error
}

// Connector is the capability contract every vendor adapter implements.
type Connector interface {
	Name() string

	// Chat performs a blocking completion.
	Chat(ctx context.Context, messages []Message, params Params) (Response, error)

	// Stream starts a completion and returns a lazy, finite,
	// non-restartable sequence of content deltas. The channel closes
	// after a normal end or a terminal error delta; canceling ctx
	// terminates the sequence.
	Stream(ctx context.Context, messages []Message, params Params) (<-chan StreamDelta, error)
}
