// Package llmobs wraps an LLM connector with logging and tracing.
package llmobs

import (
	"context"

	"marketpulse/internal/llm"
	"marketpulse/internal/logger"
	"marketpulse/internal/trace"
)

// observableConnector wraps a Connector with observability (logging & tracing)
type observableConnector struct {
	connector llm.Connector
}

// Compile-time interface check
var _ llm.Connector = (*observableConnector)(nil)

// Wrap wraps a connector with observability middleware
func Wrap(connector llm.Connector) llm.Connector {
	return &observableConnector{connector: connector}
}

func (oc *observableConnector) Name() string { return oc.connector.Name() }

// Chat performs a completion with observability
func (oc *observableConnector) Chat(ctx context.Context, messages []llm.Message, params llm.Params) (llm.Response, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Chat")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Requesting completion",
		"provider", oc.connector.Name(),
		"model", params.Model,
		"messages", len(messages),
	)

	resp, err := oc.connector.Chat(ctx, messages, params)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Completion failed", err,
			"provider", oc.connector.Name(),
			"model", params.Model,
		)
		return llm.Response{}, err
	}

	logger.InfoSkip(ctx, 1, "Completion received",
		"provider", oc.connector.Name(),
		"model", resp.Model,
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)

	return resp, nil
}

// Stream starts a streamed completion with observability
func (oc *observableConnector) Stream(ctx context.Context, messages []llm.Message, params llm.Params) (<-chan llm.StreamDelta, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Stream")

	deltas, err := oc.connector.Stream(ctx, messages, params)
	if err != nil {
		span.End()
		logger.ErrorWithErrSkip(ctx, 1, "Stream request failed", err,
			"provider", oc.connector.Name(),
			"model", params.Model,
		)
		return nil, err
	}

	out := make(chan llm.StreamDelta)
	go func() {
		defer close(out)
		defer span.End()

		chunks := 0
		for delta := range deltas {
			if delta.Err != nil {
				logger.ErrorWithErr(ctx, "Stream terminated with error", delta.Err,
					"provider", oc.connector.Name(), "chunks", chunks)
			} else {
				chunks++
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}

		logger.Debug(ctx, "Stream completed",
			"provider", oc.connector.Name(), "chunks", chunks)
	}()
	return out, nil
}
