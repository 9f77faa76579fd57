package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"marketpulse/internal/httpx"
)

const anthropicVersion = "2023-06-01"

// anthropicClient adapts the Anthropic messages API. Unlike the
// OpenAI-compatible vendors, the system prompt travels as a top-level
// field and token usage is reported as input/output tokens.
type anthropicClient struct {
	endpoint string
	http     httpx.Doer
}

// NewAnthropic returns the Anthropic connector.
func NewAnthropic(options ...Option) Connector {
	o := resolveOptions("https://api.anthropic.com/v1/messages", "ANTHROPIC_API_ENDPOINT", options)
	return &anthropicClient{endpoint: o.endpoint, http: o.http}
}

func (c *anthropicClient) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

func (c *anthropicClient) newRequest(ctx context.Context, messages []Message, params Params, stream bool) (*http.Request, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY missing")
	}

	// The messages API rejects a "system" role; hoist it.
	var system string
	chat := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		chat = append(chat, m)
	}

	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		// max_tokens is mandatory for this vendor
		maxTokens = 1024
	}

	body := anthropicRequest{
		Model:       params.Model,
		System:      system,
		Messages:    chat,
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		Stream:      stream,
	}
	bb, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bb))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Chat performs a blocking completion.
func (c *anthropicClient) Chat(ctx context.Context, messages []Message, params Params) (Response, error) {
	req, err := c.newRequest(ctx, messages, params, false)
	if err != nil {
		return Response{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("anthropic http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Response{}, err
	}

	var content strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return Response{}, errors.New("anthropic: no text content in response")
	}

	return Response{
		Content: strings.TrimSpace(content.String()),
		Model:   r.Model,
		Usage: Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		},
		FinishReason: r.StopReason,
	}, nil
}

// Stream yields content deltas from the vendor's SSE event stream. A
// message_stop event ends the sequence.
func (c *anthropicClient) Stream(ctx context.Context, messages []Message, params Params) (<-chan StreamDelta, error) {
	req, err := c.newRequest(ctx, messages, params, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}

			var frame struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				continue
			}

			switch frame.Type {
			case "message_stop":
				return
			case "error":
				select {
				case out <- StreamDelta{Err: errors.New("anthropic: " + frame.Error.Message)}:
				case <-ctx.Done():
				}
				return
			case "content_block_delta":
				if frame.Delta.Text == "" {
					continue
				}
				select {
				case out <- StreamDelta{Content: frame.Delta.Text}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- StreamDelta{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
