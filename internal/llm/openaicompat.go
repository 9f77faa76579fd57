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
	"time"

	"marketpulse/internal/httpx"
)

// connectorOptions collects the optional knobs shared by all connectors.
type connectorOptions struct {
	endpoint string
	http     httpx.Doer
}

// Option configures a connector.
type Option func(*connectorOptions)

// WithHTTPClient substitutes the transport.
func WithHTTPClient(doer httpx.Doer) Option {
	return func(o *connectorOptions) { o.http = doer }
}

// WithEndpoint overrides the vendor endpoint.
func WithEndpoint(endpoint string) Option {
	return func(o *connectorOptions) { o.endpoint = endpoint }
}

// resolveOptions applies defaults, the per-vendor endpoint override env
// (proxy deployments), then explicit options.
func resolveOptions(endpoint, endpointEnv string, options []Option) connectorOptions {
	o := connectorOptions{
		endpoint: endpoint,
		http:     httpx.New(90 * time.Second),
	}
	if ep := os.Getenv(endpointEnv); ep != "" {
		o.endpoint = ep
	}
	for _, option := range options {
		option(&o)
	}
	return o
}

// compatClient adapts any OpenAI-compatible chat completions API.
// OpenAI, Grok, and DeepSeek all speak this wire shape.
type compatClient struct {
	name     string
	endpoint string
	keyEnv   string
	http     httpx.Doer
}

func newCompatClient(name, endpoint, keyEnv, endpointEnv string, options ...Option) *compatClient {
	o := resolveOptions(endpoint, endpointEnv, options)
	return &compatClient{
		name:     name,
		endpoint: o.endpoint,
		keyEnv:   keyEnv,
		http:     o.http,
	}
}

func (c *compatClient) Name() string { return c.name }

func (c *compatClient) apiKey() (string, error) {
	key := os.Getenv(c.keyEnv)
	if key == "" {
		return "", fmt.Errorf("%s missing", c.keyEnv)
	}
	return key, nil
}

type compatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

func (c *compatClient) newRequest(ctx context.Context, messages []Message, params Params, stream bool) (*http.Request, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	body := compatRequest{
		Model:       params.Model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
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
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Chat performs a blocking completion.
func (c *compatClient) Chat(ctx context.Context, messages []Message, params Params) (Response, error) {
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
		return Response{}, fmt.Errorf("%s http %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Response{}, err
	}
	if len(r.Choices) == 0 {
		return Response{}, errors.New(c.name + ": no choices in response")
	}

	return Response{
		Content:      strings.TrimSpace(r.Choices[0].Message.Content),
		Model:        r.Model,
		Usage:        r.Usage,
		FinishReason: r.Choices[0].FinishReason,
	}, nil
}

// Stream starts a completion and yields content deltas parsed from the
// vendor's SSE frames. A "[DONE]" sentinel ends the sequence.
func (c *compatClient) Stream(ctx context.Context, messages []Message, params Params) (<-chan StreamDelta, error) {
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
		return nil, fmt.Errorf("%s http %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(body)))
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
			if data == "[DONE]" {
				return
			}

			var frame struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				continue
			}
			if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case out <- StreamDelta{Content: frame.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
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

// NewOpenAI returns the OpenAI connector.
func NewOpenAI(options ...Option) Connector {
	return newCompatClient("openai",
		"https://api.openai.com/v1/chat/completions",
		"OPENAI_API_KEY", "OPENAI_API_ENDPOINT", options...)
}

// NewGrok returns the xAI Grok connector. Grok exposes an
// OpenAI-compatible completions API.
func NewGrok(options ...Option) Connector {
	return newCompatClient("grok",
		"https://api.x.ai/v1/chat/completions",
		"XAI_API_KEY", "XAI_API_ENDPOINT", options...)
}

// NewDeepSeek returns the DeepSeek connector, also OpenAI-compatible.
func NewDeepSeek(options ...Option) Connector {
	return newCompatClient("deepseek",
		"https://api.deepseek.com/v1/chat/completions",
		"DEEPSEEK_API_KEY", "DEEPSEEK_API_ENDPOINT", options...)
}
