package llm

import (
	"fmt"
	"strings"
)

// New constructs a connector for the given provider tag.
func New(provider string, options ...Option) (Connector, error) {
	switch strings.ToUpper(provider) {
	case "OPENAI":
		return NewOpenAI(options...), nil
	case "ANTHROPIC", "CLAUDE":
		return NewAnthropic(options...), nil
	case "GROK", "XAI":
		return NewGrok(options...), nil
	case "DEEPSEEK":
		return NewDeepSeek(options...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
