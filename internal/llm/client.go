// Package llm wraps the generative completion services the healer may
// consult. The engine only ever sends one plain-text prompt and reads the
// text back; provider specifics stay behind Client.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const envProvider = "LLM_PROVIDER" // "anthropic" or "openai"

// Client is a text-in/text-out completion service.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	Text string
}

// capMessages returns a copy of msgs with oversized contents cut down to
// limit. The caller's slice is left untouched; a retried Request must not
// carry the truncation marks of an earlier attempt.
func capMessages(msgs []Message, limit int, logger zerolog.Logger) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i, m := range out {
		if len(m.Content) > limit {
			logger.Warn().Int("message_idx", i).Int("size", len(m.Content)).Msg("message too large, truncating")
			out[i].Content = m.Content[:limit] + "... [truncated]"
		}
	}
	return out
}

// resolveMaxTokens honors an explicit request, including one below the
// provider default, and falls back to the default only when unset.
func resolveMaxTokens(requested, def int) int {
	if requested > 0 {
		return requested
	}
	return def
}

// NewClientFromEnv selects the provider via LLM_PROVIDER, defaulting to
// anthropic.
func NewClientFromEnv(logger zerolog.Logger) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv(envProvider)))
	if provider == "" {
		provider = "anthropic"
	}
	switch provider {
	case "openai":
		return NewOpenAI(logger)
	case "anthropic":
		return NewAnthropic(logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic' or 'openai')", provider)
	}
}
