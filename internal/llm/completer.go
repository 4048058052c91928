// Package llm turns a natural-language campaign description into targeting
// segments by asking a chat-completion model (OpenAI or AWS Bedrock).
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/pkg/httpretry"
)

// ErrNotConfigured is returned when no provider credentials are set.
var ErrNotConfigured = errors.New("llm: provider not configured")

// ErrNoMatchingSegments is returned when none of the suggestions names a
// field of the target table, so no filter could be built.
var ErrNoMatchingSegments = errors.New("llm: no suggestion matched a field of the table")

// Completer sends one system+user message pair and returns the model's
// text reply. Implementations ask the model for a JSON object.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Provider() string
}

// New builds the completer selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, ErrNotConfigured
		}
		// Throttled and 5xx replies are retried twice with backoff.
		retry := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, 2)
		return NewOpenAIClient(cfg.OpenAI, cfg.Timeout(), retry), nil
	case "bedrock":
		return NewBedrockClient(ctx, cfg.Bedrock)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
