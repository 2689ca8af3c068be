// Package oracle is the request/response contract for the external
// text, image and audio model used by the extraction handlers.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"taskagent/internal/config"
)

// ErrOracleNotConfigured is returned by every call when no credential was
// configured.
var ErrOracleNotConfigured = errors.New("oracle not configured: set GEMINI_API_KEY or AIPROXY_TOKEN")

// Oracle answers prompts, optionally over an attached media blob.
type Oracle interface {
	// Complete sends a text prompt and returns the model's reply.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithMedia sends a prompt plus inline media (image/png,
	// audio/mpeg, ...) and returns the reply.
	CompleteWithMedia(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)

	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New returns the oracle selected by cfg. Without a credential it returns
// an oracle that fails every call with ErrOracleNotConfigured, so handlers
// that never consult it keep working.
func New(ctx context.Context, cfg *config.Config) (Oracle, error) {
	if !cfg.HasOracleKey() {
		return Unconfigured{}, nil
	}
	switch cfg.Oracle.Provider {
	case "gemini", "":
		return NewGemini(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.EmbeddingModel, cfg.GetOracleTimeout())
	default:
		return nil, fmt.Errorf("unsupported oracle provider: %s", cfg.Oracle.Provider)
	}
}

// Unconfigured fails every call with ErrOracleNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Complete(context.Context, string) (string, error) {
	return "", ErrOracleNotConfigured
}

func (Unconfigured) CompleteWithMedia(context.Context, string, []byte, string) (string, error) {
	return "", ErrOracleNotConfigured
}

func (Unconfigured) Embed(context.Context, []string) ([][]float32, error) {
	return nil, ErrOracleNotConfigured
}
