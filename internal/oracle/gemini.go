package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskagent/internal/logging"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Gemini talks to the Gemini API through google.golang.org/genai.
type Gemini struct {
	client         *genai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
}

// NewGemini creates a Gemini-backed oracle.
func NewGemini(ctx context.Context, apiKey, model, embeddingModel string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrOracleNotConfigured
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if embeddingModel == "" {
		embeddingModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		timeout:        timeout,
	}, nil
}

// Complete implements Oracle.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, []*genai.Part{genai.NewPartFromText(prompt)})
}

// CompleteWithMedia implements Oracle.
func (g *Gemini) CompleteWithMedia(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty %s payload", mimeType)
	}
	return g.generate(ctx, []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(data, mimeType),
	})
}

func (g *Gemini) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	logging.Get(logging.CategoryOracle).Debug("completion",
		zap.String("model", g.model),
		zap.Int("parts", len(parts)),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)))
	if text == "" {
		return "", fmt.Errorf("GenAI returned an empty response")
	}
	return text, nil
}

// Embed implements Oracle.
func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
