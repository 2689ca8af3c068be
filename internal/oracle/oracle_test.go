package oracle

import (
	"context"
	"errors"
	"testing"

	"taskagent/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithoutKeyIsUnconfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Oracle.APIKey = ""

	o, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, Unconfigured{}, o)

	_, err = o.Complete(context.Background(), "hi")
	assert.True(t, errors.Is(err, ErrOracleNotConfigured))
	_, err = o.CompleteWithMedia(context.Background(), "hi", []byte{1}, "image/png")
	assert.True(t, errors.Is(err, ErrOracleNotConfigured))
	_, err = o.Embed(context.Background(), []string{"a"})
	assert.True(t, errors.Is(err, ErrOracleNotConfigured))
}

func TestNew_UnsupportedProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Oracle.APIKey = "k"
	cfg.Oracle.Provider = "carrier-pigeon"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported oracle provider")
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "", "", 0)
	assert.True(t, errors.Is(err, ErrOracleNotConfigured))
}
