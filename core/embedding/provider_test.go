package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/siherrmann/memoria/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFunc(t *testing.T) {
	ctx := context.Background()

	t.Run("Embed through function", func(t *testing.T) {
		provider := FromFunc("test-model", func(text string) ([]float32, error) {
			return []float32{float32(len(text)), 1}, nil
		})

		assert.True(t, provider.Available(ctx))
		embedding, err := provider.Embed(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, []float32{3, 1}, embedding.Vector)
		assert.Equal(t, "test-model", embedding.Model)
	})

	t.Run("Function errors are wrapped", func(t *testing.T) {
		provider := FromFunc("test-model", func(text string) ([]float32, error) {
			return nil, assert.AnError
		})

		_, err := provider.Embed(ctx, "abc")
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("Empty vector is unavailable", func(t *testing.T) {
		provider := FromFunc("test-model", func(text string) ([]float32, error) {
			return []float32{}, nil
		})

		_, err := provider.Embed(ctx, "abc")
		assert.True(t, errors.Is(err, helper.ErrUnavailable))
	})

	t.Run("Disabled provider", func(t *testing.T) {
		provider := Disabled()

		assert.False(t, provider.Available(ctx))
		_, err := provider.Embed(ctx, "abc")
		assert.True(t, errors.Is(err, helper.ErrUnavailable))
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		provider := FromFunc("test-model", func(text string) ([]float32, error) {
			t.Fatal("Expected the function not to be called")
			return nil, nil
		})
		_, err := provider.Embed(cancelled, "abc")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewFromEnv(t *testing.T) {
	t.Run("Disabled by default", func(t *testing.T) {
		t.Setenv("MEMORIA_EMBED_PROVIDER", "")

		provider, err := NewFromEnv()
		require.NoError(t, err)
		assert.False(t, provider.Available(context.Background()))
	})

	t.Run("OpenAI provider", func(t *testing.T) {
		t.Setenv("MEMORIA_EMBED_PROVIDER", "openai")
		t.Setenv("MEMORIA_EMBED_URL", "http://localhost:1/v1")
		t.Setenv("MEMORIA_EMBED_MODEL", "custom")

		provider, err := NewFromEnv()
		require.NoError(t, err)
		require.IsType(t, &OpenAIProvider{}, provider)
		assert.Equal(t, "custom", provider.(*OpenAIProvider).model)
		assert.True(t, provider.Available(context.Background()))
	})

	t.Run("Unknown provider", func(t *testing.T) {
		t.Setenv("MEMORIA_EMBED_PROVIDER", "word2vec")

		_, err := NewFromEnv()
		assert.True(t, errors.Is(err, helper.ErrInvalidInput))
	})
}
