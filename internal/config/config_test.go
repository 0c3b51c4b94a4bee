package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RUNNING_IN_PRODUCTION", "1")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_REALTIME_DEPLOYMENT", "gpt-4o-realtime")

	cfg := Load()

	assert.Equal(t, "8765", cfg.App.Port)
	assert.Equal(t, "alloy", cfg.Realtime.VoiceChoice)
	assert.Equal(t, "chunk_id", cfg.Search.IdentifierField)
	assert.Equal(t, "chunk", cfg.Search.ContentField)
	assert.Equal(t, "text_vector", cfg.Search.EmbeddingField)
	assert.Equal(t, "title", cfg.Search.TitleField)
	assert.True(t, cfg.Search.UseVectorQuery)
	assert.NotEmpty(t, cfg.Realtime.SystemMessage)
	assert.Nil(t, cfg.Realtime.Temperature)
	assert.Nil(t, cfg.Realtime.MaxTokens)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RUNNING_IN_PRODUCTION", "1")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_REALTIME_DEPLOYMENT", "gpt-4o-realtime")
	t.Setenv("AZURE_SEARCH_USE_VECTOR_QUERY", "false")
	t.Setenv("REALTIME_TEMPERATURE", "0.6")
	t.Setenv("REALTIME_MAX_RESPONSE_TOKENS", "1024")

	cfg := Load()

	assert.False(t, cfg.Search.UseVectorQuery)
	if assert.NotNil(t, cfg.Realtime.Temperature) {
		assert.Equal(t, 0.6, *cfg.Realtime.Temperature)
	}
	if assert.NotNil(t, cfg.Realtime.MaxTokens) {
		assert.Equal(t, 1024, *cfg.Realtime.MaxTokens)
	}
}

func TestValidateRequiresRealtimeEndpoint(t *testing.T) {
	t.Setenv("RUNNING_IN_PRODUCTION", "1")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	t.Setenv("AZURE_OPENAI_REALTIME_DEPLOYMENT", "gpt-4o-realtime")

	cfg := Load()
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	t.Setenv("RUNNING_IN_PRODUCTION", "1")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_REALTIME_DEPLOYMENT", "gpt-4o-realtime")

	cfg := Load()
	assert.NoError(t, cfg.Validate())
}
