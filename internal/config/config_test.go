package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MSG_SVC_DATABASE_HOST", "localhost")
	t.Setenv("MSG_SVC_DATABASE_NAME", "wa_agent")
	t.Setenv("MSG_SVC_DATABASE_USER", "wa_agent")
	t.Setenv("MSG_SVC_REDIS_HOST", "localhost")
	t.Setenv("MSG_SVC_LLM_BASE_URL", "https://api.openai.com/v1")
	t.Setenv("MSG_SVC_VECTOR_QDRANT_URL", "http://localhost:6334")
	t.Setenv("MSG_SVC_CRYPTO_ENCRYPTION_KEY", "test-key")
}

func TestLoad_AppliesDefaultsAndValidates(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.True(t, cfg.RateLimit.FailOpen)
	require.Equal(t, 20, cfg.Inference.HistoryWindow)
}

func TestLoad_RejectsMissingDatabaseHost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MSG_SVC_DATABASE_HOST", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsInvalidLLMProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MSG_SVC_LLM_PROVIDER", "anthropic")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsMissingEncryptionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MSG_SVC_CRYPTO_ENCRYPTION_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_OllamaProviderIsValid(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MSG_SVC_LLM_PROVIDER", "ollama")
	t.Setenv("MSG_SVC_LLM_BASE_URL", "http://localhost:11434")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ollama", cfg.LLM.Provider)
}
