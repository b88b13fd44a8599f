package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INTERVIEW_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "openai", cfg.AI.Provider)
	require.Equal(t, 2, cfg.AI.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.AI.AttemptTimeout)
	require.Equal(t, 20, cfg.SubmissionRateLimit)
	require.Equal(t, "*", cfg.CORSOrigins)
}

func TestLoadKeepsZeroRetries(t *testing.T) {
	t.Setenv("INTERVIEW_JWT_SECRET", "secret")
	t.Setenv("INTERVIEW_AI_MAX_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0, cfg.AI.MaxRetries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("INTERVIEW_JWT_SECRET", "secret")

	t.Setenv("INTERVIEW_AI_MAX_RETRIES", "-1")
	_, err := Load()
	require.ErrorContains(t, err, "ai max retries must not be negative")

	t.Setenv("INTERVIEW_AI_MAX_RETRIES", "1")
	t.Setenv("INTERVIEW_AI_PROVIDER", "gemini")
	_, err = Load()
	require.ErrorContains(t, err, "unsupported ai provider")

	t.Setenv("INTERVIEW_AI_PROVIDER", "anthropic")
	t.Setenv("INTERVIEW_JWT_SECRET", "")
	_, err = Load()
	require.ErrorContains(t, err, "jwt secret must be provided")
}
