package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/northwind.sqlite", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Database.QueryTimeout)
	assert.Equal(t, "docs", cfg.Docs.Dir)
	assert.Equal(t, 3, cfg.Generator.MaxAttempts)
	assert.Equal(t, 5, cfg.Retriever.TopK)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentQuestions)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COPILOT_GENERATOR_MAX_ATTEMPTS", "5")
	t.Setenv("COPILOT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Generator.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "warn", Format: "console"})
	assert.NoError(t, err)
}
