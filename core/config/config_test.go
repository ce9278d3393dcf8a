package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 30, cfg.Engine.TransportTimeoutSeconds)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 1024, cfg.Engine.QueueSize)
	assert.Equal(t, 24*60, cfg.Engine.StaleAfterMinutes)
	assert.Equal(t, BotsSourceDB, cfg.Bots.Source)
	assert.Equal(t, "bots", cfg.Bots.Dir)
}

func TestNormalizeRunModes(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{RunMode: "Polling"}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)

	cfg = &Config{Telegram: TelegramConfig{RunMode: "webhook"}}
	assert.ErrorContains(t, Normalize(cfg), "webhook.url")

	cfg = &Config{
		Telegram: TelegramConfig{RunMode: "webhook"},
		Webhook:  WebhookConfig{URL: "https://bots.example.com/", Port: 8443},
	}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "https://bots.example.com", cfg.Webhook.URL)

	cfg = &Config{Telegram: TelegramConfig{RunMode: "sse"}}
	assert.ErrorContains(t, Normalize(cfg), "invalid telegram.run_mode")
}

func TestNormalizeRejects(t *testing.T) {
	assert.Error(t, Normalize(nil))
	assert.Error(t, Normalize(&Config{RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline_query"}}}))
	assert.Error(t, Normalize(&Config{Engine: EngineConfig{Workers: -1}}))
	assert.Error(t, Normalize(&Config{Bots: BotsConfig{Source: "s3"}}))
}

func TestNormalizeRateLimitExclusions(t *testing.T) {
	cfg := &Config{RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback ", ""}}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, UpdateCallback, cfg.RateLimit.ExcludeUpdates[0])
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "telegram:\n  run_mode: longpoll\nengine:\n  workers: 2\nbots:\n  source: files\n  dir: ./defs\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("ENGINE_WORKERS", "5")
	t.Setenv("ENGINE_HANDOFF_NOTICE", "  Hold on  ")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.Workers)
	assert.Equal(t, "Hold on", cfg.Engine.HandoffNotice)
	assert.Equal(t, BotsSourceFiles, cfg.Bots.Source)
	assert.Equal(t, "./defs", cfg.Bots.Dir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
