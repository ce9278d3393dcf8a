package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds settings shared by every bot the runtime serves.
// Bot tokens come from bot definitions, not from here.
type TelegramConfig struct {
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// SyncCommands publishes graph trigger commands as the bot's command menu.
	SyncCommands bool `yaml:"sync_commands" envconfig:"TELEGRAM_SYNC_COMMANDS"`
}

// WebhookConfig specifies the shared webhook listener. Each bot is served under
// URL + "/tg/" + botID.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Secret string `yaml:"secret" envconfig:"WEBHOOK_SECRET"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// EngineConfig tunes event processing.
type EngineConfig struct {
	TransportTimeoutSeconds int    `yaml:"transport_timeout_seconds" envconfig:"ENGINE_TRANSPORT_TIMEOUT_SECONDS"`
	HandoffNotice           string `yaml:"handoff_notice" envconfig:"ENGINE_HANDOFF_NOTICE"`
	// Workers and QueueSize size the per-session ingress queue.
	Workers   int `yaml:"workers" envconfig:"ENGINE_WORKERS"`
	QueueSize int `yaml:"queue_size" envconfig:"ENGINE_QUEUE_SIZE"`
	// StaleAfterMinutes is the idle time after which abandon-stale closes active and handoff sessions.
	StaleAfterMinutes int `yaml:"stale_after_minutes" envconfig:"ENGINE_STALE_AFTER_MINUTES"`
}

// BotsConfig selects where bot definitions are read from.
type BotsConfig struct {
	Source string `yaml:"source" envconfig:"BOTS_SOURCE"`
	Dir    string `yaml:"dir" envconfig:"BOTS_DIR"`
	// Seed copies file definitions into the database at startup when Source is db.
	Seed bool `yaml:"seed" envconfig:"BOTS_SEED"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// BotsSourceDB reads definitions from the bots table.
	BotsSourceDB = "db"
	// BotsSourceFiles reads definitions from a directory of YAML documents.
	BotsSourceFiles = "files"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	defaultTransportTimeoutSeconds = 30
	defaultWorkers                 = 8
	defaultQueueSize               = 1024
	defaultStaleAfterMinutes       = 24 * 60
	defaultBotsDir                 = "bots"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Engine    EngineConfig    `yaml:"engine"`
	Bots      BotsConfig      `yaml:"bots"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills out from the YAML file at path and then from the environment.
// out may be any struct carrying yaml and envconfig tags.
func Decode(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", out); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
		cfg.Webhook.URL = strings.TrimRight(strings.TrimSpace(cfg.Webhook.URL), "/")
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeEngine(&cfg.Engine); err != nil {
		return err
	}
	return normalizeBots(&cfg.Bots)
}

func normalizeEngine(e *EngineConfig) error {
	if e.TransportTimeoutSeconds < 0 || e.Workers < 0 || e.QueueSize < 0 || e.StaleAfterMinutes < 0 {
		return fmt.Errorf("engine settings must be >= 0")
	}
	if e.TransportTimeoutSeconds == 0 {
		e.TransportTimeoutSeconds = defaultTransportTimeoutSeconds
	}
	if e.Workers == 0 {
		e.Workers = defaultWorkers
	}
	if e.QueueSize == 0 {
		e.QueueSize = defaultQueueSize
	}
	if e.StaleAfterMinutes == 0 {
		e.StaleAfterMinutes = defaultStaleAfterMinutes
	}
	e.HandoffNotice = strings.TrimSpace(e.HandoffNotice)
	return nil
}

func normalizeBots(b *BotsConfig) error {
	src := strings.ToLower(strings.TrimSpace(b.Source))
	if src == "" {
		src = BotsSourceDB
	}
	switch src {
	case BotsSourceDB, BotsSourceFiles:
	default:
		return fmt.Errorf("invalid bots.source %q; allowed: db, files", b.Source)
	}
	b.Source = src
	b.Dir = strings.TrimSpace(b.Dir)
	if b.Dir == "" {
		b.Dir = defaultBotsDir
	}
	return nil
}
