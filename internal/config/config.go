package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultThreshold  = 200
	defaultSplitRatio = 0.2
	defaultSeed       = 42
	defaultInterval   = time.Hour
	defaultModelsDir  = "model"

	configPathEnv     = "RETRAINER_CONFIG"
	thresholdEnv      = "RETRAINER_THRESHOLD"
	splitRatioEnv     = "RETRAINER_SPLIT_RATIO"
	randomSeedEnv     = "RETRAINER_RANDOM_SEED"
	storagePathEnv    = "RETRAINER_STORAGE_PATH"
	storageDriverEnv  = "RETRAINER_STORAGE_DRIVER"
	modelsDirEnv      = "RETRAINER_MODELS_DIR"
	databaseDSNEnv    = "DATABASE_DSN"
	httpAddrEnv       = "RETRAINER_HTTP_ADDR"
	logLevelEnv       = "RETRAINER_LOG_LEVEL"
	githubEnvFileEnv  = "GITHUB_ENV"
	webhookURLEnv     = "RETRAINER_WEBHOOK_URL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Storage drivers understood by the application wiring.
const (
	DriverMemory   = "memory"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Storage       StorageConfig      `yaml:"storage"`
	Models        ModelsConfig       `yaml:"models"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	HTTP          HTTPConfig         `yaml:"http"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// PipelineConfig tunes the retraining decision.
type PipelineConfig struct {
	Threshold  int     `yaml:"threshold"`
	SplitRatio float64 `yaml:"splitRatio"`
	RandomSeed int64   `yaml:"randomSeed"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// ModelsConfig locates the exported model files named by MODEL_FILE.
type ModelsConfig struct {
	Dir string `yaml:"dir"`
}

// SchedulerConfig defines how often the pipeline runs in serve mode.
type SchedulerConfig struct {
	Interval string        `yaml:"interval"`
	every    time.Duration `yaml:"-"`
}

// Every resolves the interval string, falling back to one hour.
func (s SchedulerConfig) Every() time.Duration {
	if s.every > 0 {
		return s.every
	}
	return defaultInterval
}

// HTTPConfig configures the read-only ops listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	EnvFile  string         `yaml:"envFile"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// WebhookConfig points at deployment automation accepting outcome payloads.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads YAML configuration from path (or RETRAINER_CONFIG when path is
// empty), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.bindInterval()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Pipeline.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.threshold must be positive, got %d", c.Pipeline.Threshold))
	}
	if c.Pipeline.SplitRatio <= 0 || c.Pipeline.SplitRatio >= 1 {
		errs = append(errs, fmt.Errorf("pipeline.splitRatio must be in (0, 1), got %g", c.Pipeline.SplitRatio))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverBadger:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the badger driver"))
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(thresholdEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.Threshold = n
		} else {
			log.Printf("config: ignoring %s=%q: %v", thresholdEnv, v, err)
		}
	}
	if v := os.Getenv(splitRatioEnv); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Pipeline.SplitRatio = f
		} else {
			log.Printf("config: ignoring %s=%q: %v", splitRatioEnv, v, err)
		}
	}
	if v := os.Getenv(randomSeedEnv); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Pipeline.RandomSeed = n
		} else {
			log.Printf("config: ignoring %s=%q: %v", randomSeedEnv, v, err)
		}
	}

	if v := os.Getenv(storagePathEnv); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(modelsDirEnv); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(githubEnvFileEnv); v != "" {
		c.Notifications.EnvFile = v
	}
	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Notifications.Webhook.URL = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindInterval() {
	raw := c.Scheduler.Interval
	if raw == "" {
		c.Scheduler.every = defaultInterval
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("config: invalid scheduler interval %q, reverting to %s", raw, defaultInterval)
		d = defaultInterval
	}
	c.Scheduler.every = d
}

func mergeConfig(base, override Config) Config {
	if override.Pipeline.Threshold != 0 {
		base.Pipeline.Threshold = override.Pipeline.Threshold
	}
	if override.Pipeline.SplitRatio != 0 {
		base.Pipeline.SplitRatio = override.Pipeline.SplitRatio
	}
	if override.Pipeline.RandomSeed != 0 {
		base.Pipeline.RandomSeed = override.Pipeline.RandomSeed
	}

	if override.Storage.Driver != "" {
		base.Storage.Driver = override.Storage.Driver
	}
	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}
	if override.Storage.DSN != "" {
		base.Storage.DSN = override.Storage.DSN
	}

	if override.Models.Dir != "" {
		base.Models.Dir = override.Models.Dir
	}

	if override.Scheduler.Interval != "" {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Notifications.EnvFile != "" {
		base.Notifications.EnvFile = override.Notifications.EnvFile
	}
	if override.Notifications.Webhook.URL != "" {
		base.Notifications.Webhook.URL = override.Notifications.Webhook.URL
	}
	if override.Notifications.Webhook.APIKey != "" {
		base.Notifications.Webhook.APIKey = override.Notifications.Webhook.APIKey
	}
	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Pipeline: PipelineConfig{
			Threshold:  defaultThreshold,
			SplitRatio: defaultSplitRatio,
			RandomSeed: defaultSeed,
		},
		Storage:   StorageConfig{Driver: DriverBadger, Path: "data/store"},
		Models:    ModelsConfig{Dir: defaultModelsDir},
		Scheduler: SchedulerConfig{Interval: defaultInterval.String(), every: defaultInterval},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info"},
	}
}
