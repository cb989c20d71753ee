package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration, resolved once at process
// start. Business logic receives the relevant sub-struct; nothing reads the
// environment after Load returns.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Scrape ScrapeConfig `yaml:"scrape" mapstructure:"scrape"`
	Upsert UpsertConfig `yaml:"upsert" mapstructure:"upsert"`
	CRM    CRMConfig    `yaml:"crm" mapstructure:"crm"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Sheets SheetsConfig `yaml:"sheets" mapstructure:"sheets"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the trigger HTTP server.
type ServerConfig struct {
	Port   int    `yaml:"port" mapstructure:"port"`
	Secret string `yaml:"secret" mapstructure:"secret"`
}

// ScrapeConfig configures fetching and row mapping.
type ScrapeConfig struct {
	DefaultRegion string `yaml:"default_region" mapstructure:"default_region"`
	MaxParallel   int    `yaml:"max_parallel" mapstructure:"max_parallel"`
}

// UpsertConfig configures record matching.
type UpsertConfig struct {
	MatchByHash bool `yaml:"match_by_hash" mapstructure:"match_by_hash"`
}

// CRMConfig configures the CRM integration.
type CRMConfig struct {
	Enabled     bool           `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string         `yaml:"base_url" mapstructure:"base_url"`
	Token       string         `yaml:"token" mapstructure:"token"`
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateRPS     float64        `yaml:"rate_rps" mapstructure:"rate_rps"`
	Defaults    map[string]any `yaml:"defaults" mapstructure:"defaults"`
}

// Configured reports whether the client can be constructed at all.
func (c CRMConfig) Configured() bool {
	return c.BaseURL != "" && c.Token != ""
}

// SyncConfig configures the outbound sync sweep.
type SyncConfig struct {
	BatchLimit  int `yaml:"batch_limit" mapstructure:"batch_limit"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// SheetsConfig configures the spreadsheet append sink.
type SheetsConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadforge.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scrape.default_region", "US")
	v.SetDefault("scrape.max_parallel", 4)
	v.SetDefault("upsert.match_by_hash", true)
	v.SetDefault("crm.enabled", false)
	v.SetDefault("crm.timeout_secs", 20)
	v.SetDefault("sync.batch_limit", 100)
	v.SetDefault("sync.max_attempts", 8)
	v.SetDefault("sheets.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
