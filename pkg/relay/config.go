// Copyright 2024-2026 Aiku AI

package relay

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
	"go.mau.fi/util/ptr"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Default values for optional configuration fields.
const (
	DefaultSessionFile    = "telegram.session"
	DefaultDatabaseURI    = "file:relay.db?_txlock=immediate"
	DefaultRequestTimeout = 30 * time.Second
	DefaultStatsInterval  = 5 * time.Minute
)

// Config is the full relay configuration, loaded from a single YAML file.
type Config struct {
	Telegram TelegramConfig    `yaml:"telegram"`
	Discord  DiscordConfig     `yaml:"discord"`
	Relay    RelayConfig       `yaml:"relay"`
	Database dbutil.Config     `yaml:"database"`
	Logging  zeroconfig.Config `yaml:"logging"`
}

// TelegramConfig identifies the source account and channel.
type TelegramConfig struct {
	APIID       int    `yaml:"api_id"`
	APIHash     string `yaml:"api_hash"`
	PhoneNumber string `yaml:"phone_number"`
	SessionFile string `yaml:"session_file"`
	ChannelID   int64  `yaml:"channel_id"`
}

// DiscordConfig identifies the destination bot and channels.
type DiscordConfig struct {
	Token    string         `yaml:"token"`
	Channels ChannelsConfig `yaml:"channels"`
}

// ChannelsConfig holds the destination channel ids per role.
type ChannelsConfig struct {
	VIPSignals  string `yaml:"vip_signals"`
	FreeSignals string `yaml:"free_signals"`
	Analysis    string `yaml:"analysis"`
}

// RelayConfig holds routing behavior options.
type RelayConfig struct {
	// Enabled is the master switch. When false the relay consumes events
	// but never forwards anything.
	Enabled bool `yaml:"enabled"`
	// FreeSampleRate is the sampling denominator N: every Nth signal is
	// mirrored to the free channel.
	FreeSampleRate int `yaml:"free_sample_rate"`
	// EnableAnalysisRouting routes analysis-type content to the dedicated
	// analysis channel. When false that content goes to the VIP signals
	// channel instead.
	EnableAnalysisRouting bool `yaml:"enable_analysis_routing"`
	// EnablePerformanceMonitoring turns on periodic stats logging.
	EnablePerformanceMonitoring bool `yaml:"enable_performance_monitoring"`
	// RequestTimeout bounds every gateway and store call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// StatsInterval is how often stats are logged when monitoring is on.
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// DefaultConfig returns a config with all optional fields set to their
// defaults. LoadConfig unmarshals on top of this, so omitted keys keep the
// default rather than the zero value.
func DefaultConfig() Config {
	return Config{
		Telegram: TelegramConfig{
			SessionFile: DefaultSessionFile,
		},
		Relay: RelayConfig{
			Enabled:                     true,
			FreeSampleRate:              DefaultFreeSampleRate,
			EnableAnalysisRouting:       true,
			EnablePerformanceMonitoring: true,
			RequestTimeout:              DefaultRequestTimeout,
			StatsInterval:               DefaultStatsInterval,
		},
		Database: dbutil.Config{
			PoolConfig: dbutil.PoolConfig{
				Type:         "sqlite3",
				URI:          DefaultDatabaseURI,
				MaxOpenConns: 5,
				MaxIdleConns: 1,
			},
		},
		Logging: zeroconfig.Config{
			MinLevel: ptr.Ptr(zerolog.InfoLevel),
			Writers: []zeroconfig.WriterConfig{{
				Type:   zeroconfig.WriterTypeStdout,
				Format: zeroconfig.LogFormatPrettyColored,
			}},
		},
	}
}

// LoadConfig reads and parses the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every required field is present. A validation error
// is fatal at startup: the relay must not run half-configured.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("telegram.api_id is required")
	}
	if c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram.api_hash is required")
	}
	if c.Telegram.PhoneNumber == "" {
		return fmt.Errorf("telegram.phone_number is required")
	}
	if c.Telegram.ChannelID == 0 {
		return fmt.Errorf("telegram.channel_id is required")
	}
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if c.Discord.Channels.VIPSignals == "" {
		return fmt.Errorf("discord.channels.vip_signals is required")
	}
	if c.Discord.Channels.FreeSignals == "" {
		return fmt.Errorf("discord.channels.free_signals is required")
	}
	if c.Discord.Channels.Analysis == "" {
		return fmt.Errorf("discord.channels.analysis is required")
	}
	if c.Relay.FreeSampleRate < 1 {
		return fmt.Errorf("relay.free_sample_rate must be at least 1")
	}
	if c.Database.URI == "" {
		return fmt.Errorf("database.uri is required")
	}
	return nil
}
