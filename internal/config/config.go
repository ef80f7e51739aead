// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
)

// EnvPrefix namespaces environment overrides, e.g. CRAWLER_API_TOKEN.
const EnvPrefix = "CRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Output  OutputConfig  `mapstructure:"output"`
	DB      DBConfig      `mapstructure:"db"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig describes how to reach the upstream API.
type APIConfig struct {
	Token             string        `mapstructure:"token"`
	Proxy             bool          `mapstructure:"proxy"`
	BaseURL           string        `mapstructure:"base_url"`
	ProxyURL          string        `mapstructure:"proxy_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	TransportRetries  int           `mapstructure:"transport_retries"`
}

// CrawlerConfig governs the crawl session.
type CrawlerConfig struct {
	Seeds           []string      `mapstructure:"seeds"`
	RankedTarget    int           `mapstructure:"ranked_target"`
	LadderTarget    int           `mapstructure:"ladder_target"`
	MaxBattlelogs   int           `mapstructure:"max_battlelogs"`
	MaxBattles      int           `mapstructure:"max_battles"`
	Concurrency     int           `mapstructure:"concurrency"`
	ThrottleBackoff time.Duration `mapstructure:"throttle_backoff"`
	LowRatingCutoff int           `mapstructure:"low_rating_cutoff"`
}

// OutputConfig controls the battle files and their archive.
type OutputConfig struct {
	Dir             string `mapstructure:"dir"`
	Compress        bool   `mapstructure:"compress"`
	KeepOriginal    bool   `mapstructure:"keep_original"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	Prefix          string `mapstructure:"prefix"`
	LocalArchiveDir string `mapstructure:"local_archive_dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SQLiteConfig enables the embedded battle store when Path is set.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PubSubConfig holds metadata for batch notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig selects console and file log levels.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	FileLevel   string `mapstructure:"file_level"`
}

// New returns a Viper instance with env bindings and defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	return LoadFrom(New(), path)
}

// LoadDotEnv reads a .env file from the working directory when present.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadFrom reads path (if any) into v and decodes the result. Callers that
// bind flags to v do so before calling LoadFrom.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.proxy", false)
	v.SetDefault("api.base_url", crawler.DirectBaseURL)
	v.SetDefault("api.proxy_url", crawler.ProxyBaseURL)
	v.SetDefault("api.user_agent", "ladder-battle-crawler/1.0")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.requests_per_second", 0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("api.transport_retries", 0)
	v.SetDefault("crawler.seeds", tagsToStrings(crawler.DefaultSeeds))
	v.SetDefault("crawler.ranked_target", crawler.DefaultTarget)
	v.SetDefault("crawler.ladder_target", crawler.DefaultTarget)
	v.SetDefault("crawler.max_battlelogs", 0)
	v.SetDefault("crawler.max_battles", 0)
	v.SetDefault("crawler.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawler.throttle_backoff", crawler.DefaultThrottleBackoff.String())
	v.SetDefault("crawler.low_rating_cutoff", crawler.DefaultLowRatingCutoff)
	v.SetDefault("output.dir", "db-hour")
	v.SetDefault("output.compress", false)
	v.SetDefault("output.keep_original", false)
	v.SetDefault("output.prefix", "battles")
	v.SetDefault("db.table", "battles")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.file_level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("api.token must be set (env %s_API_TOKEN)", EnvPrefix)
	}
	if c.API.BaseURL == "" || c.API.ProxyURL == "" {
		return fmt.Errorf("api.base_url and api.proxy_url must be set")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}
	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("api.requests_per_second must be >= 0")
	}
	if c.API.TransportRetries < 0 {
		return fmt.Errorf("api.transport_retries must be >= 0")
	}
	if len(c.Crawler.Seeds) == 0 {
		return fmt.Errorf("crawler.seeds must not be empty")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxBattlelogs < 0 || c.Crawler.MaxBattles < 0 {
		return fmt.Errorf("crawler.max_battlelogs and crawler.max_battles must be >= 0")
	}
	if c.Crawler.ThrottleBackoff < 0 {
		return fmt.Errorf("crawler.throttle_backoff must be >= 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Output.KeepOriginal && !c.Output.Compress {
		return fmt.Errorf("output.keep_original requires output.compress")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// BaseURL returns the endpoint selected by the proxy toggle.
func (c Config) BaseURL() string {
	if c.API.Proxy {
		return c.API.ProxyURL
	}
	return c.API.BaseURL
}

// EngineConfig converts the crawler section into the engine's settings.
func (c Config) EngineConfig() crawler.Config {
	seeds := make([]crawler.PlayerTag, 0, len(c.Crawler.Seeds))
	for _, s := range c.Crawler.Seeds {
		if tag := crawler.NormalizeTag(s); tag != "" {
			seeds = append(seeds, tag)
		}
	}
	return crawler.Config{
		Seeds:           seeds,
		RankedTarget:    c.Crawler.RankedTarget,
		LadderTarget:    c.Crawler.LadderTarget,
		LowRatingCutoff: c.Crawler.LowRatingCutoff,
		MaxBattlelogs:   c.Crawler.MaxBattlelogs,
		MaxBattles:      c.Crawler.MaxBattles,
		Concurrency:     c.Crawler.Concurrency,
	}
}

// ClientConfig converts the api section into the API client's settings.
func (c Config) ClientConfig() crawler.APIConfig {
	return crawler.APIConfig{
		Token:           c.API.Token,
		BaseURL:         c.BaseURL(),
		ThrottleBackoff: c.Crawler.ThrottleBackoff,
	}
}

func tagsToStrings(tags []crawler.PlayerTag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}
