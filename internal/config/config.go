// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. YIELDSCOPE_HTTP_ADDR.
const EnvPrefix = "YIELDSCOPE"

// Source modes for a provider's primary data.
const (
	SourceAPI    = "api"
	SourceFile   = "file"
	SourceStatic = "static"
)

type Config struct {
	HTTPAddr       string         `mapstructure:"http_addr"`
	RefreshCron    string         `mapstructure:"refresh_cron"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	TVLMinRiskUSD  float64        `mapstructure:"tvl_min_risk_usd"`
	RedisURL       string         `mapstructure:"redis_url"`
	PostgresURL    string         `mapstructure:"postgres_url"`
	Aave           ProviderConfig `mapstructure:"aave"`
	Curve          ProviderConfig `mapstructure:"curve"`
	Gas            GasConfig      `mapstructure:"gas"`
	Quote          QuoteConfig    `mapstructure:"quote"`
	Export         ExportConfig   `mapstructure:"export"`
	Log            logger.Config  `mapstructure:"log"`
}

// ProviderConfig selects and tunes one protocol's data source.
// Endpoints maps chain names to subgraph URLs (Aave only).
type ProviderConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Source         string            `mapstructure:"source"`
	Endpoints      map[string]string `mapstructure:"endpoints"`
	BaseURL        string            `mapstructure:"base_url"`
	DataFile       string            `mapstructure:"data_file"`
	Retries        int               `mapstructure:"retries"`
	RetryInitial   time.Duration     `mapstructure:"retry_initial"`
	RetryMax       time.Duration     `mapstructure:"retry_max"`
	Exhaustion     string            `mapstructure:"exhaustion"`
	MemoTTL        time.Duration     `mapstructure:"memo_ttl"`
	SnapshotTTL    time.Duration     `mapstructure:"snapshot_ttl"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

type GasConfig struct {
	OracleURL string        `mapstructure:"oracle_url"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	TableFile string        `mapstructure:"table_file"`
}

type QuoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ExportConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

const (
	DefaultHTTPAddr       = ":8080"
	DefaultRefreshCron    = "@every 5m"
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetries        = 3
	DefaultRetryInitial   = time.Second
	DefaultRetryMax       = 2 * time.Second
	DefaultMemoTTL        = 5 * time.Minute
	DefaultGasCacheTTL    = 30 * time.Second
	DefaultTVLMinRiskUSD  = 1e9
)

func defaults() map[string]interface{} {
	d := map[string]interface{}{
		"http_addr":        DefaultHTTPAddr,
		"refresh_cron":     DefaultRefreshCron,
		"request_timeout":  DefaultRequestTimeout,
		"tvl_min_risk_usd": DefaultTVLMinRiskUSD,
		"redis_url":        "",
		"postgres_url":     "",
		"gas.oracle_url":   "",
		"gas.cache_ttl":    DefaultGasCacheTTL,
		"gas.table_file":   "",
		"quote.base_url":   "https://li.quest/v1",
		"quote.api_key":    "",
		"export.dir":       "",
		"export.formats":   []string{"json"},
		"log.file":         "logs/yieldscope.log",
		"log.max_size_mb":  100,
		"log.max_age_days": 7,
		"log.max_backups":  3,
		"log.compress":     true,
		"log.development":  false,
		"log.console":      true,
		"curve.base_url":   "https://api.curve.fi/api",
		"aave.endpoints":   map[string]string{},
		"aave.source":      SourceAPI,
		"curve.source":     SourceAPI,
	}
	for _, p := range []string{"aave", "curve"} {
		d[p+".enabled"] = true
		d[p+".data_file"] = ""
		d[p+".retries"] = DefaultRetries
		d[p+".retry_initial"] = DefaultRetryInitial
		d[p+".retry_max"] = DefaultRetryMax
		d[p+".exhaustion"] = "fallback"
		d[p+".memo_ttl"] = DefaultMemoTTL
		d[p+".snapshot_ttl"] = DefaultMemoTTL
		d[p+".request_timeout"] = time.Duration(0)
	}
	return d
}

// LoadConfig reads path (JSON or YAML, optional), then .env, then YIELDSCOPE_* variables.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	loadEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyProviderDefaults(&cfg)

	return &cfg, validateConfig(&cfg)
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	var cfg Config
	_ = v.Unmarshal(&cfg)
	applyProviderDefaults(&cfg)
	return &cfg
}

func applyProviderDefaults(cfg *Config) {
	for _, p := range []*ProviderConfig{&cfg.Aave, &cfg.Curve} {
		if p.RequestTimeout <= 0 {
			p.RequestTimeout = cfg.RequestTimeout
		}
	}
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Aave endpoints come as "ethereum=https://...,polygon=https://...".
	if raw := v.GetString("AAVE_ENDPOINTS_LIST"); raw != "" {
		endpoints := map[string]string{}
		for _, pair := range strings.Split(raw, ",") {
			chain, endpoint, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && chain != "" && endpoint != "" {
				endpoints[strings.TrimSpace(chain)] = strings.TrimSpace(endpoint)
			}
		}
		if len(endpoints) > 0 {
			v.Set("aave.endpoints", endpoints)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return errors.New("http_addr is empty")
	}
	if cfg.RefreshCron != "" {
		if _, err := cron.ParseStandard(cfg.RefreshCron); err != nil {
			return fmt.Errorf("invalid refresh_cron %q: %w", cfg.RefreshCron, err)
		}
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("invalid request_timeout")
	}
	if cfg.TVLMinRiskUSD <= 0 {
		return errors.New("invalid tvl_min_risk_usd")
	}
	if !cfg.Aave.Enabled && !cfg.Curve.Enabled {
		return errors.New("no provider enabled")
	}
	if err := validateProvider("aave", &cfg.Aave); err != nil {
		return err
	}
	if err := validateProvider("curve", &cfg.Curve); err != nil {
		return err
	}
	for _, raw := range []string{cfg.Gas.OracleURL, cfg.Quote.BaseURL} {
		if raw == "" {
			continue
		}
		if err := validateURLWithCache(raw, "http"); err != nil {
			return fmt.Errorf("invalid URL %q: %w", raw, err)
		}
	}
	if cfg.RedisURL != "" {
		if err := validateURLWithCache(cfg.RedisURL, "redis"); err != nil {
			return errors.New("redis_url must use redis:// or rediss://")
		}
	}
	if cfg.PostgresURL != "" {
		if err := validateURLWithCache(cfg.PostgresURL, "postgres"); err != nil {
			return errors.New("postgres_url must use postgres:// or postgresql://")
		}
	}
	for _, f := range cfg.Export.Formats {
		if f != "json" && f != "csv" {
			return fmt.Errorf("unsupported export format %q", f)
		}
	}
	return nil
}

func validateProvider(name string, p *ProviderConfig) error {
	if !p.Enabled {
		return nil
	}
	switch p.Source {
	case SourceAPI, SourceStatic:
	case SourceFile:
		if p.DataFile == "" {
			return fmt.Errorf("%s: source file needs data_file", name)
		}
	default:
		return fmt.Errorf("%s: unknown source %q", name, p.Source)
	}
	if p.Retries < 1 {
		return fmt.Errorf("%s: invalid retries count", name)
	}
	if p.RetryInitial <= 0 || p.RetryMax < p.RetryInitial {
		return fmt.Errorf("%s: invalid retry intervals", name)
	}
	if p.Exhaustion != "fail" && p.Exhaustion != "fallback" {
		return fmt.Errorf("%s: exhaustion must be fail or fallback", name)
	}
	for chain, endpoint := range p.Endpoints {
		if _, err := domain.ParseChain(chain); err != nil {
			return fmt.Errorf("%s endpoints: %w", name, err)
		}
		if err := validateURLWithCache(endpoint, "http"); err != nil {
			return fmt.Errorf("%s endpoint for %s: %w", name, chain, err)
		}
	}
	if p.BaseURL != "" {
		if err := validateURLWithCache(p.BaseURL, "http"); err != nil {
			return fmt.Errorf("%s base_url: %w", name, err)
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	key := protocol + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(key, parsed)
	return nil
}
