package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"goldprice/internal/karat"
	"goldprice/internal/parse"
)

type Server struct {
	Port               string `mapstructure:"port"`
	RequestTimeoutSec  int    `mapstructure:"request_timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"`
	MaxBodyBytes       int64  `mapstructure:"max_body_bytes"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
	Output string `mapstructure:"output"` // stdout | stderr | file path
}

type Refresh struct {
	Enabled          bool `mapstructure:"enabled"`
	IntervalSec      int  `mapstructure:"interval_sec"`
	AdapterTimeoutMs int  `mapstructure:"adapter_timeout_ms"`
	Concurrency      int  `mapstructure:"concurrency"`
}

type Store struct {
	Driver      string `mapstructure:"driver"` // memory | postgres
	DatabaseURL string `mapstructure:"database_url"`
	Migrate     bool   `mapstructure:"migrate"`
	MaxConns    int    `mapstructure:"max_conns"`
}

type GoldAPI struct {
	Enabled               bool    `mapstructure:"enabled"`
	Endpoint              string  `mapstructure:"endpoint"`
	APIKey                string  `mapstructure:"api_key"`
	Symbol                string  `mapstructure:"symbol"`
	Currency              string  `mapstructure:"currency"`
	ConversionRate        float64 `mapstructure:"conversion_rate"`
	TimeoutMs             int     `mapstructure:"timeout_ms"`
	MaxRequestsPerMinute  int     `mapstructure:"max_requests_per_minute"`
	MinRequestIntervalSec int     `mapstructure:"min_request_interval_sec"`
	Burst                 int     `mapstructure:"burst"`
	CacheTTLSeconds       int     `mapstructure:"cache_ttl_sec"`
}

type Scraper struct {
	ID           string  `mapstructure:"id"`
	URL          string  `mapstructure:"url"`
	Enabled      bool    `mapstructure:"enabled"`
	TimeoutMs    int     `mapstructure:"timeout_ms"`
	DefaultKarat int     `mapstructure:"default_karat"`
	SellRatio    float64 `mapstructure:"sell_ratio"`
	// Band overrides the global band for this site when set.
	Band                  parse.Band `mapstructure:"band"`
	Strategies            []string   `mapstructure:"strategies"`
	MinRequestIntervalSec int        `mapstructure:"min_request_interval_sec"`
	CacheTTLSeconds       int        `mapstructure:"cache_ttl_sec"`
}

type Estimator struct {
	ReferencePrice float64         `mapstructure:"reference_price"`
	BuybackRatio   float64         `mapstructure:"buyback_ratio"`
	Markups        map[int]float64 `mapstructure:"markups"`
}

type Market struct {
	Location  string `mapstructure:"location"`
	Timezone  string `mapstructure:"timezone"`
	OpenHour  int    `mapstructure:"open_hour"`
	CloseHour int    `mapstructure:"close_hour"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	Server    Server     `mapstructure:"server"`
	Log       Log        `mapstructure:"log"`
	Currency  string     `mapstructure:"currency"`
	Band      parse.Band `mapstructure:"band"`
	Karats    []int      `mapstructure:"karats"`
	Refresh   Refresh    `mapstructure:"refresh"`
	Store     Store      `mapstructure:"store"`
	GoldAPI   GoldAPI    `mapstructure:"goldapi"`
	Scrapers  []Scraper  `mapstructure:"scrapers"`
	Estimator Estimator  `mapstructure:"estimator"`
	Market    Market     `mapstructure:"market"`
	Metrics   Metrics    `mapstructure:"metrics"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10, ShutdownTimeoutSec: 10, MaxBodyBytes: 1 << 20},
		Log:    Log{Level: "info", Format: "json", Output: "stdout"},

		Currency: "IDR",
		Band:     parse.DefaultBand,
		Karats:   append([]int(nil), karat.Standard...),

		Refresh: Refresh{Enabled: true, IntervalSec: 300, AdapterTimeoutMs: 10_000, Concurrency: 4},
		Store:   Store{Driver: "memory", Migrate: true, MaxConns: 4},
		GoldAPI: GoldAPI{
			Enabled:              false,
			Endpoint:             "https://www.goldapi.io/api",
			Symbol:               "XAU",
			Currency:             "IDR",
			ConversionRate:       1,
			TimeoutMs:            5_000,
			MaxRequestsPerMinute: 2,
			Burst:                1,
			CacheTTLSeconds:      60,
		},
		Scrapers: []Scraper{
			{
				ID:                    "harga-emas",
				URL:                   "https://harga-emas.org/",
				Enabled:               true,
				TimeoutMs:             8_000,
				MinRequestIntervalSec: 30,
				CacheTTLSeconds:       120,
			},
			{
				ID:                    "logammulia",
				URL:                   "https://www.logammulia.com/id/harga-emas-hari-ini",
				Enabled:               true,
				TimeoutMs:             8_000,
				DefaultKarat:          24,
				SellRatio:             0.95,
				MinRequestIntervalSec: 30,
				CacheTTLSeconds:       120,
			},
			{
				ID:                    "antam",
				URL:                   "https://www.antam.com/id/harga-emas",
				Enabled:               true,
				TimeoutMs:             8_000,
				DefaultKarat:          24,
				SellRatio:             0.96,
				Strategies:            []string{"table"},
				MinRequestIntervalSec: 30,
				CacheTTLSeconds:       120,
			},
			{
				ID:                    "pegadaian",
				URL:                   "https://www.pegadaian.co.id/harga-emas",
				Enabled:               true,
				TimeoutMs:             8_000,
				DefaultKarat:          22,
				SellRatio:             0.85,
				Band:                  parse.Band{Min: 800_000, Max: 1_500_000},
				MinRequestIntervalSec: 30,
				CacheTTLSeconds:       120,
			},
		},
		Estimator: Estimator{ReferencePrice: 1_125_000, BuybackRatio: 0.85},
		Market:    Market{Location: "Jakarta", Timezone: "Asia/Jakarta", OpenHour: 9, CloseHour: 17},
		Metrics:   Metrics{Enabled: true},
	}
}

// env names kept for deployments that predate the config file.
var envAliases = map[string][]string{
	"server.port":        {"PORT"},
	"store.database_url": {"DATABASE_URL"},
	"store.driver":       {"STORE_DRIVER"},
	"goldapi.api_key":    {"GOLDAPI_API_KEY", "GOLD_API_KEY"},
	"log.level":          {"LOG_LEVEL"},
	"log.format":         {"LOG_FORMAT"},
}

// Load reads a JSON or YAML config from path. With an empty path it looks for
// config.json or config.yaml in the working directory, and returns defaults if
// neither exists. A .env file is loaded first when present. Environment variables
// named GOLDPRICE_<SECTION>_<KEY> override file values, as do the legacy names in
// envAliases.
func Load(path string) (Config, error) {
	cfg := Default()
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix("GOLDPRICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key, "GOLDPRICE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)...); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path == "" {
		for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// lists from the file replace the defaults instead of merging into them by index
	if v.IsSet("scrapers") {
		cfg.Scrapers = nil
	}
	if v.IsSet("karats") {
		cfg.Karats = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override keys the config
// file leaves out. Lists and maps stay in the struct only; registering them would make
// IsSet report them as set.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout_sec", d.Server.RequestTimeoutSec)
	v.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownTimeoutSec)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)

	v.SetDefault("currency", d.Currency)
	v.SetDefault("band.min", d.Band.Min)
	v.SetDefault("band.max", d.Band.Max)

	v.SetDefault("refresh.enabled", d.Refresh.Enabled)
	v.SetDefault("refresh.interval_sec", d.Refresh.IntervalSec)
	v.SetDefault("refresh.adapter_timeout_ms", d.Refresh.AdapterTimeoutMs)
	v.SetDefault("refresh.concurrency", d.Refresh.Concurrency)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.database_url", d.Store.DatabaseURL)
	v.SetDefault("store.migrate", d.Store.Migrate)
	v.SetDefault("store.max_conns", d.Store.MaxConns)

	v.SetDefault("goldapi.enabled", d.GoldAPI.Enabled)
	v.SetDefault("goldapi.endpoint", d.GoldAPI.Endpoint)
	v.SetDefault("goldapi.api_key", d.GoldAPI.APIKey)
	v.SetDefault("goldapi.symbol", d.GoldAPI.Symbol)
	v.SetDefault("goldapi.currency", d.GoldAPI.Currency)
	v.SetDefault("goldapi.conversion_rate", d.GoldAPI.ConversionRate)
	v.SetDefault("goldapi.timeout_ms", d.GoldAPI.TimeoutMs)
	v.SetDefault("goldapi.max_requests_per_minute", d.GoldAPI.MaxRequestsPerMinute)
	v.SetDefault("goldapi.min_request_interval_sec", d.GoldAPI.MinRequestIntervalSec)
	v.SetDefault("goldapi.burst", d.GoldAPI.Burst)
	v.SetDefault("goldapi.cache_ttl_sec", d.GoldAPI.CacheTTLSeconds)

	v.SetDefault("estimator.reference_price", d.Estimator.ReferencePrice)
	v.SetDefault("estimator.buyback_ratio", d.Estimator.BuybackRatio)

	v.SetDefault("market.location", d.Market.Location)
	v.SetDefault("market.timezone", d.Market.Timezone)
	v.SetDefault("market.open_hour", d.Market.OpenHour)
	v.SetDefault("market.close_hour", d.Market.CloseHour)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

var (
	ErrInvalidBand   = errors.New("config: band.min must be positive and below band.max")
	ErrNoKarats      = errors.New("config: karats must not be empty")
	ErrUnknownDriver = errors.New("config: unknown store driver")
)

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if !c.Band.Valid() {
		return ErrInvalidBand
	}
	if len(c.Karats) == 0 {
		return ErrNoKarats
	}
	if _, err := karat.NewTable(c.Karats); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return errors.New("config: store.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver)
	}
	if c.Refresh.IntervalSec <= 0 {
		return errors.New("config: refresh.interval_sec must be positive")
	}
	if c.Market.OpenHour < 0 || c.Market.CloseHour > 24 || c.Market.OpenHour >= c.Market.CloseHour {
		return errors.New("config: market hours must satisfy 0 <= open_hour < close_hour <= 24")
	}
	seen := make(map[string]bool, len(c.Scrapers))
	for _, s := range c.Scrapers {
		if s.ID == "" || s.URL == "" {
			return errors.New("config: every scraper needs an id and url")
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate scraper id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Band != (parse.Band{}) && !s.Band.Valid() {
			return fmt.Errorf("config: scraper %q: %w", s.ID, ErrInvalidBand)
		}
	}
	return nil
}
