// Package config loads and validates the scanner's immutable configuration
// snapshot (§4.2), viper-backed exactly the way the rest of the codebase
// loads application.dev.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"setbull_trader/internal/clock"
)

// SessionConfig is the ET window used both for cumulative-volume
// accounting and for pattern-evaluation gating.
type SessionConfig struct {
	Start string `mapstructure:"start" yaml:"start"` // "HH:MM" ET
	End   string `mapstructure:"end" yaml:"end"`
}

// GapConfig is the watchlist universe filter (§4.4).
type GapConfig struct {
	MinPct             float64 `mapstructure:"minPct" yaml:"minPct"`
	MaxPct             float64 `mapstructure:"maxPct" yaml:"maxPct"`
	MinPrice           float64 `mapstructure:"minPrice" yaml:"minPrice"`
	MaxPrice           float64 `mapstructure:"maxPrice" yaml:"maxPrice"`
	MinCumulativeVolume int64  `mapstructure:"minCumulativeVolume" yaml:"minCumulativeVolume"`
}

// ToppingTail5mConfig tunes the Topping-Tail-5m detector (§4.7.1).
type ToppingTail5mConfig struct {
	RequireStrictHODBreak bool    `mapstructure:"requireStrictHODBreak" yaml:"requireStrictHODBreak"`
	MaxHighDistancePct    float64 `mapstructure:"maxHighDistancePct" yaml:"maxHighDistancePct"`
	MaxCloseDistancePct   float64 `mapstructure:"maxCloseDistancePct" yaml:"maxCloseDistancePct"`
	MustCloseRed          bool    `mapstructure:"mustCloseRed" yaml:"mustCloseRed"`
	MinShadowToBodyRatio  float64 `mapstructure:"minShadowToBodyRatio" yaml:"minShadowToBodyRatio"`
	MinClosePercent       float64 `mapstructure:"minClosePercent" yaml:"minClosePercent"`
	MinBarVolume          int64   `mapstructure:"minBarVolume" yaml:"minBarVolume"`
	MaxBarVolume          int64   `mapstructure:"maxBarVolume" yaml:"maxBarVolume"`
}

// GreenRunConfig tunes the optional Green-Run-Reject detector (§4.7.2).
type GreenRunConfig struct {
	Enabled                bool    `mapstructure:"enabled" yaml:"enabled"`
	MinConsecutiveGreen    int     `mapstructure:"minConsecutiveGreen" yaml:"minConsecutiveGreen"`
	MaxConsecutiveGreen    int     `mapstructure:"maxConsecutiveGreen" yaml:"maxConsecutiveGreen"`
	MinRunGainPct          float64 `mapstructure:"minRunGainPct" yaml:"minRunGainPct"`
	MaxDistanceFromHODPct  float64 `mapstructure:"maxDistanceFromHODPct" yaml:"maxDistanceFromHODPct"`
}

// APIConfig tunes the market-data client's retry/timeout/paging behavior.
type APIConfig struct {
	MaxRetries        int `mapstructure:"maxRetries" yaml:"maxRetries"`
	RequestTimeoutMs  int `mapstructure:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	HTTPTimeoutMs     int `mapstructure:"httpTimeoutMs" yaml:"httpTimeoutMs"`
	AggregatesLimit   int `mapstructure:"aggregatesLimit" yaml:"aggregatesLimit"`
}

// ScanningConfig tunes the boundary scheduler and the symbolData() quote
// surface.
type ScanningConfig struct {
	BackfillDelayAfterBoundaryMs int     `mapstructure:"backfillDelayAfterBoundaryMs" yaml:"backfillDelayAfterBoundaryMs"`
	BidAskSpread                 float64 `mapstructure:"bidAskSpread" yaml:"bidAskSpread"`
	WatchlistRefreshSeconds      int     `mapstructure:"watchlistRefreshSeconds" yaml:"watchlistRefreshSeconds"`
}

// EarlyGainerConfig tunes historical Stage 2b (faders).
type EarlyGainerConfig struct {
	Enabled                bool    `mapstructure:"enabled" yaml:"enabled"`
	MinEarlyPeakGap        float64 `mapstructure:"minEarlyPeakGap" yaml:"minEarlyPeakGap"`
	EarlyPeakWindowEnd     string  `mapstructure:"earlyPeakWindowEnd" yaml:"earlyPeakWindowEnd"` // "HH:MM" ET
	MinFadePercent         float64 `mapstructure:"minFadePercent" yaml:"minFadePercent"`
	MaxAdditionalFaders    int     `mapstructure:"maxAdditionalFaders" yaml:"maxAdditionalFaders"`
	MinDailyVolumeForFaders int64  `mapstructure:"minDailyVolumeForFaders" yaml:"minDailyVolumeForFaders"`
}

// HistoricalConfig tunes Selector mode H (§4.4).
type HistoricalConfig struct {
	MaxLookbackDays       int               `mapstructure:"maxLookbackDays" yaml:"maxLookbackDays"`
	MaxSymbolsToAnalyze   int               `mapstructure:"maxSymbolsToAnalyze" yaml:"maxSymbolsToAnalyze"`
	MinDiscoveryVolume    int64             `mapstructure:"minDiscoveryVolume" yaml:"minDiscoveryVolume"`
	EarlyGainer           EarlyGainerConfig `mapstructure:"earlyGainer" yaml:"earlyGainer"`
}

// DevConfig is test/debug overrides (§4.2).
type DevConfig struct {
	Debug       bool       `mapstructure:"debug" yaml:"debug"`
	OverrideNow *time.Time `mapstructure:"-" yaml:"-"`
}

// RedisConfig/InMemConfig mirror pkg/cache's shapes for the ambient
// response-cache wiring.
type RedisConfig struct {
	Host                  string        `mapstructure:"host" yaml:"host"`
	Port                  string        `mapstructure:"port" yaml:"port"`
	Database              int           `mapstructure:"database" yaml:"database"`
	ConnectTimeout        time.Duration `mapstructure:"connectTimeout" yaml:"connectTimeout"`
	ReadTimeout           time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout          time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
	PoolSize              int           `mapstructure:"poolSize" yaml:"poolSize"`
	MaxRetry              int           `mapstructure:"maxRetry" yaml:"maxRetry"`
	MinIdleConns          int           `mapstructure:"minIdle" yaml:"minIdle"`
	Disable               bool          `mapstructure:"disable" yaml:"disable"`
}

type InMemConfig struct {
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CleanUpTTL time.Duration `mapstructure:"cleanupttl" yaml:"cleanupttl"`
}

// MarketDataConfig is the provider base URLs and API key.
type MarketDataConfig struct {
	BaseURL      string `mapstructure:"baseUrl" yaml:"baseUrl"`
	StreamURL    string `mapstructure:"streamUrl" yaml:"streamUrl"`
	APIKey       string `mapstructure:"-" yaml:"-"`
	ExtendedHours bool  `mapstructure:"-" yaml:"-"`
}

// ServerConfig is the ambient HTTP surface (gin) configuration.
type ServerConfig struct {
	Port         string `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

// AuditConfig tunes the optional gorm-backed alert-audit sink. When
// Disable is true the app never installs an audit sink and the Dispatcher
// runs with real subscribers only; otherwise the app tries to connect, and
// runs without the sink if the connection fails.
type AuditConfig struct {
	Disable  bool   `mapstructure:"disable" yaml:"disable"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"-" yaml:"-"`
	Host     string `mapstructure:"host" yaml:"host"`
	DBName   string `mapstructure:"dbName" yaml:"dbName"`
}

// Config is the scanner's complete, immutable configuration snapshot.
type Config struct {
	Server      ServerConfig        `mapstructure:"server" yaml:"server"`
	Session     SessionConfig       `mapstructure:"session" yaml:"session"`
	Gap         GapConfig           `mapstructure:"gap" yaml:"gap"`
	ToppingTail5m ToppingTail5mConfig `mapstructure:"toppingTail5m" yaml:"toppingTail5m"`
	GreenRun    GreenRunConfig      `mapstructure:"greenRun" yaml:"greenRun"`
	API         APIConfig           `mapstructure:"api" yaml:"api"`
	Scanning    ScanningConfig      `mapstructure:"scanning" yaml:"scanning"`
	Historical  HistoricalConfig    `mapstructure:"historical" yaml:"historical"`
	Dev         DevConfig           `mapstructure:"dev" yaml:"dev"`
	MarketData  MarketDataConfig    `mapstructure:"marketData" yaml:"marketData"`
	Cache       struct {
		Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
		InMem InMemConfig `mapstructure:"inmem" yaml:"inmem"`
	} `mapstructure:"cache" yaml:"cache"`
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`
}

// Default returns the live preset (§4.2 defaults used throughout S1-S6).
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", ReadTimeout: 10, WriteTimeout: 10},
		Session: SessionConfig{Start: "07:00", End: "11:30"},
		Gap: GapConfig{
			MinPct: 10, MaxPct: 1000, MinPrice: 1, MaxPrice: 20, MinCumulativeVolume: 500_000,
		},
		ToppingTail5m: ToppingTail5mConfig{
			RequireStrictHODBreak: true,
			MaxHighDistancePct:    1.0,
			MaxCloseDistancePct:   2.0,
			MustCloseRed:          false,
			MinShadowToBodyRatio:  2.0,
			MinClosePercent:       60,
			MinBarVolume:          1000,
			MaxBarVolume:          50_000_000,
		},
		GreenRun: GreenRunConfig{
			Enabled: false, MinConsecutiveGreen: 4, MaxConsecutiveGreen: 12,
			MinRunGainPct: 2, MaxDistanceFromHODPct: 3,
		},
		API: APIConfig{MaxRetries: 3, RequestTimeoutMs: 10_000, HTTPTimeoutMs: 5_000, AggregatesLimit: 50_000},
		Scanning: ScanningConfig{
			BackfillDelayAfterBoundaryMs: 15_000,
			BidAskSpread:                 0.01,
			WatchlistRefreshSeconds:      120,
		},
		Historical: HistoricalConfig{
			MaxLookbackDays: 30, MaxSymbolsToAnalyze: 20, MinDiscoveryVolume: 500_000,
			EarlyGainer: EarlyGainerConfig{
				Enabled: true, MinEarlyPeakGap: 20, EarlyPeakWindowEnd: "09:00",
				MinFadePercent: 20, MaxAdditionalFaders: 5, MinDailyVolumeForFaders: 1_000_000,
			},
		},
		Dev: DevConfig{Debug: false},
		MarketData: MarketDataConfig{
			BaseURL:   "https://api.polygon.io",
			StreamURL: "wss://socket.polygon.io/stocks",
		},
		Audit: AuditConfig{Disable: true},
	}
}

// ExtendedHoursOverride widens the session window for the
// USE_EXTENDED_HOURS=true preset (§6).
func (c *Config) ExtendedHoursOverride() {
	c.Session.Start = "04:00"
	c.Session.End = "20:00"
	c.MarketData.ExtendedHours = true
}

// Validate enforces §4.2's rejection rules.
func (c *Config) Validate() error {
	startMin, err := clock.ParseHHMM(c.Session.Start)
	if err != nil {
		return fmt.Errorf("session.start: %w", err)
	}
	endMin, err := clock.ParseHHMM(c.Session.End)
	if err != nil {
		return fmt.Errorf("session.end: %w", err)
	}
	if startMin >= endMin {
		return fmt.Errorf("session.start (%s) must be before session.end (%s)", c.Session.Start, c.Session.End)
	}
	if c.Gap.MinPct >= c.Gap.MaxPct {
		return fmt.Errorf("gap.minPct (%v) must be < gap.maxPct (%v)", c.Gap.MinPct, c.Gap.MaxPct)
	}
	if c.Gap.MinPrice <= 0 || c.Gap.MaxPrice <= 0 {
		return fmt.Errorf("gap.minPrice and gap.maxPrice must be positive")
	}
	if c.Gap.MinPrice >= c.Gap.MaxPrice {
		return fmt.Errorf("gap.minPrice (%v) must be < gap.maxPrice (%v)", c.Gap.MinPrice, c.Gap.MaxPrice)
	}
	if c.ToppingTail5m.MaxHighDistancePct > c.ToppingTail5m.MaxCloseDistancePct &&
		!c.ToppingTail5m.RequireStrictHODBreak {
		// "nearHOD>maxHOD" rejection: the near-break distance filter must not
		// exceed the close-distance filter in loose mode.
		return fmt.Errorf("toppingTail5m.maxHighDistancePct (%v) must be <= maxCloseDistancePct (%v) in loose mode",
			c.ToppingTail5m.MaxHighDistancePct, c.ToppingTail5m.MaxCloseDistancePct)
	}
	if c.MarketData.APIKey == "" {
		return fmt.Errorf("MARKET_API_KEY is not set")
	}
	return nil
}

// SessionWindow projects Session into clock.SessionWindow.
func (c *Config) SessionWindow() (clock.SessionWindow, error) {
	startMin, err := clock.ParseHHMM(c.Session.Start)
	if err != nil {
		return clock.SessionWindow{}, err
	}
	endMin, err := clock.ParseHHMM(c.Session.End)
	if err != nil {
		return clock.SessionWindow{}, err
	}
	return clock.SessionWindow{StartMinute: startMin, EndMinute: endMin}, nil
}

// Load reads application.dev.yaml via viper, applies environment overrides,
// and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	viper.SetConfigName("application.dev")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, errors.Wrap(err, "error reading config file")
		}
		// No config file on disk: proceed with Default() + env overrides,
		// the way a fresh checkout runs against defaults.
	} else if err := viper.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling config")
	}

	cfg.MarketData.APIKey = os.Getenv("MARKET_API_KEY")
	if os.Getenv("USE_EXTENDED_HOURS") == "true" {
		cfg.ExtendedHoursOverride()
	}
	cfg.Audit.Password = os.Getenv("AUDIT_DB_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// Merge applies a partial override on top of the receiver and returns a new
// snapshot (used by Orchestrator.UpdateConfig — never mutates in place).
func (c *Config) Merge(partial func(*Config)) *Config {
	cp := *c
	partial(&cp)
	return &cp
}
