package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Search Search `yaml:"search"`
	Cache  Cache  `yaml:"cache"`

	Breaker Breaker `yaml:"breaker"`

	// Sources are listed in priority order; that order is the merge order.
	Sources []Source `yaml:"sources"`

	Fallback  Fallback  `yaml:"fallback"`
	Telemetry Telemetry `yaml:"telemetry"`
	RateLimit RateLimit `yaml:"rate_limit"`

	Alerts []Alert `yaml:"alerts"`
}

type Search struct {
	DefaultPageBudget   int           `yaml:"default_page_budget"`
	MaxPageBudget       int           `yaml:"max_page_budget"`
	GlobalDeadline      time.Duration `yaml:"global_deadline"`
	CancelGrace         time.Duration `yaml:"cancel_grace"`
	MaxConcurrentPerKey int           `yaml:"max_concurrent_per_key"`
}

type Cache struct {
	Backend      string        `yaml:"backend"` // memory | redis | sqlite
	TTL          time.Duration `yaml:"ttl"`
	MaxEntries   int           `yaml:"max_entries"`
	CleanupEvery time.Duration `yaml:"cleanup_every"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	SQLitePath string `yaml:"sqlite_path"`
}

type Breaker struct {
	Enabled             bool          `yaml:"enabled"`
	FailureThreshold    int           `yaml:"failure_threshold"`
	SuccessThreshold    int           `yaml:"success_threshold"`
	HalfOpenMaxRequests int           `yaml:"half_open_max_requests"`
	ResetTimeout        time.Duration `yaml:"reset_timeout"`
}

type Source struct {
	ID      string        `yaml:"id"`
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// Per-host politeness.
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`

	// adzuna only
	Country string `yaml:"country"`
	AppID   string `yaml:"app_id"`
	AppKey  string `yaml:"app_key"`
}

type Fallback struct {
	Secondary        string        `yaml:"secondary"`
	SecondaryTimeout time.Duration `yaml:"secondary_timeout"`

	Synthetic struct {
		Enabled bool `yaml:"enabled"`
		Count   int  `yaml:"count"`
	} `yaml:"synthetic"`
}

type Telemetry struct {
	BufferSize  int    `yaml:"buffer_size"`
	Log         bool   `yaml:"log"`
	Hub         bool   `yaml:"hub"`
	ServiceName string `yaml:"service_name"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	ClickHouse struct {
		Addr     string `yaml:"addr"`
		Database string `yaml:"database"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"clickhouse"`
}

type RateLimit struct {
	SearchPerMinute int `yaml:"search_per_minute"`
	Burst           int `yaml:"burst"`
}

type Alert struct {
	Name       string        `yaml:"name"`
	Query      string        `yaml:"query"`
	Location   string        `yaml:"location"`
	Sources    []string      `yaml:"sources"`
	PageBudget int           `yaml:"page_budget"`
	Every      time.Duration `yaml:"every"`
}

// Default is the configuration used for any key the file leaves out.
func Default() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "."
	c.Log.Level = "info"

	c.Search = Search{
		DefaultPageBudget:   1,
		MaxPageBudget:       5,
		GlobalDeadline:      300 * time.Second,
		CancelGrace:         2 * time.Second,
		MaxConcurrentPerKey: 3,
	}

	c.Cache.Backend = "memory"
	c.Cache.TTL = 10 * time.Minute
	c.Cache.MaxEntries = 100
	c.Cache.CleanupEvery = 5 * time.Minute

	c.Breaker = Breaker{
		Enabled:             true,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		HalfOpenMaxRequests: 1,
		ResetTimeout:        time.Minute,
	}

	c.Sources = []Source{
		{ID: "pnet", Enabled: true, Timeout: 180 * time.Second, RPS: 0.5, Burst: 1},
		{ID: "careerjunction", Enabled: true, Timeout: 180 * time.Second, RPS: 0.5, Burst: 1},
	}

	c.Fallback.Secondary = "adzuna"
	c.Fallback.SecondaryTimeout = 30 * time.Second
	c.Fallback.Synthetic.Enabled = true
	c.Fallback.Synthetic.Count = 30

	c.Telemetry.BufferSize = 1024
	c.Telemetry.Log = true
	c.Telemetry.Hub = true
	c.Telemetry.ServiceName = "jobagg-engine"

	c.RateLimit.SearchPerMinute = 5
	c.RateLimit.Burst = 5
	return c
}

func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// SourceByID returns the configured source entry, enabled or not.
func (c Config) SourceByID(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}
