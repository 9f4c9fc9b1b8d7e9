package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the surge engine configuration
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Engine    EngineConfig    `yaml:"engine"`
	Target    TargetConfig    `yaml:"target"`
	Traffic   TrafficConfig   `yaml:"traffic"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// FrameworkConfig contains general framework settings
type FrameworkConfig struct {
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// EngineConfig contains swarm sizing and telemetry plumbing settings
type EngineConfig struct {
	NumWorkers        int           `yaml:"num_workers"`
	InboxCapacity     int           `yaml:"inbox_capacity"`
	TelemetryCapacity int           `yaml:"telemetry_capacity"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	TargetRPS         int           `yaml:"target_rps"`
	JitterFactor      int           `yaml:"jitter_factor"`
}

// TargetConfig describes the default dispatch target
type TargetConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	// PayloadTemplate seeds the fuzzer for dispatched tasks.
	PayloadTemplate string `yaml:"payload_template"`
}

// TrafficConfig selects the per-worker traffic shaping strategy
type TrafficConfig struct {
	Strategy string `yaml:"strategy"`
	// Strategy parameters. Only the ones relevant to the selected
	// strategy are read.
	TargetRPS       float64       `yaml:"strategy_rps"`
	BurstRPS        float64       `yaml:"burst_rps"`
	BurstDuration   time.Duration `yaml:"burst_duration"`
	IdleDuration    time.Duration `yaml:"idle_duration"`
	SlowlorisWindow time.Duration `yaml:"slowloris_window"`
	Interval        time.Duration `yaml:"interval"`
	StartHour       int           `yaml:"start_hour"`
	EndHour         int           `yaml:"end_hour"`
	OnHourRPS       float64       `yaml:"on_hour_rps"`
	OffHourRPS      float64       `yaml:"off_hour_rps"`
	RegionLatency   time.Duration `yaml:"region_latency"`
	SniperRatio     float64       `yaml:"sniper_ratio"`
}

// TransportConfig contains raw-transport and resolver settings
type TransportConfig struct {
	// LocalAddr optionally binds outbound sockets to a specific local
	// interface (IP swarm rotation).
	LocalAddr string `yaml:"local_addr"`
	// UseDoH routes raw-path hostname resolution through DNS-over-HTTPS.
	UseDoH      bool   `yaml:"use_doh"`
	DoHEndpoint string `yaml:"doh_endpoint"`
	// RebindTarget, when set together with UseDoH, alternates resolution
	// between the real answer and this address.
	RebindTarget string `yaml:"rebind_target"`
}

// MetricsConfig contains the Prometheus exporter settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// ReportingConfig contains report output settings
type ReportingConfig struct {
	OutputDir string `yaml:"output_dir"`
	KeepLastN int    `yaml:"keep_last_n"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Version:   "v1",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Engine: EngineConfig{
			NumWorkers:        5,
			InboxCapacity:     100,
			TelemetryCapacity: 10000,
			RequestTimeout:    30 * time.Second,
			TargetRPS:         1000,
			JitterFactor:      10,
		},
		Target: TargetConfig{
			URL:             "http://target-system.internal/api/v1",
			Method:          "POST",
			Headers:         map[string]string{},
			PayloadTemplate: `{"data": "base_buffer"}`,
		},
		Traffic: TrafficConfig{
			Strategy:  "smooth",
			TargetRPS: 100,
		},
		Transport: TransportConfig{
			DoHEndpoint: "https://cloudflare-dns.com/dns-query",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9477",
		},
		Reporting: ReportingConfig{
			OutputDir: "./surge-reports",
			KeepLastN: 20,
		},
	}
}

// LoadFromFile loads configuration from a YAML file layered over defaults
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load returns the config from path if set, otherwise defaults with env
// overrides applied.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides layers the runtime tunables from the environment. The
// dashboard rewrites the same two values through SharedState at runtime.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SURGE_TARGET_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.TargetRPS = n
		}
	}
	if v := os.Getenv("SURGE_JITTER_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			c.Engine.JitterFactor = n
		}
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Engine.NumWorkers <= 0 {
		return fmt.Errorf("engine.num_workers must be positive, got %d", c.Engine.NumWorkers)
	}
	if c.Engine.InboxCapacity <= 0 {
		return fmt.Errorf("engine.inbox_capacity must be positive, got %d", c.Engine.InboxCapacity)
	}
	if c.Engine.TelemetryCapacity <= 0 {
		return fmt.Errorf("engine.telemetry_capacity must be positive, got %d", c.Engine.TelemetryCapacity)
	}
	if c.Target.URL == "" {
		return fmt.Errorf("target.url must not be empty")
	}
	return nil
}
