package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKey         = "TICKGUARD_API_KEY"
	EnvAddressHashKey = "TICKGUARD_ADDRESS_HASH_KEY"
	EnvStorageDSN     = "TICKGUARD_STORAGE_DSN"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Detection  DetectionConfig  `json:"detection" yaml:"detection"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify"`
	Resolution ResolutionConfig `json:"resolution" yaml:"resolution"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Retention  RetentionConfig  `json:"retention" yaml:"retention"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

type IngestConfig struct {
	// SharedSecret is the bearer token plugins must present. Empty means open.
	SharedSecret string      `json:"shared_secret" yaml:"shared_secret"`
	REST         RESTConfig  `json:"rest" yaml:"rest"`
	Kafka        KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled      bool            `json:"enabled" yaml:"enabled"`
	Addr         string          `json:"addr" yaml:"addr"`
	MaxBodyBytes int64           `json:"max_body_bytes" yaml:"max_body_bytes"`
	RateLimit    RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

type RateLimitConfig struct {
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type DetectionConfig struct {
	AddressHashKey string          `json:"address_hash_key" yaml:"address_hash_key"`
	HandlerTimeout time.Duration   `json:"handler_timeout" yaml:"handler_timeout"`
	Tick           TickThresholds  `json:"tick" yaml:"tick"`
	Chunk          ChunkThresholds `json:"chunk" yaml:"chunk"`
}

type TickThresholds struct {
	Alert    float64 `json:"alert" yaml:"alert"`
	High     float64 `json:"high" yaml:"high"`
	Critical float64 `json:"critical" yaml:"critical"`
}

type ChunkThresholds struct {
	EntityCritical int `json:"entity_critical" yaml:"entity_critical"`
	EntityHigh     int `json:"entity_high" yaml:"entity_high"`
	Hoppers        int `json:"hoppers" yaml:"hoppers"`
	Redstone       int `json:"redstone" yaml:"redstone"`
}

type AlertsConfig struct {
	Cooldown   time.Duration `json:"cooldown" yaml:"cooldown"`
	StoreLimit int           `json:"store_limit" yaml:"store_limit"`
}

type NotifyConfig struct {
	Driver     string            `json:"driver" yaml:"driver"`
	WebhookURL string            `json:"webhook_url" yaml:"webhook_url"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
	Timeout    time.Duration     `json:"timeout" yaml:"timeout"`
	Kafka      KafkaConfig       `json:"kafka" yaml:"kafka"`
	Breaker    BreakerConfig     `json:"breaker" yaml:"breaker"`
}

type BreakerConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	MinRequests uint32        `json:"min_requests" yaml:"min_requests"`
	FailureRate float64       `json:"failure_rate" yaml:"failure_rate"`
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

type ResolutionConfig struct {
	AllowedActors []string `json:"allowed_actors" yaml:"allowed_actors"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver  string        `json:"driver" yaml:"driver"`
	DSN     string        `json:"dsn" yaml:"dsn"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type RetentionConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Interval     time.Duration `json:"interval" yaml:"interval"`
	Connections  time.Duration `json:"connections" yaml:"connections"`
	TickSamples  time.Duration `json:"tick_samples" yaml:"tick_samples"`
	Impact       time.Duration `json:"impact" yaml:"impact"`
	LagFindings  time.Duration `json:"lag_findings" yaml:"lag_findings"`
	ChunkRecords time.Duration `json:"chunk_records" yaml:"chunk_records"`
}

type MetricsConfig struct {
	StoreLimit int           `json:"store_limit" yaml:"store_limit"`
	TickWindow time.Duration `json:"tick_window" yaml:"tick_window"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			REST: RESTConfig{
				Enabled:      true,
				Addr:         ":3002",
				MaxBodyBytes: 10 << 20,
				RateLimit:    RateLimitConfig{Requests: 600, Window: time.Minute},
			},
			Kafka: KafkaConfig{Enabled: false},
		},
		Detection: DetectionConfig{
			HandlerTimeout: 15 * time.Second,
			Tick:           TickThresholds{Alert: 18, High: 15, Critical: 12},
			Chunk:          ChunkThresholds{EntityCritical: 250, EntityHigh: 100, Hoppers: 50, Redstone: 100},
		},
		Alerts: AlertsConfig{Cooldown: 3 * time.Second, StoreLimit: 1000},
		Notify: NotifyConfig{
			Driver:  "log",
			Timeout: 10 * time.Second,
			Breaker: BreakerConfig{Enabled: true, MinRequests: 10, FailureRate: 0.6, OpenTimeout: 2 * time.Minute},
		},
		API:     APIConfig{Enabled: true, Addr: ":3003"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:tickguard.db?_pragma=busy_timeout(5000)", Timeout: 5 * time.Second},
		Retention: RetentionConfig{
			Enabled:      true,
			Interval:     time.Hour,
			Connections:  14 * 24 * time.Hour,
			TickSamples:  7 * 24 * time.Hour,
			Impact:       7 * 24 * time.Hour,
			LagFindings:  30 * 24 * time.Hour,
			ChunkRecords: 14 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{StoreLimit: 500, TickWindow: time.Hour},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set and falls back to defaults plus
// environment overrides otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		return Load(path)
	}
	cfg := DefaultConfig()
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		cfg.Ingest.SharedSecret = v
	}
	if v := os.Getenv(EnvAddressHashKey); v != "" {
		cfg.Detection.AddressHashKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Ingest.REST.MaxBodyBytes <= 0 {
		cfg.Ingest.REST.MaxBodyBytes = def.Ingest.REST.MaxBodyBytes
	}
	if cfg.Ingest.REST.RateLimit.Window <= 0 {
		cfg.Ingest.REST.RateLimit.Window = def.Ingest.REST.RateLimit.Window
	}
	if cfg.Detection.HandlerTimeout <= 0 {
		cfg.Detection.HandlerTimeout = def.Detection.HandlerTimeout
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = def.Alerts.StoreLimit
	}
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = def.Notify.Driver
	}
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = def.Notify.Timeout
	}
	if cfg.Notify.Breaker.MinRequests == 0 {
		cfg.Notify.Breaker.MinRequests = def.Notify.Breaker.MinRequests
	}
	if cfg.Notify.Breaker.FailureRate <= 0 {
		cfg.Notify.Breaker.FailureRate = def.Notify.Breaker.FailureRate
	}
	if cfg.Notify.Breaker.OpenTimeout <= 0 {
		cfg.Notify.Breaker.OpenTimeout = def.Notify.Breaker.OpenTimeout
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
	if cfg.Storage.Timeout <= 0 {
		cfg.Storage.Timeout = def.Storage.Timeout
	}
	if cfg.Retention.Interval <= 0 {
		cfg.Retention.Interval = def.Retention.Interval
	}
	if cfg.Metrics.StoreLimit <= 0 {
		cfg.Metrics.StoreLimit = def.Metrics.StoreLimit
	}
	if cfg.Metrics.TickWindow <= 0 {
		cfg.Metrics.TickWindow = def.Metrics.TickWindow
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if len(cfg.Detection.AddressHashKey) > 64 {
		return errors.New("detection.address_hash_key must be at most 64 bytes")
	}
	t := cfg.Detection.Tick
	if t.Critical <= 0 || t.High < t.Critical || t.Alert < t.High {
		return fmt.Errorf("detection.tick thresholds must satisfy 0 < critical <= high <= alert, got %v/%v/%v", t.Critical, t.High, t.Alert)
	}
	c := cfg.Detection.Chunk
	if c.EntityHigh <= 0 || c.EntityCritical < c.EntityHigh || c.Hoppers <= 0 || c.Redstone <= 0 {
		return errors.New("detection.chunk thresholds must be positive and entity_critical >= entity_high")
	}
	if cfg.Alerts.Cooldown < 0 {
		return errors.New("alerts.cooldown must be >= 0")
	}
	switch strings.ToLower(cfg.Notify.Driver) {
	case "log", "none":
	case "webhook", "discord":
		if cfg.Notify.WebhookURL == "" {
			return fmt.Errorf("notify.webhook_url required for driver %q", cfg.Notify.Driver)
		}
	case "kafka":
		if len(cfg.Notify.Kafka.Brokers) == 0 || cfg.Notify.Kafka.Topic == "" {
			return errors.New("notify.kafka requires brokers and topic")
		}
	default:
		return fmt.Errorf("unsupported notify driver %q", cfg.Notify.Driver)
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "memory", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	r := cfg.Retention
	for name, d := range map[string]time.Duration{
		"connections":   r.Connections,
		"tick_samples":  r.TickSamples,
		"impact":        r.Impact,
		"lag_findings":  r.LagFindings,
		"chunk_records": r.ChunkRecords,
	} {
		if d < 0 {
			return fmt.Errorf("retention.%s must be >= 0: %s", name, d)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

// NewStaticManager wraps an already built config. It never reloads.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
