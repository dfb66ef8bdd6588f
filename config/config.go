package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Plate     PlateConfig     `yaml:"plate"`
	Entry     LaneConfig      `yaml:"entry"`
	Exit      LaneConfig      `yaml:"exit"`
	Gate      GateConfig      `yaml:"gate"`
	Proximity ProximityConfig `yaml:"proximity"`
	Serial    SerialConfig    `yaml:"serial"`
	Payment   PaymentConfig   `yaml:"payment"`
	Backend   BackendConfig   `yaml:"backend"`
	Push      PushConfig      `yaml:"push"`
	Auth      AuthConfig      `yaml:"auth"`
	OCR       OCRConfig       `yaml:"ocr"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Port             int     `yaml:"port" env:"PARKING_SERVER_PORT"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst   int     `yaml:"rate_limit_burst"`
	StatsCacheTTLSec int     `yaml:"stats_cache_ttl_seconds"`

	StatsCacheTTL time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
// A DSN starting with "postgres://", "postgresql://" or "host=" selects postgres;
// anything else is treated as a sqlite file path.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn" env:"PARKING_DATABASE_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// PlateConfig controls plate validation.
type PlateConfig struct {
	RegionPrefix string `yaml:"region_prefix"`
}

// LaneConfig configures one camera lane (entry or exit).
type LaneConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Device           string   `yaml:"device"` // serial path, "auto", or empty for simulation
	RequireProximity *bool    `yaml:"require_proximity"`
	Capacity         int      `yaml:"capacity"`
	MinSupportRatio  *float64 `yaml:"min_support_ratio"`
	QueueSize        int      `yaml:"queue_size"`

	// entry only
	CooldownSeconds int `yaml:"cooldown_seconds"`
	// exit only
	DebounceSeconds    int `yaml:"debounce_seconds"`
	GracePeriodSeconds int `yaml:"grace_period_seconds"`

	SupportRatio float64       `yaml:"-"`
	Cooldown     time.Duration `yaml:"-"`
	Debounce     time.Duration `yaml:"-"`
	GracePeriod  time.Duration `yaml:"-"`
}

// ProximityRequired reports whether frames must be gated on a fresh distance reading.
func (l LaneConfig) ProximityRequired() bool {
	return l.RequireProximity == nil || *l.RequireProximity
}

// GateConfig controls barrier timing.
type GateConfig struct {
	OpenSeconds int `yaml:"open_seconds"`

	OpenDuration time.Duration `yaml:"-"`
}

// ProximityConfig is the inclusive distance range in which detection runs.
type ProximityConfig struct {
	MinDistance      float64 `yaml:"min_distance"`
	MaxDistance      float64 `yaml:"max_distance"`
	StaleAfterMillis int     `yaml:"stale_after_ms"`

	StaleAfter time.Duration `yaml:"-"`
}

// SerialConfig holds the settings shared by all serial links.
type SerialConfig struct {
	BaudRate            int `yaml:"baud_rate"`
	SettleDelayMillis   int `yaml:"settle_delay_ms"`
	ReconnectMinMillis  int `yaml:"reconnect_min_ms"`
	ReconnectMaxSeconds int `yaml:"reconnect_max_seconds"`

	SettleDelay  time.Duration `yaml:"-"`
	ReconnectMin time.Duration `yaml:"-"`
	ReconnectMax time.Duration `yaml:"-"`
}

// PaymentConfig configures the payment terminal and tariff.
type PaymentConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Device              string `yaml:"device" env:"PARKING_PAYMENT_DEVICE"`
	HourlyRate          int64  `yaml:"hourly_rate" env:"PARKING_HOURLY_RATE"`
	ReadyTimeoutSeconds int    `yaml:"ready_timeout_seconds"`
	ConfirmTimeoutSecs  int    `yaml:"confirm_timeout_seconds"`

	ReadyTimeout   time.Duration `yaml:"-"`
	ConfirmTimeout time.Duration `yaml:"-"`
}

// BackendConfig points at the external system of record.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" env:"PARKING_BACKEND_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`

	Timeout time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for operator web push alerts.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"PARKING_VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"PARKING_VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// AuthConfig holds the HS256 secret for operator and detector tokens. An
// empty secret disables the authenticated routes.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"PARKING_JWT_SECRET"`
}

// OCRConfig configures the optional Rekognition OCR adapter.
type OCRConfig struct {
	Rekognition   bool    `yaml:"rekognition"`
	Region        string  `yaml:"region" env:"AWS_REGION"`
	MinConfidence float32 `yaml:"min_confidence"`
}

// Load reads the configuration from the given path and applies environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero or invalid values and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.StatsCacheTTLSec <= 0 {
		cfg.Server.StatsCacheTTLSec = 10
	}
	cfg.Server.StatsCacheTTL = time.Duration(cfg.Server.StatsCacheTTLSec) * time.Second

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "parking_system.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Plate.RegionPrefix == "" {
		cfg.Plate.RegionPrefix = "RA"
	}

	// The exit lane keeps a zero ratio (plain plurality) unless configured.
	applyLaneDefaults(&cfg.Entry, 0.7)
	applyLaneDefaults(&cfg.Exit, 0)
	if cfg.Entry.CooldownSeconds <= 0 {
		cfg.Entry.CooldownSeconds = 300
	}
	cfg.Entry.Cooldown = time.Duration(cfg.Entry.CooldownSeconds) * time.Second
	if cfg.Exit.DebounceSeconds <= 0 {
		cfg.Exit.DebounceSeconds = 10
	}
	cfg.Exit.Debounce = time.Duration(cfg.Exit.DebounceSeconds) * time.Second
	if cfg.Exit.GracePeriodSeconds <= 0 {
		cfg.Exit.GracePeriodSeconds = 60
	}
	cfg.Exit.GracePeriod = time.Duration(cfg.Exit.GracePeriodSeconds) * time.Second

	if cfg.Gate.OpenSeconds <= 0 {
		cfg.Gate.OpenSeconds = 15
	}
	cfg.Gate.OpenDuration = time.Duration(cfg.Gate.OpenSeconds) * time.Second

	if cfg.Proximity.MaxDistance <= 0 {
		cfg.Proximity.MaxDistance = 50
	}
	if cfg.Proximity.MinDistance < 0 || cfg.Proximity.MinDistance > cfg.Proximity.MaxDistance {
		cfg.Proximity.MinDistance = 0
	}
	if cfg.Proximity.StaleAfterMillis <= 0 {
		cfg.Proximity.StaleAfterMillis = 1000
	}
	cfg.Proximity.StaleAfter = time.Duration(cfg.Proximity.StaleAfterMillis) * time.Millisecond

	if cfg.Serial.BaudRate <= 0 {
		cfg.Serial.BaudRate = 9600
	}
	if cfg.Serial.SettleDelayMillis <= 0 {
		cfg.Serial.SettleDelayMillis = 2000
	}
	cfg.Serial.SettleDelay = time.Duration(cfg.Serial.SettleDelayMillis) * time.Millisecond
	if cfg.Serial.ReconnectMinMillis <= 0 {
		cfg.Serial.ReconnectMinMillis = 500
	}
	cfg.Serial.ReconnectMin = time.Duration(cfg.Serial.ReconnectMinMillis) * time.Millisecond
	if cfg.Serial.ReconnectMaxSeconds <= 0 {
		cfg.Serial.ReconnectMaxSeconds = 30
	}
	cfg.Serial.ReconnectMax = time.Duration(cfg.Serial.ReconnectMaxSeconds) * time.Second

	if cfg.Payment.HourlyRate <= 0 {
		cfg.Payment.HourlyRate = 500
	}
	if cfg.Payment.ReadyTimeoutSeconds <= 0 {
		cfg.Payment.ReadyTimeoutSeconds = 5
	}
	cfg.Payment.ReadyTimeout = time.Duration(cfg.Payment.ReadyTimeoutSeconds) * time.Second
	if cfg.Payment.ConfirmTimeoutSecs <= 0 {
		cfg.Payment.ConfirmTimeoutSecs = 10
	}
	cfg.Payment.ConfirmTimeout = time.Duration(cfg.Payment.ConfirmTimeoutSecs) * time.Second

	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 5
	}
	cfg.Backend.Timeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	if cfg.Backend.Workers <= 0 {
		cfg.Backend.Workers = 1
	}
	if cfg.Backend.QueueSize <= 0 {
		cfg.Backend.QueueSize = 64
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.OCR.Region == "" {
		cfg.OCR.Region = "eu-west-1"
	}
	if cfg.OCR.MinConfidence <= 0 {
		cfg.OCR.MinConfidence = 80
	}
}

func applyLaneDefaults(l *LaneConfig, ratio float64) {
	if l.Capacity <= 0 {
		l.Capacity = 3
	}
	l.SupportRatio = ratio
	if l.MinSupportRatio != nil && *l.MinSupportRatio >= 0 && *l.MinSupportRatio <= 1 {
		l.SupportRatio = *l.MinSupportRatio
	}
	if l.QueueSize <= 0 {
		l.QueueSize = 32
	}
}
