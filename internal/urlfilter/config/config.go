package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string `koanf:"listen_addr" validate:"required,listen_addr"`

	// Backend selects the shard store: "memory" (native TTL expiry) or
	// "bolt" (persistent, swept by the periodic purge).
	Backend string `koanf:"backend" validate:"required,oneof=memory bolt"`

	// BoltPath is the bolt database file, used when Backend is "bolt".
	BoltPath string `koanf:"bolt_path" validate:"required_if=Backend bolt"`

	// CacheSize bounds the number of shards held by the memory backend.
	// Zero means unbounded.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// ShardTTLSeconds is the TTL applied to shards in the memory backend.
	ShardTTLSeconds int `koanf:"shard_ttl_seconds" validate:"required,gte=1"`

	// StaleWindowSeconds is the persistent-backend staleness window:
	// shards not written for longer than this are evicted by the sweep.
	StaleWindowSeconds int `koanf:"stale_window_seconds" validate:"required,gte=1"`

	// PurgeSpec schedules the persistent-backend purge sweep, in cron
	// syntax (descriptors like "@every 10m" are accepted).
	PurgeSpec string `koanf:"purge_spec" validate:"required,cron_spec"`

	// MaxQueryCost is the global comparison budget for query-rule matching.
	MaxQueryCost int `koanf:"max_query_cost" validate:"required,gte=1"`

	// StoreRetries bounds retries of failed shard-store I/O.
	StoreRetries int `koanf:"store_retries" validate:"gte=0,lte=10"`

	// RetryBackoffMS is the delay between shard-store retries.
	RetryBackoffMS int `koanf:"retry_backoff_ms" validate:"gte=0"`

	// FailOpen makes the classifier treat an unavailable store as an
	// unknown shard (allow) instead of surfacing a hard error.
	FailOpen bool `koanf:"fail_open"`

	// BloomSize is the expected shard-key population for the negative filter.
	BloomSize uint `koanf:"bloom_size" validate:"required,gte=1"`

	// BloomFPRate is the negative filter's target false-positive rate.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"required,gt=0,lt=1"`
}

// DEFAULT_APP_CONFIG defines the default application configuration. The
// memory backend with a one hour TTL suits a single-zone deployment; bolt
// plus the purge sweep suits shared persistent volumes.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                "prod",
	LogLevel:           "info",
	ListenAddr:         ":8080",
	Backend:            "memory",
	BoltPath:           "/var/lib/urlfilter/shards.db",
	CacheSize:          4096,
	ShardTTLSeconds:    3600,
	StaleWindowSeconds: 86400,
	PurgeSpec:          "@every 10m",
	MaxQueryCost:       16,
	StoreRetries:       3,
	RetryBackoffMS:     100,
	FailOpen:           false,
	BloomSize:          100000,
	BloomFPRate:        0.01,
}

// validListenAddr validates a bind address in host:port form. The host may
// be empty (bind all interfaces) but the port must be a valid port number.
func validListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

// validCronSpec validates a schedule against the standard cron parser,
// which also accepts descriptors ("@hourly", "@every 5m").
func validCronSpec(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// envLoader loads environment variables with the prefix "URLF_",
// lowercasing keys and trimming the prefix. Swappable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "URLF_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "URLF_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG via the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidations installs the custom tags used by AppConfig.
var registerValidations = func(v *validator.Validate) error {
	if err := v.RegisterValidation("listen_addr", validListenAddr); err != nil {
		return err
	}
	return v.RegisterValidation("cron_spec", validCronSpec)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidations(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
