package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Dataset       DatasetConfig
	Query         QueryConfig
	ObjectStore   ObjectStoreConfig
	Mirror        MirrorConfig
	Audit         AuditConfig
	UI            UIConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatasetConfig describes where the parquet batches live and how they are named.
type DatasetConfig struct {
	Dir                   string
	Prefix                string
	Extension             string
	IntrospectConcurrency int
}

type QueryConfig struct {
	RowLimit int
	Timeout  time.Duration
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type MirrorConfig struct {
	Interval time.Duration
}

// AuditConfig is optional; an empty DSN disables the fetch audit log.
type AuditConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type UIConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("PHENOQUERY_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid PHENOQUERY_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "PHENOQUERY_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "PHENOQUERY_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "PHENOQUERY_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "PHENOQUERY_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "PHENOQUERY_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "PHENOQUERY_DATASET_DIR", &cfg.Dataset.Dir) },
		func() error { return applyString(lookup, "PHENOQUERY_DATASET_PREFIX", &cfg.Dataset.Prefix) },
		func() error { return applyString(lookup, "PHENOQUERY_DATASET_EXTENSION", &cfg.Dataset.Extension) },
		func() error {
			return applyInt(lookup, "PHENOQUERY_DATASET_INTROSPECT_CONCURRENCY", &cfg.Dataset.IntrospectConcurrency)
		},
		func() error { return applyInt(lookup, "PHENOQUERY_QUERY_ROW_LIMIT", &cfg.Query.RowLimit) },
		func() error { return applyDuration(lookup, "PHENOQUERY_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyString(lookup, "PHENOQUERY_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "PHENOQUERY_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "PHENOQUERY_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "PHENOQUERY_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "PHENOQUERY_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "PHENOQUERY_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "PHENOQUERY_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyDuration(lookup, "PHENOQUERY_MIRROR_INTERVAL", &cfg.Mirror.Interval) },
		func() error { return applyString(lookup, "PHENOQUERY_AUDIT_DSN", &cfg.Audit.DSN) },
		func() error { return applyInt(lookup, "PHENOQUERY_AUDIT_MAX_OPEN_CONNS", &cfg.Audit.MaxOpenConns) },
		func() error { return applyInt(lookup, "PHENOQUERY_AUDIT_MAX_IDLE_CONNS", &cfg.Audit.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "PHENOQUERY_AUDIT_CONN_MAX_IDLE_TIME", &cfg.Audit.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "PHENOQUERY_AUDIT_CONN_MAX_LIFETIME", &cfg.Audit.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "PHENOQUERY_UI_ENABLED", &cfg.UI.Enabled) },
		func() error { return applyBool(lookup, "PHENOQUERY_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "PHENOQUERY_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Dataset.Dir == "" {
		return Config{}, fmt.Errorf("dataset dir is required")
	}
	if cfg.Dataset.Prefix == "" {
		return Config{}, fmt.Errorf("dataset prefix is required")
	}
	if !strings.HasPrefix(cfg.Dataset.Extension, ".") {
		return Config{}, fmt.Errorf("invalid PHENOQUERY_DATASET_EXTENSION: %q must start with a dot", cfg.Dataset.Extension)
	}
	if cfg.Dataset.IntrospectConcurrency <= 0 {
		return Config{}, fmt.Errorf("invalid PHENOQUERY_DATASET_INTROSPECT_CONCURRENCY: %d", cfg.Dataset.IntrospectConcurrency)
	}
	if cfg.Query.RowLimit < 0 {
		return Config{}, fmt.Errorf("invalid PHENOQUERY_QUERY_ROW_LIMIT: %d", cfg.Query.RowLimit)
	}

	if cfg.Mirror.Interval <= 0 {
		return Config{}, fmt.Errorf("invalid PHENOQUERY_MIRROR_INTERVAL: %s", cfg.Mirror.Interval)
	}

	dir, err := filepath.Abs(cfg.Dataset.Dir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve dataset dir: %w", err)
	}
	cfg.Dataset.Dir = dir
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "phenoquery-api"},
		HTTP: HTTPConfig{
			Address:      ":5050",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Dataset: DatasetConfig{
			Dir:                   "parquet_data",
			Prefix:                "temp_pheno_batch_",
			Extension:             ".parquet",
			IntrospectConcurrency: 4,
		},
		Query: QueryConfig{
			RowLimit: 0,
			Timeout:  90 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "phenoquery",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
			UseSSL:          false,
			Prefix:          "",
		},
		Mirror: MirrorConfig{
			Interval: 5 * time.Minute,
		},
		Audit: AuditConfig{
			MaxOpenConns:    5,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		UI: UIConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":15050"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.Query.RowLimit = 100000
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
