package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type LookupFunc func(string) (string, bool)

// A failed model call or an invalid model output is retried at most once.
const (
	maxLLMRetries         = 1
	maxValidationAttempts = 2
)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type LLMProvider string

const (
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderOllama LLMProvider = "ollama"
)

type DatasetSource string

const (
	DatasetSourceFile     DatasetSource = "file"
	DatasetSourceObject   DatasetSource = "object"
	DatasetSourcePostgres DatasetSource = "postgres"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	LLM           LLMConfig
	Pipeline      PipelineConfig
	Dataset       DatasetConfig
	ObjectStore   ObjectStoreConfig
	SourceDB      SourceDBConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
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

type LLMConfig struct {
	Provider     LLMProvider
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

type PipelineConfig struct {
	ValidationAttempts int
	ResultRowLimit     int
	FallbackRows       int
	TimeZone           string
	// AskTimeout bounds one question end to end, model calls included.
	AskTimeout time.Duration
	// QueryTempDir holds the per-query parquet copy of df; empty uses the OS default.
	QueryTempDir string
}

type DatasetConfig struct {
	Source           DatasetSource
	Path             string
	ObjectKey        string
	PostgresTable    string
	RefreshSchedule  string
	PublishSnapshots bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type SourceDBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("FINQA_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid FINQA_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var provider, source string
	provider = string(cfg.LLM.Provider)
	source = string(cfg.Dataset.Source)

	appliers := []func() error{
		func() error { return applyString(lookup, "FINQA_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "FINQA_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "FINQA_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "FINQA_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "FINQA_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "FINQA_LLM_PROVIDER", &provider) },
		func() error { return applyString(lookup, "FINQA_LLM_BASE_URL", &cfg.LLM.BaseURL) },
		func() error { return applyString(lookup, "FINQA_LLM_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "FINQA_LLM_MODEL", &cfg.LLM.Model) },
		func() error { return applyFloat(lookup, "FINQA_LLM_TEMPERATURE", &cfg.LLM.Temperature) },
		func() error { return applyDuration(lookup, "FINQA_LLM_TIMEOUT", &cfg.LLM.Timeout) },
		func() error { return applyInt(lookup, "FINQA_LLM_MAX_RETRIES", &cfg.LLM.MaxRetries) },
		func() error { return applyDuration(lookup, "FINQA_LLM_RETRY_BACKOFF", &cfg.LLM.RetryBackoff) },
		func() error {
			return applyInt(lookup, "FINQA_PIPELINE_VALIDATION_ATTEMPTS", &cfg.Pipeline.ValidationAttempts)
		},
		func() error { return applyInt(lookup, "FINQA_PIPELINE_RESULT_ROW_LIMIT", &cfg.Pipeline.ResultRowLimit) },
		func() error { return applyInt(lookup, "FINQA_PIPELINE_FALLBACK_ROWS", &cfg.Pipeline.FallbackRows) },
		func() error { return applyString(lookup, "FINQA_PIPELINE_TIMEZONE", &cfg.Pipeline.TimeZone) },
		func() error { return applyDuration(lookup, "FINQA_PIPELINE_ASK_TIMEOUT", &cfg.Pipeline.AskTimeout) },
		func() error { return applyString(lookup, "FINQA_PIPELINE_QUERY_TEMP_DIR", &cfg.Pipeline.QueryTempDir) },
		func() error { return applyString(lookup, "FINQA_DATASET_SOURCE", &source) },
		func() error { return applyString(lookup, "FINQA_DATASET_PATH", &cfg.Dataset.Path) },
		func() error { return applyString(lookup, "FINQA_DATASET_OBJECT_KEY", &cfg.Dataset.ObjectKey) },
		func() error { return applyString(lookup, "FINQA_DATASET_POSTGRES_TABLE", &cfg.Dataset.PostgresTable) },
		func() error { return applyString(lookup, "FINQA_DATASET_REFRESH_SCHEDULE", &cfg.Dataset.RefreshSchedule) },
		func() error { return applyBool(lookup, "FINQA_DATASET_PUBLISH_SNAPSHOTS", &cfg.Dataset.PublishSnapshots) },
		func() error { return applyString(lookup, "FINQA_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "FINQA_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "FINQA_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "FINQA_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "FINQA_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "FINQA_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "FINQA_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "FINQA_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "FINQA_SOURCEDB_DSN", &cfg.SourceDB.DSN) },
		func() error { return applyInt(lookup, "FINQA_SOURCEDB_MAX_OPEN_CONNS", &cfg.SourceDB.MaxOpenConns) },
		func() error { return applyInt(lookup, "FINQA_SOURCEDB_MAX_IDLE_CONNS", &cfg.SourceDB.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "FINQA_SOURCEDB_CONN_MAX_IDLE_TIME", &cfg.SourceDB.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "FINQA_SOURCEDB_CONN_MAX_LIFETIME", &cfg.SourceDB.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "FINQA_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "FINQA_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "FINQA_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "FINQA_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.LLM.Provider = LLMProvider(strings.ToLower(provider))
	cfg.Dataset.Source = DatasetSource(strings.ToLower(source))
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = defaultBaseURL(cfg.LLM.Provider)
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if !isValidProvider(cfg.LLM.Provider) {
		return Config{}, fmt.Errorf("invalid FINQA_LLM_PROVIDER: %q", cfg.LLM.Provider)
	}
	if !isValidSource(cfg.Dataset.Source) {
		return Config{}, fmt.Errorf("invalid FINQA_DATASET_SOURCE: %q", cfg.Dataset.Source)
	}
	if cfg.LLM.MaxRetries < 0 || cfg.LLM.MaxRetries > maxLLMRetries {
		return Config{}, fmt.Errorf("FINQA_LLM_MAX_RETRIES must be between 0 and %d", maxLLMRetries)
	}
	if cfg.Pipeline.ValidationAttempts < 1 || cfg.Pipeline.ValidationAttempts > maxValidationAttempts {
		return Config{}, fmt.Errorf("FINQA_PIPELINE_VALIDATION_ATTEMPTS must be between 1 and %d", maxValidationAttempts)
	}
	if _, err := time.LoadLocation(cfg.Pipeline.TimeZone); err != nil {
		return Config{}, fmt.Errorf("invalid FINQA_PIPELINE_TIMEZONE: %w", err)
	}
	if cfg.Dataset.Source == DatasetSourceObject && cfg.Dataset.ObjectKey == "" {
		return Config{}, fmt.Errorf("FINQA_DATASET_OBJECT_KEY is required for the object dataset source")
	}
	if cfg.Dataset.Source == DatasetSourcePostgres && cfg.SourceDB.DSN == "" {
		return Config{}, fmt.Errorf("FINQA_SOURCEDB_DSN is required for the postgres dataset source")
	}
	if cfg.Dataset.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Dataset.RefreshSchedule); err != nil {
			return Config{}, fmt.Errorf("invalid FINQA_DATASET_REFRESH_SCHEDULE: %w", err)
		}
	}
	return cfg, nil
}

// Location returns the time zone used to derive the as-of date of a question.
func (c PipelineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "finqa-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		LLM: LLMConfig{
			Provider:     LLMProviderOpenAI,
			BaseURL:      "",
			Model:        "gpt-5",
			Temperature:  0,
			Timeout:      30 * time.Second,
			MaxRetries:   1,
			RetryBackoff: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			ValidationAttempts: 2,
			ResultRowLimit:     200,
			FallbackRows:       20,
			TimeZone:           "UTC",
			AskTimeout:         80 * time.Second,
		},
		Dataset: DatasetConfig{
			Source:           DatasetSourceFile,
			Path:             "data/transactions.csv",
			PostgresTable:    "transactions",
			RefreshSchedule:  "",
			PublishSnapshots: false,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "finqa",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		SourceDB: SourceDBConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
		cfg.LLM.RetryBackoff = 0
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

// defaultBaseURL is empty for Gemini, whose SDK resolves its own endpoint.
func defaultBaseURL(provider LLMProvider) string {
	switch provider {
	case LLMProviderOpenAI:
		return "https://api.openai.com"
	case LLMProviderOllama:
		return "http://localhost:11434"
	default:
		return ""
	}
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidProvider(provider LLMProvider) bool {
	switch provider {
	case LLMProviderOpenAI, LLMProviderGemini, LLMProviderOllama:
		return true
	default:
		return false
	}
}

func isValidSource(source DatasetSource) bool {
	switch source {
	case DatasetSourceFile, DatasetSourceObject, DatasetSourcePostgres:
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

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
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
