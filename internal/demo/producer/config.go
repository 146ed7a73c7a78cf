package producer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

// Config controls the synthetic transactions export used for local development.
type Config struct {
	Rows    int
	Clients int
	// Months of history ending at EndDate.
	Months  int
	EndDate time.Time
	Seed    int64
	// OutputPath receives the CSV export; "-" writes to stdout and empty skips the file.
	OutputPath string
	// UploadKey, when set, also stores the export in the object store under this key.
	UploadKey string
}

func DefaultConfig() Config {
	now := time.Now().UTC()
	return Config{
		Rows:       2000,
		Clients:    5,
		Months:     12,
		EndDate:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Seed:       now.UnixNano(),
		OutputPath: "data/transactions.csv",
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyInt(lookup, "FINQA_DEMO_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "FINQA_DEMO_CLIENTS", &cfg.Clients); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "FINQA_DEMO_MONTHS", &cfg.Months); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "FINQA_DEMO_END_DATE", &cfg.EndDate); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "FINQA_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FINQA_DEMO_OUTPUT", &cfg.OutputPath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FINQA_DEMO_UPLOAD_KEY", &cfg.UploadKey); err != nil {
		return Config{}, err
	}

	if cfg.Rows <= 0 {
		return Config{}, fmt.Errorf("FINQA_DEMO_ROWS must be > 0")
	}
	if cfg.Clients <= 0 {
		return Config{}, fmt.Errorf("FINQA_DEMO_CLIENTS must be > 0")
	}
	if cfg.Months <= 0 {
		return Config{}, fmt.Errorf("FINQA_DEMO_MONTHS must be > 0")
	}
	if cfg.UploadKey != "" && !strings.HasSuffix(strings.ToLower(cfg.UploadKey), ".csv") {
		return Config{}, fmt.Errorf("FINQA_DEMO_UPLOAD_KEY must end in .csv")
	}
	if cfg.OutputPath == "" && cfg.UploadKey == "" {
		return Config{}, fmt.Errorf("one of FINQA_DEMO_OUTPUT or FINQA_DEMO_UPLOAD_KEY is required")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
