package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	ContentTypeCSV     = "text/csv"
	ContentTypeParquet = "application/vnd.apache.parquet"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotKey returns the key under which a canonical dataset snapshot is published.
func BuildSnapshotKey(version string, loadedAt time.Time) (string, error) {
	if err := validatePathComponent(version, "dataset version"); err != nil {
		return "", err
	}
	if loadedAt.IsZero() {
		return "", fmt.Errorf("loaded at time is required")
	}
	ts := loadedAt.UTC()
	return path.Join(
		"snapshots",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("transactions-%s.parquet", version),
	), nil
}

// ContentTypeForKey maps a dataset object key to its content type by extension.
func ContentTypeForKey(key string) (string, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return ContentTypeCSV, nil
	case ".parquet":
		return ContentTypeParquet, nil
	default:
		return "", fmt.Errorf("unsupported dataset object %q: want .csv or .parquet", key)
	}
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
