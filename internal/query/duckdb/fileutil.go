package duckdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/finqa/finqa/internal/dataset"
)

// writeSnapshotFile materializes ds as <dir>/df.parquet, readable only by this process,
// and returns its path. DuckDB binds df from this file before external access is locked.
func writeSnapshotFile(dir string, ds *dataset.Dataset) (string, error) {
	payload, err := ds.Parquet()
	if err != nil {
		return "", fmt.Errorf("encode dataset %s: %w", ds.Version(), err)
	}
	path := filepath.Join(dir, dataset.TableName+".parquet")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(payload); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
