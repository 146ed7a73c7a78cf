// Package source loads transaction exports into dataset snapshots.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/preprocess"
	"github.com/finqa/finqa/internal/storage"
)

type Loader interface {
	Load(ctx context.Context) (*dataset.Dataset, error)
	Describe() string
}

type format string

const (
	formatCSV     format = "csv"
	formatParquet format = "parquet"
)

func formatFor(name string) (format, error) {
	contentType, err := storage.ContentTypeForKey(name)
	if err != nil {
		return "", err
	}
	if contentType == storage.ContentTypeParquet {
		return formatParquet, nil
	}
	return formatCSV, nil
}

// decode builds a snapshot from an export. CSV exports go through the preprocessor;
// parquet files must already carry the canonical columns.
func decode(pre *preprocess.Preprocessor, kind format, name string, body io.Reader) (*dataset.Dataset, error) {
	switch kind {
	case formatCSV:
		ds, _, err := pre.Build(name, body)
		if err != nil {
			return nil, fmt.Errorf("preprocess %s: %w", name, err)
		}
		return ds, nil
	case formatParquet:
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		ds, err := dataset.DecodeParquet(name, data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return ds, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", kind)
	}
}
