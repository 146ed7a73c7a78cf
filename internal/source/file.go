package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/preprocess"
)

type FileLoader struct {
	path string
	kind format
	pre  *preprocess.Preprocessor
}

func NewFileLoader(path string, pre *preprocess.Preprocessor) (*FileLoader, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	kind, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	return &FileLoader{path: path, kind: kind, pre: pre}, nil
}

func (l *FileLoader) Load(ctx context.Context) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}
	defer f.Close()
	return decode(l.pre, l.kind, l.path, f)
}

func (l *FileLoader) Describe() string {
	return "file:" + l.path
}
