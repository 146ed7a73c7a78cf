package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/preprocess"
	"github.com/finqa/finqa/internal/storage"
)

type ObjectLoader struct {
	store storage.ObjectStore
	key   string
	kind  format
	pre   *preprocess.Preprocessor
}

func NewObjectLoader(store storage.ObjectStore, key string, pre *preprocess.Preprocessor) (*ObjectLoader, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("dataset object key is required")
	}
	kind, err := formatFor(key)
	if err != nil {
		return nil, err
	}
	return &ObjectLoader{store: store, key: key, kind: kind, pre: pre}, nil
}

func (l *ObjectLoader) Load(ctx context.Context) (*dataset.Dataset, error) {
	body, err := l.store.Get(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("get dataset object %q: %w", l.key, err)
	}
	defer body.Close()
	return decode(l.pre, l.kind, l.key, body)
}

func (l *ObjectLoader) Describe() string {
	return "object:" + l.key
}
