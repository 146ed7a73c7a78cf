// Package storage holds the object store finqa reads dataset exports from and publishes
// canonical parquet snapshots to. Keys are bucket-relative, such as
// "exports/transactions.csv" or "snapshots/date=2024-04-25/transactions-<version>.parquet".
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	// Metadata holds the user metadata stored with the object. Keys are lower case.
	Metadata     map[string]string
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Metadata keys attached to uploaded exports and snapshots.
const (
	MetaDatasetVersion = "finqa-dataset-version"
	MetaDatasetRows    = "finqa-dataset-rows"
	MetaDatasetSource  = "finqa-dataset-source"
)

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// PutBytes uploads an encoded export or snapshot with optional metadata. The content type
// follows the key's extension, so only .csv and .parquet keys are accepted.
func PutBytes(ctx context.Context, store ObjectStore, key string, payload []byte, metadata map[string]string) (ObjectInfo, error) {
	contentType, err := ContentTypeForKey(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	opts := PutOptions{ContentType: contentType, Metadata: NormalizeMetadata(metadata)}
	info, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), opts)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	return info, nil
}

// NormalizeMetadata lower-cases keys and drops empty ones. S3 servers canonicalize header
// names, so stores return keys in this form too. It returns nil for empty input.
func NormalizeMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	return maps.Clone(metadata)
}
