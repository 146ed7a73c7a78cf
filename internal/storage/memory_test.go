package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	info, err := store.Put(ctx, "exports/a.csv", strings.NewReader("abc"), 3, PutOptions{ContentType: ContentTypeCSV})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Size != 3 || info.ETag == "" {
		t.Fatalf("Put() info = %+v", info)
	}

	reader, err := store.Get(ctx, "exports/a.csv")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(payload) != "abc" {
		t.Fatalf("Get() payload = %q, want abc", payload)
	}

	if _, err := store.Stat(ctx, "missing.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v, want ErrObjectNotFound", err)
	}
}

func TestMemoryStoreRejectsSizeMismatch(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Put(context.Background(), "a.csv", strings.NewReader("abc"), 5, PutOptions{}); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

type contentTypeRecorder struct {
	*MemoryStore
	contentTypes map[string]string
}

func (r *contentTypeRecorder) Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error) {
	r.contentTypes[key] = opts.ContentType
	return r.MemoryStore.Put(ctx, key, body, size, opts)
}

func TestPutBytesInfersContentType(t *testing.T) {
	store := &contentTypeRecorder{MemoryStore: NewMemoryStore(), contentTypes: map[string]string{}}
	ctx := context.Background()

	for key, want := range map[string]string{
		"exports/transactions.csv":                       ContentTypeCSV,
		"snapshots/date=2024-04-25/transactions.parquet": ContentTypeParquet,
	} {
		info, err := PutBytes(ctx, store, key, []byte("payload"), nil)
		if err != nil {
			t.Fatalf("PutBytes(%q) error = %v", key, err)
		}
		if info.Size != 7 || store.contentTypes[key] != want {
			t.Fatalf("PutBytes(%q) info = %+v content type = %q", key, info, store.contentTypes[key])
		}
	}
	if _, err := PutBytes(ctx, store, "exports/transactions.json", []byte("{}"), nil); err == nil {
		t.Fatal("expected unsupported key error")
	}
}

func TestMemoryStoreKeepsNormalizedMetadata(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	metadata := map[string]string{"Finqa-Dataset-Version": "v7", MetaDatasetRows: "12"}

	if _, err := PutBytes(ctx, store, "snapshots/date=2024-04-25/transactions-v7.parquet", []byte("pq"), metadata); err != nil {
		t.Fatalf("PutBytes() error = %v", err)
	}
	metadata[MetaDatasetRows] = "changed"

	info, err := store.Stat(ctx, "snapshots/date=2024-04-25/transactions-v7.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Metadata[MetaDatasetVersion] != "v7" || info.Metadata[MetaDatasetRows] != "12" {
		t.Fatalf("Stat() metadata = %v", info.Metadata)
	}
	info.Metadata[MetaDatasetVersion] = "mutated"
	again, err := store.Stat(ctx, "snapshots/date=2024-04-25/transactions-v7.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if again.Metadata[MetaDatasetVersion] != "v7" {
		t.Fatalf("Stat() metadata shared with caller: %v", again.Metadata)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	if got := NormalizeMetadata(nil); got != nil {
		t.Fatalf("NormalizeMetadata(nil) = %v", got)
	}
	if got := NormalizeMetadata(map[string]string{"  ": "x"}); got != nil {
		t.Fatalf("NormalizeMetadata(blank key) = %v", got)
	}
	got := NormalizeMetadata(map[string]string{" Finqa-Dataset-Source ": "s3"})
	if len(got) != 1 || got[MetaDatasetSource] != "s3" {
		t.Fatalf("NormalizeMetadata() = %v", got)
	}
}
