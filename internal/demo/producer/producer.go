// Package producer writes synthetic transaction exports for local development and demos.
package producer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/finqa/finqa/internal/preprocess"
	"github.com/finqa/finqa/internal/storage"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	store     storage.ObjectStore
	stdout    io.Writer
	generator *Generator
}

type Result struct {
	Rows       int
	OutputPath string
	UploadKey  string
	Bytes      int
}

// NewService builds a producer. store may be nil when cfg.UploadKey is empty.
func NewService(cfg Config, logger *slog.Logger, store storage.ObjectStore) (*Service, error) {
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("rows must be > 0")
	}
	if cfg.Clients <= 0 {
		return nil, fmt.Errorf("clients must be > 0")
	}
	if cfg.UploadKey != "" && store == nil {
		return nil, fmt.Errorf("object store is required to upload %q", cfg.UploadKey)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	start := cfg.EndDate.AddDate(0, -cfg.Months, 0)
	return &Service{
		cfg:       cfg,
		log:       logger,
		store:     store,
		stdout:    os.Stdout,
		generator: NewGenerator(cfg.Seed, cfg.Clients, start, cfg.EndDate),
	}, nil
}

// Run generates the export once and writes it to the configured destinations.
func (s *Service) Run(ctx context.Context) (Result, error) {
	rows := make([]preprocess.RawRow, 0, s.cfg.Rows)
	for i := 0; i < s.cfg.Rows; i++ {
		rows = append(rows, s.generator.NextRow())
	}

	var buf bytes.Buffer
	if err := gocsv.Marshal(rows, &buf); err != nil {
		return Result{}, fmt.Errorf("encode csv: %w", err)
	}
	result := Result{Rows: len(rows), Bytes: buf.Len()}

	switch s.cfg.OutputPath {
	case "":
	case "-":
		if _, err := s.stdout.Write(buf.Bytes()); err != nil {
			return Result{}, fmt.Errorf("write csv: %w", err)
		}
		result.OutputPath = "-"
	default:
		if dir := filepath.Dir(s.cfg.OutputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Result{}, fmt.Errorf("create output directory: %w", err)
			}
		}
		if err := os.WriteFile(s.cfg.OutputPath, buf.Bytes(), 0o644); err != nil {
			return Result{}, fmt.Errorf("write csv: %w", err)
		}
		result.OutputPath = s.cfg.OutputPath
	}

	if s.cfg.UploadKey != "" {
		info, err := storage.PutBytes(ctx, s.store, s.cfg.UploadKey, buf.Bytes(), map[string]string{
			storage.MetaDatasetRows:   strconv.Itoa(len(rows)),
			storage.MetaDatasetSource: "demo-producer",
		})
		if err != nil {
			return Result{}, fmt.Errorf("upload csv: %w", err)
		}
		result.UploadKey = info.Key
	}

	s.log.InfoContext(ctx, "wrote demo transactions export",
		slog.Int("rows", result.Rows),
		slog.Int("bytes", result.Bytes),
		slog.String("output", result.OutputPath),
		slog.String("upload_key", result.UploadKey),
	)
	return result, nil
}
