// Package refresh reloads the transaction dataset and publishes it to the shared store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/observability"
	"github.com/finqa/finqa/internal/source"
	"github.com/finqa/finqa/internal/storage"
)

var ErrRefreshInProgress = errors.New("dataset refresh already in progress")

type Service struct {
	Loader source.Loader
	Store  *dataset.Store
	// ObjectStore receives a parquet copy of every new snapshot when PublishSnapshots is set.
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time

	running sync.Mutex
	mu      sync.Mutex
	status  Status
}

type Config struct {
	// Schedule is a standard five-field cron spec or a descriptor such as "@every 15m".
	// Empty disables scheduled refreshes.
	Schedule         string
	PublishSnapshots bool
}

type Result struct {
	Version     string    `json:"version"`
	Source      string    `json:"source"`
	Rows        int       `json:"rows"`
	LoadedAt    time.Time `json:"loaded_at"`
	SnapshotKey string    `json:"snapshot_key,omitempty"`
}

// Status describes the most recent refresh attempt.
type Status struct {
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// RefreshOnce loads a new snapshot and swaps it into the store. On failure the previous
// snapshot stays published. Concurrent calls fail fast with ErrRefreshInProgress.
func (s *Service) RefreshOnce(ctx context.Context) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrRefreshInProgress
	}
	defer s.running.Unlock()
	s.ensureDefaults()

	started := s.Clock()
	result, err := s.refresh(ctx)

	s.mu.Lock()
	s.status.LastAttempt = started
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastSuccess = started
		s.status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		observability.IncrementDatasetRefresh("error")
		s.Logger.ErrorContext(ctx, "dataset refresh failed", slog.String("source", s.Loader.Describe()), slog.Any("error", err))
		return Result{}, err
	}
	observability.IncrementDatasetRefresh("ok")
	s.Logger.InfoContext(ctx, "dataset refreshed",
		slog.String("source", result.Source),
		slog.String("version", result.Version),
		slog.Int("rows", result.Rows),
		slog.String("snapshot_key", result.SnapshotKey),
	)
	return result, nil
}

func (s *Service) refresh(ctx context.Context) (Result, error) {
	if s.Loader == nil || s.Store == nil {
		return Result{}, fmt.Errorf("refresh service requires a loader and a store")
	}
	next, err := s.Loader.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load %s: %w", s.Loader.Describe(), err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result := Result{
		Version:  next.Version(),
		Source:   next.Source(),
		Rows:     next.Len(),
		LoadedAt: next.LoadedAt(),
	}
	if s.Config.PublishSnapshots && s.ObjectStore != nil {
		key, err := s.publish(ctx, next)
		if err != nil {
			return Result{}, err
		}
		result.SnapshotKey = key
	}

	s.Store.Replace(next)
	observability.SetDatasetMetrics(next.Len(), next.LoadedAt())
	return result, nil
}

func (s *Service) publish(ctx context.Context, snapshot *dataset.Dataset) (string, error) {
	key, err := storage.BuildSnapshotKey(snapshot.Version(), snapshot.LoadedAt())
	if err != nil {
		return "", fmt.Errorf("build snapshot key: %w", err)
	}
	data, err := snapshot.Parquet()
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	metadata := map[string]string{
		storage.MetaDatasetVersion: snapshot.Version(),
		storage.MetaDatasetRows:    strconv.Itoa(snapshot.Len()),
		storage.MetaDatasetSource:  snapshot.Source(),
	}
	if _, err := storage.PutBytes(ctx, s.ObjectStore, key, data, metadata); err != nil {
		return "", fmt.Errorf("publish snapshot: %w", err)
	}
	return key, nil
}

// Run refreshes on Config.Schedule until ctx is done. It does not perform an initial load.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()
	if s.Config.Schedule == "" {
		<-ctx.Done()
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.Config.Schedule, func() {
		if _, err := s.RefreshOnce(ctx); errors.Is(err, ErrRefreshInProgress) {
			s.Logger.WarnContext(ctx, "skipping scheduled dataset refresh", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", s.Config.Schedule, err)
	}
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
}
