package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/finqa/finqa/internal/auth"
	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/refresh"
)

type datasetColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type datasetResponse struct {
	Table      string          `json:"table"`
	Version    string          `json:"version"`
	Source     string          `json:"source"`
	Rows       int             `json:"rows"`
	LoadedAt   time.Time       `json:"loaded_at"`
	Columns    []datasetColumn `json:"columns"`
	Categories []string        `json:"categories"`
	Merchants  []string        `json:"merchants"`
	Refresh    *refresh.Status `json:"refresh,omitempty"`
}

func handleGetDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASET_NOT_CONFIGURED", "dataset store is not configured", false, nil)
		return
	}
	if err := auth.Authorize(r.Context(), auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	snapshot, err := deps.Datasets.Current()
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATASET_NOT_LOADED", "dataset is not loaded yet", true, nil)
		return
	}

	columns := make([]datasetColumn, 0, len(dataset.Columns))
	for _, column := range dataset.Columns {
		columns = append(columns, datasetColumn{Name: column.Name, Type: column.SQLType})
	}
	response := datasetResponse{
		Table:      dataset.TableName,
		Version:    snapshot.Version(),
		Source:     snapshot.Source(),
		Rows:       snapshot.Len(),
		LoadedAt:   snapshot.LoadedAt(),
		Columns:    columns,
		Categories: snapshot.Categories(),
		Merchants:  snapshot.Merchants(),
	}
	if deps.Refresher != nil {
		status := deps.Refresher.Status()
		response.Refresh = &status
	}
	writeJSON(w, http.StatusOK, response)
}

func handleRefreshDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Refresher == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "REFRESH_NOT_CONFIGURED", "dataset refresh is not configured", false, nil)
		return
	}
	if err := auth.Authorize(r.Context(), auth.RoleDatasetAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	result, err := deps.Refresher.RefreshOnce(r.Context())
	if err != nil {
		if errors.Is(err, refresh.ErrRefreshInProgress) {
			writeError(r.Context(), w, http.StatusConflict, "REFRESH_IN_PROGRESS", err.Error(), true, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "REFRESH_FAILED", "dataset refresh failed; the previous snapshot stays active", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "completed",
		"result": result,
	})
}
