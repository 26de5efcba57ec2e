package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
)

const recentLogCount = 10

// progressResponse is the GET /imports/{id} payload.
type progressResponse struct {
	Run            domain.ImportRun        `json:"run"`
	Progress       float64                 `json:"progress_percent"`
	ElapsedSeconds float64                 `json:"elapsed_seconds"`
	RecentLogs     []domain.ImportLogEntry `json:"recent_logs"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "import run not found")
			return
		}
		h.log.WithError(err).Error("failed to load run")
		writeError(w, http.StatusInternalServerError, "failed to load import run")
		return
	}

	recent, _, err := h.logs.List(r.Context(), run.ID, nil, recentLogCount, 0)
	if err != nil {
		h.log.WithError(err).Warn("failed to load recent logs")
	}

	writeJSON(w, http.StatusOK, progressResponse{
		Run:            run,
		Progress:       run.ProgressPercent(),
		ElapsedSeconds: run.Elapsed().Seconds(),
		RecentLogs:     recent,
	})
}

// delete removes a run, its staged rows, and the source file. Runs inside a
// stage are protected until the stage finishes or fails.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "import run not found")
			return
		}
		h.log.WithError(err).Error("failed to load run")
		writeError(w, http.StatusInternalServerError, "failed to load import run")
		return
	}

	if !run.Deletable() {
		writeError(w, http.StatusConflict, "import run is mid-stage and cannot be deleted")
		return
	}

	if err := h.staging.DeleteByRun(r.Context(), run.Type.StagingPartition(), run.ID); err != nil {
		h.log.WithError(err).Warn("failed to delete staged rows")
	}
	if run.FilePath != "" {
		if err := os.Remove(run.FilePath); err != nil && !os.IsNotExist(err) {
			h.log.WithError(err).Warn("failed to delete source file")
		}
	}

	if err := h.runs.Delete(r.Context(), run.ID); err != nil {
		h.log.WithError(err).Error("failed to delete run")
		writeError(w, http.StatusInternalServerError, "failed to delete import run")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listLogs returns the run's audit trail, newest first, optionally filtered
// by severity.
func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	var severity *domain.LogSeverity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		s := domain.LogSeverity(raw)
		switch s {
		case domain.SeverityInfo, domain.SeverityWarning, domain.SeverityError:
			severity = &s
		default:
			writeError(w, http.StatusBadRequest, "unknown severity")
			return
		}
	}

	limit, offset := pageParams(r, 50)
	entries, total, err := h.logs.List(r.Context(), id, severity, limit, offset)
	if err != nil {
		h.log.WithError(err).Error("failed to list logs")
		writeError(w, http.StatusInternalServerError, "failed to list import logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}
