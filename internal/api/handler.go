// Package api exposes the import pipeline over HTTP. Runs are submitted as
// multipart uploads, steered with JSON control endpoints, and observed
// through progress and log queries.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/pipeline"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// Config holds handler settings.
type Config struct {
	// UploadDir receives submitted files; the committer deletes them after
	// a successful commit.
	UploadDir string
	// DefaultDuplicatePolicy applies when a submission omits the policy.
	DefaultDuplicatePolicy string
	// MaxUploadBytes caps the multipart form size.
	MaxUploadBytes int64
}

// Handler serves the import endpoints.
type Handler struct {
	runs    repository.ImportRunRepository
	staging repository.StagingRepository
	logs    repository.ImportLogRepository
	engine  *pipeline.Engine
	cfg     Config
	log     logger.Logger
}

// NewHandler wires the HTTP surface over the repositories and the engine.
func NewHandler(
	runs repository.ImportRunRepository,
	staging repository.StagingRepository,
	logs repository.ImportLogRepository,
	engine *pipeline.Engine,
	cfg Config,
	log logger.Logger,
) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	return &Handler{
		runs:    runs,
		staging: staging,
		logs:    logs,
		engine:  engine,
		cfg:     cfg,
		log:     log.WithComponent("api"),
	}
}

// Routes returns the mux with every import endpoint registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /imports", h.submit)
	mux.HandleFunc("GET /imports", h.list)
	mux.HandleFunc("GET /imports/{id}", h.get)
	mux.HandleFunc("DELETE /imports/{id}", h.delete)
	mux.HandleFunc("PUT /imports/{id}/mapping", h.updateMapping)
	mux.HandleFunc("POST /imports/{id}/commit", h.commit)
	mux.HandleFunc("GET /imports/{id}/logs", h.listLogs)
	return mux
}

// runID parses the {id} path segment, writing the error response itself on
// failure.
func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
