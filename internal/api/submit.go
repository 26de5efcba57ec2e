package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// submit accepts a multipart upload and enqueues a pending run.
//
// Form fields: file (required), company_id, creator_id, type, source_system
// (optional), duplicate_policy (optional, defaults from config).
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file required: %v", err))
		return
	}
	defer file.Close()

	companyID, err := uuid.Parse(strings.TrimSpace(r.FormValue("company_id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	creatorID, err := uuid.Parse(strings.TrimSpace(r.FormValue("creator_id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid creator id")
		return
	}

	entityType := domain.EntityType(strings.TrimSpace(r.FormValue("type")))
	if !entityType.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown import type %q", entityType))
		return
	}

	policy := domain.DuplicatePolicy(strings.TrimSpace(r.FormValue("duplicate_policy")))
	if policy == "" {
		policy = domain.DuplicatePolicy(h.cfg.DefaultDuplicatePolicy)
	}
	if !policy.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown duplicate policy %q", policy))
		return
	}

	sourceSystem := strings.TrimSpace(r.FormValue("source_system"))

	path, err := h.storeUpload(file, header.Filename)
	if err != nil {
		h.log.WithError(err).Error("failed to store upload")
		writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
		return
	}

	run := domain.NewImportRun(companyID, creatorID, entityType, sourceSystem, path)
	run.DuplicatePolicy = policy

	created, err := h.runs.Create(r.Context(), run)
	if err != nil {
		h.log.WithError(err).Error("failed to create run")
		writeError(w, http.StatusInternalServerError, "failed to create import run")
		return
	}

	if err := h.engine.Submit(created.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "import pipeline is not accepting work")
		return
	}

	h.log.WithFields(logger.Fields{
		"run_id": created.ID,
		"type":   created.Type,
		"file":   header.Filename,
	}).Info("import submitted")

	writeJSON(w, http.StatusAccepted, created)
}

// storeUpload writes the uploaded stream under the configured directory with
// a unique prefix so concurrent submissions of identically named files never
// collide.
func (h *Handler) storeUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(filename))
	path := filepath.Join(h.cfg.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return path, nil
}

// list returns a company's runs, newest first, optionally filtered by status.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("company_id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return
	}

	var status *domain.RunStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.RunStatus(raw)
		status = &s
	}

	limit, offset := pageParams(r, 20)
	runs, total, err := h.runs.List(r.Context(), companyID, status, limit, offset)
	if err != nil {
		h.log.WithError(err).Error("failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list import runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}

// pageParams reads limit/offset from the query with a default page size.
func pageParams(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
