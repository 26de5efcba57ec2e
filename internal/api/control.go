package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/mapper"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/pipeline"
)

// mappingRequest carries caller-supplied field overrides for the mapping
// stage. Keys are source fields, values are target fields.
type mappingRequest struct {
	Overrides       map[string]string `json:"overrides"`
	DuplicatePolicy string            `json:"duplicate_policy,omitempty"`
}

// updateMapping stores overrides on the run and re-enters the mapping stage.
// Accepted only while the run is pending or still in mapping.
func (h *Handler) updateMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Overrides) == 0 {
		writeError(w, http.StatusBadRequest, "overrides must not be empty")
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

	if !run.AcceptsMappingConfig() {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("run in status %q no longer accepts mapping changes", run.Status))
		return
	}

	if bad := unknownTargets(run.Type, req.Overrides); len(bad) > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown target fields: %v", bad))
		return
	}

	if req.DuplicatePolicy != "" {
		policy := domain.DuplicatePolicy(req.DuplicatePolicy)
		if !policy.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown duplicate policy %q", policy))
			return
		}
		run.DuplicatePolicy = policy
	}

	if run.MappingConfig == nil {
		run.MappingConfig = &domain.MappingConfig{}
	}
	run.MappingConfig.Overrides = req.Overrides

	updated, err := h.runs.Update(r.Context(), run)
	if err != nil {
		h.log.WithError(err).Error("failed to persist mapping overrides")
		writeError(w, http.StatusInternalServerError, "failed to update import run")
		return
	}

	if err := h.engine.ResumeMapping(updated.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "import pipeline is not accepting work")
		return
	}

	writeJSON(w, http.StatusAccepted, updated)
}

// unknownTargets returns override targets that are not valid for the run's
// entity type.
func unknownTargets(entityType domain.EntityType, overrides map[string]string) []string {
	known := make(map[string]bool)
	for _, t := range mapper.TargetsFor(entityType) {
		known[t.Name] = true
	}
	var bad []string
	for _, target := range overrides {
		if !known[target] {
			bad = append(bad, target)
		}
	}
	return bad
}

// commitRequest is the POST /imports/{id}/commit payload.
type commitRequest struct {
	// Force commits the valid rows even when validation left failures.
	Force bool `json:"force"`
}

// commit schedules the commit stage explicitly for a run still in
// validation. The pipeline normally chains into commit on its own; this
// trigger exists for operator-driven re-runs, and the force flag is the
// acknowledgement that outstanding validation failures are accepted.
func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
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

	if terr := pipeline.Transition(run.Status, domain.RunCommitting); terr != nil {
		writeError(w, http.StatusConflict, terr.Error())
		return
	}

	if run.Counters.FailedRecords > 0 && !req.Force {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("%d rows failed validation; resubmit with force to commit the valid rows",
				run.Counters.FailedRecords))
		return
	}

	if err := h.engine.ForceCommit(run.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "import pipeline is not accepting work")
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}
