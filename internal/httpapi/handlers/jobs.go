package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"av1conv/internal/httpkit"
	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Submit validates a conversion request, records it as queued and hands
// it to the dispatcher.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	var job models.VideoConvertJob
	if err := httpkit.DecodeJSON(r, &job); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "handler.submit", "invalid json body")
	}
	if err := job.Normalize(); err != nil {
		return err
	}

	jobID := uuid.NewString()
	st := models.NewJobState(jobID, job, h.now())
	if err := h.states.Put(ctx, st); err != nil {
		return errors.Wrap(err, "handler.submit", "failed to persist job")
	}

	if err := h.dispatcher.Dispatch(ctx, jobID, job); err != nil {
		st.Fail("Dispatch failed", err, h.now())
		if perr := h.states.Put(context.WithoutCancel(ctx), st); perr != nil {
			log.Error("failed to record dispatch failure", "job_id", jobID, "error", perr.Error())
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "handler.submit", "failed to dispatch job").
			WithField("job_id", jobID)
	}

	h.metrics.JobSubmitted()
	log.Info("job submitted",
		"job_id", jobID,
		"request_id", job.Request.ID,
		"format", job.Request.Format,
		"codec", job.Request.Codec,
	)
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
	return nil
}

// Status returns the stored JobState.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) error {
	st, err := h.lookup(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, st)
	return nil
}

// listLimit parses the limit query value. Missing, malformed or
// non-positive values give the default; larger values are capped.
func listLimit(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil || v <= 0:
		return defaultListLimit
	case v > maxListLimit:
		return maxListLimit
	default:
		return v
	}
}

// ListJobs returns job states newest first, optionally filtered by status.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	status := models.Status(strings.ToLower(strings.TrimSpace(q.Get("status"))))
	if status != "" && !status.Valid() {
		return errors.ValidationField("status", "unknown status").WithField("value", string(status))
	}

	states, err := h.states.List(r.Context(), ports.ListFilter{Status: status, Limit: listLimit(q.Get("limit"))})
	if err != nil {
		return errors.Wrap(err, "handler.list", "failed to list jobs")
	}
	if states == nil {
		states = []models.JobState{}
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  states,
		"count": len(states),
	})
	return nil
}

func (h *Handler) lookup(ctx context.Context, jobID string) (models.JobState, error) {
	st, err := h.states.Get(ctx, jobID)
	if errors.Is(err, ports.ErrStateNotFound) {
		return models.JobState{}, errors.New(errors.CodeNotFound, "Unknown job_id").WithField("job_id", jobID)
	}
	if err != nil {
		return models.JobState{}, errors.Wrap(err, "handler.lookup", "failed to load job")
	}
	return st, nil
}
