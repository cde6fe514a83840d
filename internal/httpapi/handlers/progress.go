package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"av1conv/internal/httpkit"
	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

type unknownJob struct {
	Status   models.Status `json:"status"`
	Progress int           `json:"progress"`
}

// ProgressEvents streams the job state as Server-Sent Events every
// SSE interval. A terminal state is sent twice, then the stream ends.
func (h *Handler) ProgressEvents(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := h.log.FromContext(ctx)
	jobID := chi.URLParam(r, "jobId")

	stream, err := httpkit.NewEventStream(w)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeInternal, "handler.progress", "streaming unsupported")
	}

	ticker := time.NewTicker(h.sseInterval)
	defer ticker.Stop()

	sentTerminal := false
	for {
		var payload any = unknownJob{Status: models.StatusUnknown}
		terminal := false

		st, err := h.states.Get(ctx, jobID)
		switch {
		case err == nil:
			payload = st
			terminal = st.Status.Terminal()
		case !errors.Is(err, ports.ErrStateNotFound):
			log.Warn("progress lookup failed", "job_id", jobID, "error", err.Error())
		}

		if err := stream.Send(payload); err != nil {
			log.Debug("progress stream closed", "job_id", jobID, "error", err.Error())
			return nil
		}
		if terminal {
			if sentTerminal {
				return nil
			}
			sentTerminal = true
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
