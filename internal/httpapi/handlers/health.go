package handlers

import (
	"context"
	"net/http"
	"time"

	"av1conv/internal/httpkit"
)

// Health reports liveness; ?deep=true also pings every dependency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "av1conv-api",
		"version": h.version,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, c := range checks {
			if c["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
	return nil
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := map[string]map[string]any{
		"state": ping(ctx, h.states, map[string]any{"backend": h.states.Name()}),
	}

	storage := map[string]any{"provider": h.sp.Provider()}
	if p, ok := h.sp.(Pinger); ok {
		checks["storage"] = ping(ctx, p, storage)
	} else {
		storage["status"] = "ok"
		checks["storage"] = storage
	}

	for name, p := range h.checks {
		checks[name] = ping(ctx, p, nil)
	}
	return checks
}

func ping(ctx context.Context, p Pinger, result map[string]any) map[string]any {
	if result == nil {
		result = map[string]any{}
	}
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result["status"] = "ok"
	if err := p.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
