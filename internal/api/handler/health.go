package handler

import (
	"context"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health reports that the process is serving.
func Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ready reports whether the cache backend answers within timeout.
// An unreachable backend does not break lookups, which degrade to live resolution,
// so this is for load balancers that prefer instances with a working cache.
func Ready(backend Pinger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := backend.Ping(ctx); err != nil {
			JSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unavailable",
				Error:  err.Error(),
			})
			return
		}
		JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}
