package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Check is one dependency probed by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	Checks  []Check
	Timeout time.Duration
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{Checks: checks, Timeout: 2 * time.Second}
}

// Check answers 200 when every dependency responds, 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.Checks))
	for _, c := range h.Checks {
		if err := c.Ping(ctx); err != nil {
			components[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[c.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     overall,
		"components": components,
	})
}
