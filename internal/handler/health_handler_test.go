package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-messaging/internal/handler"
)

func ok(ctx context.Context) error { return nil }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		checks     []handler.Check
		wantStatus int
		wantBody   string
	}{
		{
			name:       "all healthy",
			checks:     []handler.Check{{Name: "store", Ping: ok}, {Name: "queue", Ping: ok}},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "queue down",
			checks: []handler.Check{
				{Name: "store", Ping: ok},
				{Name: "queue", Ping: func(ctx context.Context) error { return errors.New("dial tcp: refused") }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.checks...)
			w := httptest.NewRecorder()
			h.Check(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var res struct {
				Status     string            `json:"status"`
				Components map[string]string `json:"components"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
			assert.Equal(t, tt.wantBody, res.Status)
			assert.Equal(t, "ok", res.Components["store"])
		})
	}
}
