package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ping(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestHandler_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		checks   []CheckFunc
		wantCode int
		want     Status
	}{
		{name: "no checks", wantCode: http.StatusOK, want: StatusHealthy},
		{
			name:     "all healthy",
			checks:   []CheckFunc{{Name: "postgres", Fn: ping(nil)}, {Name: "bus", Fn: ping(nil)}},
			wantCode: http.StatusOK,
			want:     StatusHealthy,
		},
		{
			name:     "optional failure degrades",
			checks:   []CheckFunc{{Name: "postgres", Fn: ping(nil)}, {Name: "redis", Fn: ping(errors.New("dial")), Optional: true}},
			wantCode: http.StatusOK,
			want:     StatusDegraded,
		},
		{
			name:     "critical failure",
			checks:   []CheckFunc{{Name: "postgres", Fn: ping(errors.New("refused"))}, {Name: "redis", Fn: ping(errors.New("dial")), Optional: true}},
			wantCode: http.StatusServiceUnavailable,
			want:     StatusUnhealthy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler("v1.2.3", "orders", "inventory")
			for _, c := range tc.checks {
				h.RegisterChecker(c.Name, c)
			}

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tc.wantCode, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tc.want, resp.Status)
			assert.Equal(t, "v1.2.3", resp.Version)
			assert.Equal(t, []string{"orders", "inventory"}, resp.Services)
			assert.Len(t, resp.Checks, len(tc.checks))
		})
	}
}

func TestHandler_FailureMessage(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("postgres", CheckFunc{Name: "postgres", Fn: ping(errors.New("connection refused"))})

	_, checks := h.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, checks["postgres"].Status)
	assert.Equal(t, "connection refused", checks["postgres"].Message)
}

func TestHandler_ChecksShareDeadline(t *testing.T) {
	h := NewHandler("dev")
	h.timeout = 20 * time.Millisecond
	h.RegisterChecker("slow", CheckFunc{Name: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	start := time.Now()
	overall, checks := h.Run(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, overall)
	assert.Contains(t, checks["slow"].Message, "deadline")
}

func TestReadinessHandler(t *testing.T) {
	h := NewHandler("dev")
	w := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", w.Body.String())

	h.RegisterChecker("bus", CheckFunc{Name: "bus", Fn: ping(errors.New("closed"))})
	w = httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
