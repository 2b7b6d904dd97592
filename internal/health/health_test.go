package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestLivenessHandler(t *testing.T) {
	handler := LivenessHandler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("store", PingCheck(fakePinger{}))
	c.Register("markers", ListCheck(func() int { return 3 }))

	rep := c.Check(context.Background())
	assert.True(t, rep.Ready)
	assert.Equal(t, StatusOK, rep.Checks["store"])
	assert.Equal(t, StatusOK, rep.Checks["markers"])
	assert.Equal(t, rep, c.Last())
}

func TestChecker_StoreDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("store", PingCheck(fakePinger{err: errors.New("disk gone")}))
	c.Register("markers", ListCheck(func() int { return 3 }))

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_EmptyMarkersDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("markers", ListCheck(func() int { return 0 }))

	rep := c.Check(context.Background())
	assert.False(t, rep.Ready)
	assert.Equal(t, StatusDown, rep.Checks["markers"])
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("slack", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		code   int
		ready  bool
	}{
		{"healthy", StatusOK, http.StatusOK, true},
		{"down", StatusDown, http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(zerolog.Nop())
			c.Register("svc", func(ctx context.Context) Status { return tt.status })

			rr := httptest.NewRecorder()
			c.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.code, rr.Code)

			var rep Report
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&rep))
			assert.Equal(t, tt.ready, rep.Ready)
			assert.Equal(t, tt.status, rep.Checks["svc"])
		})
	}
}
