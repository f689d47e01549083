package csm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"blender-mcp-bridge/config"
)

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveCSMRequest(endpoint, status string) {
	r.calls = append(r.calls, endpoint+":"+status)
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().CSM
	cfg.BaseURL = srv.URL
	opts = append([]Option{WithLimiter(rate.NewLimiter(rate.Inf, 1))}, opts...)
	return New(cfg, opts...), &hits
}

func TestSearchFiltersModelsWithoutGLB(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/image-to-3d-sessions/session-search/vector-search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "web", r.Header.Get("x-platform"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"search_text":"red chair","limit":5,"filter_body":{"tier":"pro"}}`, string(body))

		_, _ = io.WriteString(w, `{"data":[
			{"_id":"1","session_code":"S1","mesh_url_glb":"https://cdn/1.glb","tier_at_creation":"pro"},
			{"_id":"2","session_code":"S2","tier_at_creation":"free"},
			{"_id":"3","session_code":"S3","mesh_url_glb":"https://cdn/3.glb"}
		]}`)
	})

	res, err := c.Search(context.Background(), "secret", "red chair", 5, "pro")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	assert.Equal(t, 3, res.TotalFound)
	assert.Equal(t, 2, res.AvailableModels)
	assert.Equal(t, "pro", res.TierUsed)
	assert.Equal(t, map[string]int{"pro": 1, "free": 1, "unknown": 1}, res.ModelsByTier)
	require.Len(t, res.Models, 2)
	assert.Equal(t, "1", res.Models[0].ID)
	assert.Equal(t, "S3", res.Models[1].SessionCode)
}

func TestSearchAuthFailure(t *testing.T) {
	obs := &recordingObserver{}
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"forbidden"}`)
	}, WithObserver(obs))

	_, err := c.Search(context.Background(), "bad", "chair", 20, "free")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "may be invalid")
	assert.Contains(t, apiErr.Instructions, "developer-settings")
	assert.Contains(t, apiErr.Details, "forbidden")
	assert.EqualValues(t, 1, atomic.LoadInt32(hits), "errors are not retried")
	assert.Equal(t, []string{"vector_search:403"}, obs.calls)
}

func TestUserTier(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/userdata", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"tier":"enterprise"}}`)
	})
	tier, err := c.UserTier(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "enterprise", tier)
}

func TestUserTierDefaultsToFree(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	})
	tier, err := c.UserTier(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "free", tier)
}

func TestSessionDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/image-to-3d-sessions/SESSION_1", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"session_status":"complete","percent_done":100,"mesh_url_glb":"https://cdn/m.glb","created_at":"2024-01-01"}}`)
	})
	s, err := c.SessionDetails(context.Background(), "k", "SESSION_1")
	require.NoError(t, err)
	assert.Equal(t, "SESSION_1", s.SessionCode)
	assert.Equal(t, "complete", s.SessionStatus)
	require.NotNil(t, s.PercentDone)
	assert.Equal(t, 100.0, *s.PercentDone)
	assert.Equal(t, "https://cdn/m.glb", s.MeshURLGLB)
}

func TestSessionNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := c.SessionDetails(context.Background(), "k", "NOPE")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Session not found: NOPE", apiErr.Message)
}

func TestOtherStatusReportsCode(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.UserTier(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	}, WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := c.UserTier(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.UserTier(ctx, "k")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}
