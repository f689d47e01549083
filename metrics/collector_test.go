package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCommand(t *testing.T) {
	c := NewCollector(nil)

	c.ObserveCommand("create_object", "ok", 20*time.Millisecond)
	c.ObserveCommand("create_object", "ok", 30*time.Millisecond)
	c.ObserveCommand("bogus", "rejected", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.commandsTotal.WithLabelValues("create_object", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandsTotal.WithLabelValues("bogus", "rejected")))
	// Rejected commands never ran, so they have no duration sample.
	assert.Equal(t, 1, testutil.CollectAndCount(c.commandDuration))
}

func TestObserveCSMRequest(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveCSMRequest("vector_search", "200")
	c.ObserveCSMRequest("vector_search", "403")
	c.ObserveCSMRequest("vector_search", "200")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.csmRequests.WithLabelValues("vector_search", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(nil)
	c.SetLeader(true)
	c.ObserveCommand("get_scene_info", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `blendermcp_commands_total{command="get_scene_info",outcome="ok"} 1`)
	assert.Contains(t, string(body), "blendermcp_leader 1")
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewCollector(nil)
	b := NewCollector(nil)
	a.ObserveCommand("x", "ok", time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.commandsTotal.WithLabelValues("x", "ok")))
}
