package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	c, err := NewCollector()
	require.NoError(t, err)

	c.ObserveWrite("set", nil)
	c.ObserveWrite("set", errors.New("boom"))
	c.ObserveCacheLookup("startupConfig", "hit")
	c.ObserveRegeneration(10*time.Millisecond, nil)
	c.ObserveRestartSignal(nil)
	c.SetGeneration(7)

	assert.InDelta(t, 1, testutil.ToFloat64(c.writes.WithLabelValues("set", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.writes.WithLabelValues("set", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.cacheLookups.WithLabelValues("startupConfig", "hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.regenerations.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.restartSignals.WithLabelValues("ok")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(c.generationGauge), 0)
}

func TestCollectorHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	c, err := NewCollector()
	require.NoError(t, err)
	c.ObserveWrite("reset", nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "config_overlay_overrides_writes_total")
}
