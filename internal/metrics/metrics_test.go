package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerInstance(t *testing.T) {
	a := New()
	b := New()
	a.SnapshotWrites.Inc()
	a.SnapshotWrites.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.SnapshotWrites))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SnapshotWrites))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.GeocodeLookups.WithLabelValues("hit").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `reconquest_geocode_lookups_total{outcome="hit"} 1`)
}
