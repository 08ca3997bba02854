package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smatrader/internal/state"
)

func TestMetricsRegistered(t *testing.T) {
	CyclesTotal.WithLabelValues("GBPUSD", "ok").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "smabot_cycles_total" {
			found = true
			break
		}
	}
	assert.True(t, found, "smabot_cycles_total metric not found")
}

func TestStatusEndpoint(t *testing.T) {
	store := state.NewStore("run-1", 5)
	store.Record(state.CycleReport{Cycle: 1, Symbol: "GBPUSD", Direction: "buy"})
	srv := httptest.NewServer(Handler(store))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap state.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "run-1", snap.RunID)
	require.NotNil(t, snap.Last)
	assert.Equal(t, "buy", snap.Last.Direction)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv := httptest.NewServer(Handler(state.NewStore("run-1", 1)))
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestDirectionValue(t *testing.T) {
	assert.Equal(t, 1.0, DirectionValue("buy"))
	assert.Equal(t, -1.0, DirectionValue("sell"))
	assert.Equal(t, 0.0, DirectionValue("flat"))
}
