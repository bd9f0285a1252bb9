package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(rollbacks.WithLabelValues("failure"))
	RecordRollback(false)
	assert.Equal(t, before+1, testutil.ToFloat64(rollbacks.WithLabelValues("failure")))

	RecordRequest("GET", 0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(apiRequests.WithLabelValues("GET", "0")), 1.0)

	RecordFlow("create", "failed_at_compute")
	RecordRefresh(true)
	assert.GreaterOrEqual(t, testutil.ToFloat64(tokenRefreshes.WithLabelValues("success")), 1.0)
}

func TestRegistryExposesCounters(t *testing.T) {
	RecordFlow("append", "succeeded")

	n, err := testutil.GatherAndCount(Registry, "whatif_scenario_flow_runs_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
