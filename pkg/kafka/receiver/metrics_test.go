package receiver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegistersAllMetrics(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	c := NewCollector()

	require.NotNil(t, c)
	assert.NotNil(t, c.batchesPolled)
	assert.NotNil(t, c.recordsEmitted)
	assert.NotNil(t, c.commitsSucceeded)
	assert.NotNil(t, c.commitsFailed)
	assert.NotNil(t, c.consecutiveFailure)
	assert.NotNil(t, c.demandOutstanding)
}

func TestCollectorObserveBatchIsSafeToCallRepeatedly(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c := NewCollector()

	assert.NotPanics(t, func() {
		c.ObserveBatch(3)
		c.ObserveBatch(0)
		c.ObserveCommit(true)
		c.ObserveCommit(false)
		c.SetConsecutiveFailures(2)
		c.SetDemandOutstanding(10)
	})
}
