package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Tick(5)
	m.OrderDone(1000)
	m.TransferError("UNKNOWN", 2)
	m.ResolutionOutcome("resolved")
	m.NotificationDropped()
}

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.Tick(3)
	m.OrderDone(1_000_000)
	m.OrderDone(2_000_000)
	m.TransferError("NOT_ENOUGH_FUNDS", 4)
	m.ResolutionOutcome("cache_hit")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TicksTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OrdersDoneTotal))
	assert.Equal(t, float64(3_000_000), testutil.ToFloat64(m.TransfersNanoTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.TransferErrorsTotal.WithLabelValues("NOT_ENOUGH_FUNDS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("cache_hit")))
}
