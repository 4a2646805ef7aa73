package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SegmentsTrained.Inc()
	m.SegmentsSkipped.WithLabelValues("insufficient_history").Add(2)
	m.BatchDuration.WithLabelValues("full").Observe(1.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentsTrained))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SegmentsSkipped.WithLabelValues("insufficient_history")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNop_IsIndependent(t *testing.T) {
	a, b := Nop(), Nop()
	a.RowsWritten.Add(3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RowsWritten))
}
