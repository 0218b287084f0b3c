package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Dropped(ReasonNotConnected)
	m.Dropped(ReasonNotConnected)
	m.Sent("IMAGE", 130)
	m.Sent("TDATA", 198)
	m.SetConnected(true)
	m.ObserveWrite(time.Millisecond)
	m.ObserveDeviceCopy(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(ReasonNotConnected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("IMAGE")))
	assert.Equal(t, 328.0, testutil.ToFloat64(m.BytesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))

	m.SetConnected(false)
	assert.Zero(t, testutil.ToFloat64(m.Connected))

	n, err := testutil.GatherAndCount(reg, "igtl_sink_write_duration_seconds", "igtl_sink_device_copy_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m.Unregister(reg)

	// a second set registers cleanly once the first is gone
	assert.NotPanics(t, func() { New(reg) })
}

func TestNilRegisterer(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.Unregister(nil)
	m.Dropped(ReasonMarshal)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(ReasonMarshal)))
}
