package sink

import (
	"testing"

	"github.com/go-pantheon/fabrica-igtl/igtl"
	"github.com/go-pantheon/fabrica-igtl/internal/packpool"
	"github.com/go-pantheon/fabrica-igtl/metric"
	"github.com/go-pantheon/fabrica-igtl/record"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	packs [][]byte
	err   error
}

func (s *recordingSender) Send(pack []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	s.packs = append(s.packs, append([]byte(nil), pack...))

	return len(pack), nil
}

func newTestDispatcher(sender Sender) (*Dispatcher, *metric.Metrics) {
	m := metric.New(nil)
	pool, _ := packpool.New([]int{128, 1024})

	return NewDispatcher(sender, NewImageMarshaller(testStream, m), NewTrackingMarshaller(testStream), pool, m), m
}

func TestDispatchNestedSyncGroup(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	d, m := newTestDispatcher(sender)

	d.Dispatch(&record.SyncGroup{
		Main: bmode(4),
		Synced: []record.Record{
			needles(1),
			&record.SyncGroup{Main: needles(3), Synced: []record.Record{bmode(2)}},
		},
	})

	require.Len(t, sender.packs, 4)

	for i, sec := range []uint32{1, 2, 3, 4} {
		h, _ := decode(t, sender.packs[i])
		assert.Equal(t, sec, h.Timestamp.Sec)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues(igtl.TypeImage)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues(igtl.TypeTrackingData)))
}

func TestDispatchOversizedImage(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	d, _ := newTestDispatcher(sender)

	img := bmode(1)
	img.Size = record.Extent{X: 64, Y: 64, Z: 1}
	img.Data = record.NewBuffer(make([]uint8, 64*64))

	d.Dispatch(img)

	require.Len(t, sender.packs, 1)
	assert.Len(t, sender.packs[0], igtl.HeaderSize+72+64*64)
}

func TestDispatchSendErrors(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{err: ErrNotConnected}
	d, m := newTestDispatcher(sender)

	d.Dispatch(bmode(1))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(metric.ReasonNotConnected)))

	sender.err = errors.Wrap(ErrNothingSent, "send failed")
	d.Dispatch(needles(1))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(metric.ReasonSendFailed)))

	assert.Empty(t, sender.packs)
}

func TestDispatchDropReasons(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	d, m := newTestDispatcher(sender)

	scan := bmode(1)
	scan.Class = record.ImageClassScan
	d.Dispatch(scan)

	wide := bmode(1)
	wide.Data = record.NewBuffer([]uint16{1, 2, 3, 4})
	d.Dispatch(wide)

	lost := bmode(1)
	lost.Data = record.NewDeviceBuffer(record.ElementKindUint8, 4, deviceMem{err: errors.New("device lost")})
	d.Dispatch(lost)

	d.Dispatch(&record.Unknown{})

	assert.Empty(t, sender.packs)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(metric.ReasonImageClass)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(metric.ReasonElementKind)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(metric.ReasonDeviceCopyFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(metric.ReasonUnknownRecord)))
}
