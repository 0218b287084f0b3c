package sink

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/igtl"
	"github.com/go-pantheon/fabrica-igtl/internal/packpool"
	"github.com/go-pantheon/fabrica-igtl/metric"
	"github.com/go-pantheon/fabrica-igtl/record"
	"github.com/go-pantheon/fabrica-util/errors"
)

// Sender delivers one packed message to the consumer.
type Sender interface {
	Send(pack []byte) (int, error)
}

var _ Sender = (*ConnectionManager)(nil)

// Dispatcher routes records to their marshaller and sends the result.
type Dispatcher struct {
	sender   Sender
	images   *ImageMarshaller
	tracking *TrackingMarshaller
	pool     *packpool.Pool
	metrics  *metric.Metrics
}

func NewDispatcher(sender Sender, images *ImageMarshaller, tracking *TrackingMarshaller,
	pool *packpool.Pool, m *metric.Metrics) *Dispatcher {
	if pool == nil {
		pool = packpool.Default()
	}

	if m == nil {
		m = metric.New(nil)
	}

	return &Dispatcher{
		sender:   sender,
		images:   images,
		tracking: tracking,
		pool:     pool,
		metrics:  m,
	}
}

// Dispatch publishes r. The synced members of a SyncGroup go out in order
// before its main record. Records the sink cannot publish are dropped.
func (d *Dispatcher) Dispatch(r record.Record) {
	switch v := r.(type) {
	case *record.SyncGroup:
		if v == nil {
			d.metrics.Dropped(metric.ReasonUnknownRecord)
			return
		}

		for _, s := range v.Synced {
			d.Dispatch(s)
		}

		d.Dispatch(v.Main)
	case *record.Image:
		if v == nil {
			d.metrics.Dropped(metric.ReasonUnknownRecord)
			return
		}

		d.dispatchImage(v)
	case *record.TrackerSet:
		if v == nil {
			d.metrics.Dropped(metric.ReasonUnknownRecord)
			return
		}

		d.send(d.tracking.Marshal(v))
	default:
		d.metrics.Dropped(metric.ReasonUnknownRecord)
	}
}

func (d *Dispatcher) dispatchImage(img *record.Image) {
	msg, err := d.images.Marshal(img)
	if err != nil {
		switch {
		case errors.Is(err, ErrImageSkipped):
			d.metrics.Dropped(metric.ReasonImageClass)
		case errors.Is(err, ErrUnsupportedElementKind):
			d.metrics.Dropped(metric.ReasonElementKind)
			log.Errorf("[sink.Dispatcher] %+v", err)
		case errors.Is(err, igtl.ErrDimension):
			d.metrics.Dropped(metric.ReasonMarshal)
			log.Errorf("[sink.Dispatcher] %+v", err)
		case img.Data.Location() == record.LocationDevice:
			d.metrics.Dropped(metric.ReasonDeviceCopyFailed)
			log.Errorf("[sink.Dispatcher] %+v", err)
		default:
			d.metrics.Dropped(metric.ReasonMarshal)
			log.Errorf("[sink.Dispatcher] marshal image failed: %+v", err)
		}

		return
	}

	d.send(msg)
}

func (d *Dispatcher) send(msg igtl.Message) {
	buf := d.pool.Alloc(igtl.PackedSize(msg))
	defer d.pool.Free(buf)

	pack, err := igtl.Pack(msg, buf)
	if err != nil {
		d.metrics.Dropped(metric.ReasonMarshal)
		log.Errorf("[sink.Dispatcher] %+v", err)

		return
	}

	n, err := d.sender.Send(pack)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			d.metrics.Dropped(metric.ReasonNotConnected)
		} else {
			d.metrics.Dropped(metric.ReasonSendFailed)
		}

		return
	}

	d.metrics.Sent(msg.TypeName(), n)
}
