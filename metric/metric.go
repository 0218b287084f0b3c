// Package metric holds the prometheus collectors of the sink.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "igtl"

// Drop reasons used as the "reason" label of RecordsDropped.
const (
	ReasonNotConnected     = "not_connected"
	ReasonImageClass       = "image_class"
	ReasonElementKind      = "element_kind"
	ReasonUnknownRecord    = "unknown_record"
	ReasonMarshal          = "marshal"
	ReasonSendFailed       = "send_failed"
	ReasonDeviceCopyFailed = "device_copy"
)

// Metrics are the collectors of one sink instance.
type Metrics struct {
	RecordsDispatched *prometheus.CounterVec
	RecordsDropped    *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	BytesSent         prometheus.Counter
	SendFailures      prometheus.Counter
	Accepts           prometheus.Counter
	Connected         prometheus.Gauge
	WriteDuration     prometheus.Histogram
	DeviceCopyTime    prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "records_dispatched_total",
			Help:      "Records handed to the dispatcher while connected, by record kind",
		}, []string{"kind"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "records_dropped_total",
			Help:      "Records not published, by reason",
		}, []string{"reason"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "messages_sent_total",
			Help:      "IGTL messages delivered to the consumer, by message type",
		}, []string{"type"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "bytes_sent_total",
			Help:      "Bytes delivered to the consumer",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "send_failures_total",
			Help:      "Sends that lost the consumer connection",
		}),
		Accepts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "accepts_total",
			Help:      "Consumer connections accepted",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "connected",
			Help:      "1 while a consumer is connected",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_duration_seconds",
			Help:      "Time spent dispatching one record in Write",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		DeviceCopyTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "device_copy_seconds",
			Help:      "Time spent copying device image buffers to host memory",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsDispatched,
		m.RecordsDropped,
		m.MessagesSent,
		m.BytesSent,
		m.SendFailures,
		m.Accepts,
		m.Connected,
		m.WriteDuration,
		m.DeviceCopyTime,
	}
}

// Unregister removes the collectors from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}

	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

func (m *Metrics) Dropped(reason string) {
	m.RecordsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Sent(msgType string, n int) {
	m.MessagesSent.WithLabelValues(msgType).Inc()
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) ObserveWrite(d time.Duration) {
	m.WriteDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveDeviceCopy(d time.Duration) {
	m.DeviceCopyTime.Observe(d.Seconds())
}

func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
		return
	}

	m.Connected.Set(0)
}
