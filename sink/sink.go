// Package sink publishes pipeline records as OpenIGTLink messages to a
// single network consumer.
//
// The producer calls Write for every record. While no consumer is
// connected Write returns right away and the record is lost; there is no
// queue. When the consumer goes away the listener is re-armed and the next
// consumer picks up the live stream.
package sink

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/internal/packpool"
	"github.com/go-pantheon/fabrica-igtl/metric"
	"github.com/go-pantheon/fabrica-igtl/record"
	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/go-pantheon/fabrica-igtl/transport/kcp"
	"github.com/go-pantheon/fabrica-igtl/transport/tcp"
	"github.com/go-pantheon/fabrica-igtl/transport/websocket"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Option func(s *OutputSink)

func WithConf(c conf.Config) Option {
	return func(s *OutputSink) {
		s.conf = c
	}
}

// WithListenerFactory replaces the listener built from the network setting.
func WithListenerFactory(f transport.Factory) Option {
	return func(s *OutputSink) {
		s.factory = f
	}
}

// WithRegisterer registers the sink metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *OutputSink) {
		s.reg = reg
	}
}

// OutputSink is the pipeline stage that publishes records.
type OutputSink struct {
	mu      sync.Mutex
	conf    conf.Config
	factory transport.Factory
	reg     prometheus.Registerer

	metrics *metric.Metrics
	pool    *packpool.Pool

	running    atomic.Bool
	manager    atomic.Pointer[ConnectionManager]
	dispatcher atomic.Pointer[Dispatcher]
}

func New(opts ...Option) *OutputSink {
	s := &OutputSink{
		conf: conf.Default(),
		pool: packpool.Default(),
	}

	for _, o := range opts {
		o(s)
	}

	s.metrics = metric.New(s.reg)

	return s
}

// Configure sets the port and stream name used by the next Initialize.
func (s *OutputSink) Configure(port int, streamName string) error {
	if err := conf.ValidatePort(port); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conf.Sink.Port = port
	s.conf.Sink.StreamName = streamName

	return nil
}

// Initialize opens the listener for the configured port and starts
// accepting. A setup failure is kept until the sink is reconfigured and
// initialized again.
func (s *OutputSink) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old := s.manager.Load(); old != nil {
		switch old.State() {
		case StateReady, StateConnected:
			return ErrAlreadyInitialized
		}
	}

	if err := s.conf.Validate(); err != nil {
		return err
	}

	cm := NewConnectionManager(s.newListener(), s.metrics)
	d := NewDispatcher(cm,
		NewImageMarshaller(s.conf.Sink.StreamName, s.metrics),
		NewTrackingMarshaller(s.conf.Sink.StreamName),
		s.pool, s.metrics)

	s.dispatcher.Store(d)
	s.manager.Store(cm)

	return cm.Initialize(ctx)
}

func (s *OutputSink) newListener() transport.Listener {
	if s.factory != nil {
		return s.factory(s.conf.Sink.Port)
	}

	return NewListener(s.conf)
}

// NewListener builds the listener selected by c.Sink.Network.
func NewListener(c conf.Config) transport.Listener {
	bind := net.JoinHostPort(c.Sink.Host, strconv.Itoa(c.Sink.Port))
	timeout := c.Sink.WriteTimeout.Std()

	switch c.Sink.Network {
	case conf.NetworkWebSocket:
		return websocket.NewListener(bind, c.WebSocket, timeout)
	case conf.NetworkKCP:
		return kcp.NewListener(bind, c.KCP, timeout)
	default:
		return tcp.NewListener(bind, c.TCP, timeout)
	}
}

// Start marks the pipeline as running. It does not touch the connection.
func (s *OutputSink) Start() {
	s.running.Store(true)
}

// Stop marks the pipeline as stopped. It does not touch the connection.
func (s *OutputSink) Stop() {
	s.running.Store(false)
}

// Write publishes r if the pipeline runs and a consumer is connected.
// Otherwise r is dropped. Write never blocks on accepting and never fails.
func (s *OutputSink) Write(r record.Record) {
	cm := s.manager.Load()
	if cm == nil || !s.running.Load() || !cm.Ready() || !cm.Connected() {
		s.metrics.Dropped(metric.ReasonNotConnected)
		return
	}

	start := time.Now()

	s.dispatcher.Load().Dispatch(r)

	s.metrics.ObserveWrite(time.Since(start))
	s.metrics.RecordsDispatched.WithLabelValues(string(record.KindOf(r))).Inc()
}

// Teardown closes the connection and the listener and waits for the
// accept task to finish.
func (s *OutputSink) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cm := s.manager.Load()
	if cm == nil {
		return nil
	}

	if err := cm.Teardown(ctx); err != nil {
		log.Errorf("[sink.OutputSink] teardown failed: %+v", err)
		return errors.Wrap(err, "sink teardown failed")
	}

	return nil
}

// Close tears the sink down and unregisters its metrics.
func (s *OutputSink) Close(ctx context.Context) error {
	err := s.Teardown(ctx)
	s.metrics.Unregister(s.reg)

	return err
}

func (s *OutputSink) Ready() bool {
	cm := s.manager.Load()
	return cm != nil && cm.Ready()
}

func (s *OutputSink) Connected() bool {
	cm := s.manager.Load()
	return cm != nil && cm.Connected()
}

func (s *OutputSink) Running() bool {
	return s.running.Load()
}

// State reports the connection state.
func (s *OutputSink) State() State {
	cm := s.manager.Load()
	if cm == nil {
		return StateUninitialized
	}

	return cm.State()
}

// Endpoint returns the URL consumers connect to.
func (s *OutputSink) Endpoint() (string, error) {
	cm := s.manager.Load()
	if cm == nil {
		return "", ErrTerminal
	}

	return cm.Endpoint()
}

// Conf returns a copy of the current configuration.
func (s *OutputSink) Conf() conf.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conf
}
