package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/metric"
	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/go-pantheon/fabrica-util/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotConnected       = errors.New("no consumer connected")
	ErrTerminal           = errors.New("connection manager is not ready or terminated")
	ErrAlreadyInitialized = errors.New("connection manager already initialized")
	ErrNothingSent        = errors.New("send delivered no bytes")
)

const acceptRetryInterval = 100 * time.Millisecond

// State is the lifecycle state of a ConnectionManager.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateConnected
	StateNotReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateConnected:
		return "connected"
	case StateNotReady:
		return "not_ready"
	case StateTerminated:
		return "terminated"
	default:
		return "invalid"
	}
}

const (
	phaseUninitialized int32 = iota
	phaseStarting
	phaseRunning
	phaseNotReady
	phaseTerminated
)

// ConnectionManager owns the listener and the single consumer connection.
//
// One accept actor goroutine performs every Accept. Arm wakes it up; arming
// while an accept is already requested or in flight is a no-op, so at most
// one accept runs at any time. Producers borrow the connection through Send
// and never block on accepting.
type ConnectionManager struct {
	listener transport.Listener
	metrics  *metric.Metrics

	phase     atomic.Int32
	ready     atomic.Bool
	connected atomic.Bool
	accepting atomic.Bool
	armed     atomic.Int64

	mu   sync.RWMutex
	conn transport.Conn

	armCh  chan struct{}
	cancel context.CancelFunc
	group  errgroup.Group
}

// NewConnectionManager returns a manager for listener. A nil m records into
// unregistered collectors.
func NewConnectionManager(listener transport.Listener, m *metric.Metrics) *ConnectionManager {
	if m == nil {
		m = metric.New(nil)
	}

	return &ConnectionManager{
		listener: listener,
		metrics:  m,
		armCh:    make(chan struct{}, 1),
	}
}

// Initialize opens the listener and arms the first accept. A failure leaves
// the manager NotReady for good.
func (m *ConnectionManager) Initialize(ctx context.Context) error {
	if !m.phase.CompareAndSwap(phaseUninitialized, phaseStarting) {
		if m.terminal() {
			return ErrTerminal
		}

		return ErrAlreadyInitialized
	}

	if err := m.listener.Listen(ctx); err != nil {
		m.phase.CompareAndSwap(phaseStarting, phaseNotReady)
		log.Errorf("[sink.ConnectionManager] setup failed: %+v", err)

		return errors.Wrap(err, "connection manager setup failed")
	}

	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	m.group.Go(func() error {
		return m.acceptLoop(actx)
	})

	m.ready.Store(true)

	if !m.phase.CompareAndSwap(phaseStarting, phaseRunning) {
		// torn down while the listener was opening
		m.ready.Store(false)
		cancel()
		_ = m.listener.Close()
		_ = m.group.Wait()

		return ErrTerminal
	}

	if endpoint, err := m.listener.Endpoint(); err == nil {
		log.Infof("[sink.ConnectionManager] ready on %s", endpoint)
	}

	m.Arm()

	return nil
}

// Arm requests one accept. It returns immediately.
func (m *ConnectionManager) Arm() {
	if !m.ready.Load() {
		return
	}

	if !m.accepting.CompareAndSwap(false, true) {
		return
	}

	m.armed.Add(1)

	select {
	case m.armCh <- struct{}{}:
	default:
	}
}

func (m *ConnectionManager) acceptLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.armCh:
		}

		m.acceptOne(ctx)
	}
}

func (m *ConnectionManager) acceptOne(ctx context.Context) {
	log.Infof("[sink.ConnectionManager] waiting for connection")

	for {
		conn, err := m.listener.Accept(ctx)
		if err == nil {
			// cleared before the connection becomes visible so that a send
			// failing right after install can arm again
			m.accepting.Store(false)
			m.install(conn)

			return
		}

		if ctx.Err() != nil || transport.IsClosed(err) || !m.ready.Load() {
			m.accepting.Store(false)
			return
		}

		log.Errorf("[sink.ConnectionManager] accept failed: %+v", err)

		select {
		case <-ctx.Done():
			m.accepting.Store(false)
			return
		case <-time.After(acceptRetryInterval):
		}
	}
}

func (m *ConnectionManager) install(conn transport.Conn) {
	m.mu.Lock()

	if !m.ready.Load() {
		m.mu.Unlock()
		_ = conn.Close()

		return
	}

	old := m.conn
	m.conn = conn
	m.connected.Store(true)
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	m.metrics.Accepts.Inc()
	m.metrics.SetConnected(true)

	log.Infof("[sink.ConnectionManager] got connection. id=%d remote=%s", conn.ID(), conn.RemoteAddr())
}

// Send writes one packed message to the consumer. A failed send, including
// one that delivers no bytes, drops the connection and re-arms the accept.
func (m *ConnectionManager) Send(pack []byte) (int, error) {
	m.mu.RLock()

	conn := m.conn
	if conn == nil || !m.connected.Load() {
		m.mu.RUnlock()
		return 0, ErrNotConnected
	}

	n, err := conn.Send(pack)

	m.mu.RUnlock()

	if err == nil && n == 0 && len(pack) > 0 {
		err = ErrNothingSent
	}

	if err != nil {
		m.lost(conn, err)
		return n, errors.Wrapf(err, "send failed. id=%d", conn.ID())
	}

	return n, nil
}

// lost retires conn after a failed send. Only the first report for the
// active connection has an effect.
func (m *ConnectionManager) lost(conn transport.Conn, cause error) {
	m.mu.Lock()

	if m.conn != conn {
		m.mu.Unlock()
		return
	}

	m.conn = nil
	m.connected.Store(false)
	m.mu.Unlock()

	_ = conn.Close()

	m.metrics.SendFailures.Inc()
	m.metrics.SetConnected(false)

	log.Infof("[sink.ConnectionManager] lost connection, waiting for next connection. id=%d err=%v", conn.ID(), cause)

	m.Arm()
}

// Teardown stops accepting and closes the connection and the listener. It
// waits for the accept actor until ctx is done.
func (m *ConnectionManager) Teardown(ctx context.Context) error {
	m.connected.Store(false)
	m.ready.Store(false)

	prev := m.phase.Swap(phaseTerminated)
	if prev == phaseTerminated {
		return nil
	}

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.metrics.SetConnected(false)

	var err error

	if conn != nil {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, errors.Wrapf(closeErr, "close connection failed. id=%d", conn.ID()))
		}
	}

	if prev != phaseRunning {
		log.Infof("[sink.ConnectionManager] terminated")
		return err
	}

	if closeErr := m.listener.Close(); closeErr != nil {
		err = errors.Join(err, errors.Wrap(closeErr, "close listener failed"))
	}

	m.cancel()

	done := make(chan error, 1)

	go func() {
		done <- m.group.Wait()
	}()

	select {
	case waitErr := <-done:
		if waitErr != nil {
			err = errors.Join(err, waitErr)
		}
	case <-ctx.Done():
		err = errors.Join(err, errors.Wrap(ctx.Err(), "wait accept task failed"))
	}

	log.Infof("[sink.ConnectionManager] terminated")

	return err
}

func (m *ConnectionManager) terminal() bool {
	p := m.phase.Load()
	return p == phaseNotReady || p == phaseTerminated
}

func (m *ConnectionManager) Ready() bool {
	return m.ready.Load()
}

func (m *ConnectionManager) Connected() bool {
	return m.connected.Load()
}

func (m *ConnectionManager) State() State {
	switch m.phase.Load() {
	case phaseNotReady:
		return StateNotReady
	case phaseTerminated:
		return StateTerminated
	case phaseRunning:
		if m.connected.Load() {
			return StateConnected
		}

		return StateReady
	default:
		return StateUninitialized
	}
}

// AcceptsArmed is the number of accepts armed since Initialize.
func (m *ConnectionManager) AcceptsArmed() int64 {
	return m.armed.Load()
}

// Endpoint returns the URL consumers connect to.
func (m *ConnectionManager) Endpoint() (string, error) {
	if !m.ready.Load() {
		return "", ErrTerminal
	}

	return m.listener.Endpoint()
}
