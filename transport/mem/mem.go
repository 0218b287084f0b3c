// Package mem is an in-process transport. Sent packs are recorded instead
// of written to a socket, which makes it the transport of choice for tests
// and for running the sink inside another process.
package mem

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrPeerGone     = errors.New("mem peer gone")
	ErrListenFailed = errors.New("mem listen failed")
)

var _ transport.Listener = (*Listener)(nil)

type Listener struct {
	name       string
	listenErr  error
	ids        *transport.IDGenerator
	newCh      chan *Conn
	closeCh    chan struct{}
	closeOnce  sync.Once
	listening  atomic.Bool
	accepts    atomic.Int64
	acceptedCh chan struct{}
}

// NewListener returns a listener named name. listenErr, when not nil, is
// returned by Listen to simulate a bind failure.
func NewListener(name string, listenErr error) *Listener {
	return &Listener{
		name:       name,
		listenErr:  listenErr,
		ids:        transport.NewIDGenerator(transport.NetTypeMem),
		newCh:      make(chan *Conn),
		closeCh:    make(chan struct{}),
		acceptedCh: make(chan struct{}, 64),
	}
}

func (l *Listener) Listen(ctx context.Context) error {
	if l.listenErr != nil {
		return errors.Wrapf(l.listenErr, "listen failed. name=%s", l.name)
	}

	l.listening.Store(true)

	return nil
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	if !l.listening.Load() {
		return nil, transport.ErrNotListening
	}

	l.accepts.Add(1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrListenerClosed
	case c := <-l.newCh:
		select {
		case l.acceptedCh <- struct{}{}:
		default:
		}

		return c, nil
	}
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.listening.Store(false)
		close(l.closeCh)
	})

	return nil
}

func (l *Listener) Endpoint() (string, error) {
	return "mem://" + l.name, nil
}

// Dial hands a new connection to a pending or future Accept. It blocks until
// the connection is accepted, ctx is done or the listener is closed.
func (l *Listener) Dial(ctx context.Context) (*Conn, error) {
	c := &Conn{id: l.ids.Next(), remote: l.name + "-peer"}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrListenerClosed
	case l.newCh <- c:
		return c, nil
	}
}

// AcceptCalls is the number of Accept calls made so far.
func (l *Listener) AcceptCalls() int64 {
	return l.accepts.Load()
}

// Accepted is signalled each time Accept hands out a connection.
func (l *Listener) Accepted() <-chan struct{} {
	return l.acceptedCh
}

var _ transport.Conn = (*Conn)(nil)

type Conn struct {
	id     uint64
	remote string

	mu     sync.Mutex
	packs  [][]byte
	failed bool
	closed bool
}

func (c *Conn) ID() uint64 {
	return c.id
}

// Send records a copy of pack. A failed or closed connection delivers 0 bytes.
func (c *Conn) Send(pack []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failed || c.closed {
		return 0, ErrPeerGone
	}

	c.packs = append(c.packs, append([]byte(nil), pack...))

	return len(pack), nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

func (c *Conn) RemoteAddr() string {
	return c.remote
}

// Fail makes every following Send deliver nothing, as if the peer left.
func (c *Conn) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failed = true
}

// Packs returns the packs sent so far.
func (c *Conn) Packs() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([][]byte(nil), c.packs...)
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
