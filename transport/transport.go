// Package transport defines the listener and connection contracts the sink
// publishes over, plus the net.Conn based connection shared by the
// concrete transports.
package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	// ErrListenerClosed is returned by Accept once the listener is closed.
	ErrListenerClosed = errors.New("listener closed")
	ErrNotListening   = errors.New("listener is not listening")
)

// Listener accepts consumer connections one at a time.
type Listener interface {
	// Listen binds the listener.
	Listen(ctx context.Context) error

	// Accept blocks until a peer connects, ctx is done or the listener is
	// closed. A closed listener yields ErrListenerClosed.
	Accept(ctx context.Context) (Conn, error)

	// Close stops listening and unblocks a pending Accept.
	Close() error

	// Endpoint returns the URL consumers connect to.
	Endpoint() (string, error)
}

// Conn is one accepted consumer connection.
type Conn interface {
	// ID is unique per listener.
	ID() uint64

	// Send writes one packed message and returns the bytes delivered.
	Send(pack []byte) (int, error)

	Close() error

	RemoteAddr() string
}

// Factory creates a listener bound to port.
type Factory func(port int) Listener

var _ Conn = (*NetConn)(nil)

// NetConn adapts a net.Conn to Conn with a per-send write deadline. Sends
// are serialized so a deadline always belongs to the write that set it.
type NetConn struct {
	id           uint64
	conn         net.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func NewNetConn(id uint64, conn net.Conn, writeTimeout time.Duration) *NetConn {
	return &NetConn{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *NetConn) ID() uint64 {
	return c.id
}

func (c *NetConn) Send(pack []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, errors.Wrap(err, "set write deadline failed")
		}
	}

	n, err := c.conn.Write(pack)
	if err != nil {
		return n, errors.Wrapf(err, "write failed. id=%d len=%d", c.id, len(pack))
	}

	return n, nil
}

func (c *NetConn) Close() error {
	return c.conn.Close()
}

func (c *NetConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}

// IDGenerator hands out connection ids tagged with the network type in the
// low four bits.
type IDGenerator struct {
	counter atomic.Uint64
	netType uint64
}

const (
	NetTypeTCP = iota
	NetTypeWebSocket
	NetTypeKCP
	NetTypeMem
)

func NewIDGenerator(netType int) *IDGenerator {
	return &IDGenerator{netType: uint64(netType)}
}

func (g *IDGenerator) Next() uint64 {
	return g.counter.Add(1)<<4 | g.netType
}

// IsClosed reports whether err means the listener or connection was closed
// locally.
func IsClosed(err error) bool {
	return errors.Is(err, ErrListenerClosed) || errors.Is(err, net.ErrClosed)
}
