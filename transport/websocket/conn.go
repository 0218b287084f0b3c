package websocket

import (
	"sync"
	"time"

	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

var _ transport.Conn = (*Conn)(nil)

// Conn sends every packed message as one binary frame. gorilla/websocket
// allows a single concurrent writer, so data frames are written under mu.
type Conn struct {
	id           uint64
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func newConn(id uint64, conn *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ID() uint64 {
	return c.id
}

func (c *Conn) Send(pack []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, errors.Wrap(err, "set write deadline failed")
		}
	}

	w, err := c.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return 0, errors.Wrapf(err, "next writer failed. id=%d", c.id)
	}

	n, err = w.Write(pack)
	if closeErr := w.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if err != nil {
		return 0, errors.Wrapf(err, "write failed. id=%d len=%d", c.id, len(pack))
	}

	return n, nil
}

// Close sends a normal closure frame and drops the connection. WriteControl
// may run alongside a pending Send.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "sink closed")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))

	return c.conn.Close()
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}
