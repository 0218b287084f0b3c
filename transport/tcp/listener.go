// Package tcp is the default sink transport: one TCP connection per consumer.
package tcp

import (
	"context"
	"net"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/internal/hostport"
	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/go-pantheon/fabrica-util/errors"
)

var _ transport.Listener = (*Listener)(nil)

type Listener struct {
	bind         string
	conf         conf.TCP
	writeTimeout time.Duration
	listener     *net.TCPListener
	ids          *transport.IDGenerator
}

func NewListener(bind string, conf conf.TCP, writeTimeout time.Duration) *Listener {
	return &Listener{
		bind:         bind,
		conf:         conf,
		writeTimeout: writeTimeout,
		ids:          transport.NewIDGenerator(transport.NetTypeTCP),
	}
}

func (l *Listener) Listen(ctx context.Context) error {
	addr, err := net.ResolveTCPAddr("tcp", l.bind)
	if err != nil {
		return errors.Wrapf(err, "resolve bind failed. bind=%s", l.bind)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen failed. addr=%s", addr.String())
	}

	l.listener = listener

	log.Infof("[tcp.Listener] listening on %s", listener.Addr().String())

	return nil
}

func (l *Listener) Accept(ctx context.Context) (c transport.Conn, err error) {
	if l.listener == nil {
		return nil, transport.ErrNotListening
	}

	if err := l.listener.SetDeadline(time.Time{}); err != nil {
		return nil, errors.Wrap(err, "reset accept deadline failed")
	}

	// a done ctx expires the pending accept
	stop := context.AfterFunc(ctx, func() {
		_ = l.listener.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := l.listener.AcceptTCP()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrListenerClosed
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, errors.Wrapf(err, "accept failed")
	}

	defer func() {
		if err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				err = errors.Join(err, errors.Wrapf(closeErr, "close tcp connection failed"))
			}
		}
	}()

	if err := l.configure(conn); err != nil {
		return nil, errors.Wrapf(err, "configure connection failed")
	}

	return transport.NewNetConn(l.ids.Next(), conn, l.writeTimeout), nil
}

func (l *Listener) configure(conn *net.TCPConn) error {
	if err := conn.SetKeepAlive(l.conf.KeepAlive); err != nil {
		return errors.Wrapf(err, "SetKeepAlive failed v=%v", l.conf.KeepAlive)
	}

	if err := conn.SetNoDelay(l.conf.NoDelay); err != nil {
		return errors.Wrapf(err, "SetNoDelay failed v=%v", l.conf.NoDelay)
	}

	if l.conf.WriteBufSize > 0 {
		if err := conn.SetWriteBuffer(l.conf.WriteBufSize); err != nil {
			return errors.Wrapf(err, "SetWriteBuffer failed v=%d", l.conf.WriteBufSize)
		}
	}

	return nil
}

func (l *Listener) Close() error {
	if l.listener == nil {
		return nil
	}

	if err := l.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close tcp listener failed")
	}

	return nil
}

func (l *Listener) Endpoint() (string, error) {
	if l.listener == nil {
		return "", transport.ErrNotListening
	}

	addr, err := hostport.Extract(l.listener.Addr().String())
	if err != nil {
		return "", err
	}

	return "tcp://" + addr, nil
}
