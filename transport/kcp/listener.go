// Package kcp publishes the sink over KCP, a reliable protocol on top of UDP
// with forward error correction, for lossy links between scanner and
// consumer.
package kcp

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/internal/hostport"
	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/go-pantheon/fabrica-util/errors"
	kcpgo "github.com/xtaci/kcp-go/v5"
)

var _ transport.Listener = (*Listener)(nil)

type Listener struct {
	bind         string
	conf         conf.KCP
	writeTimeout time.Duration
	listener     *kcpgo.Listener
	ids          *transport.IDGenerator
}

func NewListener(bind string, c conf.KCP, writeTimeout time.Duration) *Listener {
	return &Listener{
		bind:         bind,
		conf:         c,
		writeTimeout: writeTimeout,
		ids:          transport.NewIDGenerator(transport.NetTypeKCP),
	}
}

func (l *Listener) Listen(ctx context.Context) error {
	if err := l.conf.Validate(); err != nil {
		return err
	}

	listener, err := kcpgo.ListenWithOptions(l.bind, nil, l.conf.DataShards, l.conf.ParityShards)
	if err != nil {
		return errors.Wrapf(err, "listen failed. bind=%s", l.bind)
	}

	l.listener = listener

	log.Infof("[kcp.Listener] listening on %s", listener.Addr().String())

	return nil
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	if l.listener == nil {
		return nil, transport.ErrNotListening
	}

	if err := l.listener.SetDeadline(time.Time{}); err != nil {
		return nil, errors.Wrap(err, "reset accept deadline failed")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = l.listener.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := l.listener.AcceptKCP()
	if err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrListenerClosed
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, errors.Wrapf(err, "accept failed")
	}

	l.configure(conn)

	return transport.NewNetConn(l.ids.Next(), conn, l.writeTimeout), nil
}

func (l *Listener) configure(conn *kcpgo.UDPSession) {
	conn.SetNoDelay(l.conf.NoDelay[0], l.conf.NoDelay[1], l.conf.NoDelay[2], l.conf.NoDelay[3])
	conn.SetWindowSize(l.conf.WindowSize[0], l.conf.WindowSize[1])
	conn.SetMtu(l.conf.MTU)
	conn.SetACKNoDelay(l.conf.ACKNoDelay)
	conn.SetWriteDelay(l.conf.WriteDelay)
	conn.SetStreamMode(l.conf.StreamMode)
}

func (l *Listener) Close() error {
	if l.listener == nil {
		return nil
	}

	if err := l.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close kcp listener failed")
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

	return "kcp://" + addr, nil
}
