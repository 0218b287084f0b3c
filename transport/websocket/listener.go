// Package websocket publishes the sink over a websocket endpoint, one binary
// frame per message, for consumers that cannot open raw sockets.
package websocket

import (
	"context"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/internal/hostport"
	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	"github.com/gorilla/websocket"
)

var _ transport.Listener = (*Listener)(nil)

type Listener struct {
	bind         string
	conf         conf.WebSocket
	writeTimeout time.Duration

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	ids       *transport.IDGenerator
	connChan  chan transport.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewListener(bind string, c conf.WebSocket, writeTimeout time.Duration) *Listener {
	return &Listener{
		bind:         bind,
		conf:         c,
		writeTimeout: writeTimeout,
		ids:          transport.NewIDGenerator(transport.NetTypeWebSocket),
		connChan:     make(chan transport.Conn),
		closeCh:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  c.ReadBufSize,
			WriteBufferSize: c.WriteBufSize,
			CheckOrigin: func(r *http.Request) bool {
				if len(c.AllowOrigins) == 0 {
					return true
				}

				return slices.Contains(c.AllowOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

func (l *Listener) path() string {
	if l.conf.Path == "" {
		return "/"
	}

	return l.conf.Path
}

func (l *Listener) Listen(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(l.path(), l.handleWebSocket)

	l.server = &http.Server{
		Addr:              l.bind,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", l.bind)
	if err != nil {
		return errors.Wrapf(err, "listen failed. bind=%s", l.bind)
	}

	l.listener = listener

	xsync.Go("websocket.Listener", func() error {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	log.Infof("[websocket.Listener] listening on %s%s", listener.Addr().String(), l.path())

	return nil
}

// handleWebSocket hands the upgraded connection to a waiting Accept. The sink
// serves a single consumer, so a peer arriving while nobody accepts is
// refused rather than queued.
func (l *Listener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("[websocket.Listener] upgrade failed: %+v", err)
		return
	}

	c := newConn(l.ids.Next(), conn, l.writeTimeout)

	select {
	case l.connChan <- c:
	case <-l.closeCh:
		_ = conn.Close()
	case <-r.Context().Done():
		_ = conn.Close()
	default:
		log.Infof("[websocket.Listener] no pending accept, refusing %s", conn.RemoteAddr())

		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "consumer already connected")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	if l.listener == nil {
		return nil, transport.ErrNotListening
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrListenerClosed
	case c := <-l.connChan:
		return c, nil
	}
}

func (l *Listener) Close() (err error) {
	l.closeOnce.Do(func() {
		close(l.closeCh)

		// Close rather than Shutdown: hijacked websocket connections are not
		// tracked by the server and are closed by their owner.
		if l.server != nil {
			if closeErr := l.server.Close(); closeErr != nil {
				err = errors.Wrap(closeErr, "close websocket server failed")
			}
		}
	})

	return err
}

func (l *Listener) Endpoint() (string, error) {
	if l.listener == nil {
		return "", transport.ErrNotListening
	}

	addr, err := hostport.Extract(l.listener.Addr().String())
	if err != nil {
		return "", err
	}

	return "ws://" + addr + l.path(), nil
}
