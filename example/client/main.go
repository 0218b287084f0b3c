package main

import (
	"context"
	"flag"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/igtl"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	"github.com/gorilla/websocket"
	kcpgo "github.com/xtaci/kcp-go/v5"
	"golang.org/x/sync/errgroup"
)

const maxBodySize = 64 << 20

var (
	network = flag.String("network", conf.NetworkTCP, "tcp, ws or kcp")
	addr    = flag.String("addr", "127.0.0.1:18944", "sink address")
	path    = flag.String("path", "/igtl", "websocket path")
	limit   = flag.Int("n", 0, "stop after n messages, 0 reads forever")
)

// source yields one packed message per call.
type source interface {
	Next() ([]byte, error)
	Close() error
}

func main() {
	flag.Parse()

	src, err := dial(*network, *addr)
	if err != nil {
		log.Errorf("dial failed. %+v", err)
		return
	}

	log.Infof("connected to %s://%s", *network, *addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()
		return src.Close()
	})

	eg.Go(func() error {
		defer cancel()

		for i := 0; *limit == 0 || i < *limit; i++ {
			pack, err := src.Next()
			if err != nil {
				return err
			}

			if err := show(pack); err != nil {
				return err
			}
		}

		return nil
	})

	c := make(chan os.Signal, 1)

	eg.Go(func() error {
		signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

		select {
		case <-c:
			return xsync.ErrSignalStop
		case <-ctx.Done():
			return nil
		}
	})

	if err := eg.Wait(); err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, xsync.ErrSignalStop) &&
		!errors.Is(err, net.ErrClosed) {
		log.Errorf("client stopped with error. %+v", err)
	} else {
		log.Infof("client stopped")
	}
}

func dial(network, addr string) (source, error) {
	switch network {
	case conf.NetworkWebSocket:
		conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+*path, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "websocket dial failed. addr=%s", addr)
		}

		return &wsSource{conn: conn}, nil
	case conf.NetworkKCP:
		c := conf.Default().KCP

		conn, err := kcpgo.DialWithOptions(addr, nil, c.DataShards, c.ParityShards)
		if err != nil {
			return nil, errors.Wrapf(err, "kcp dial failed. addr=%s", addr)
		}

		conn.SetNoDelay(c.NoDelay[0], c.NoDelay[1], c.NoDelay[2], c.NoDelay[3])
		conn.SetWindowSize(c.WindowSize[0], c.WindowSize[1])
		conn.SetMtu(c.MTU)

		// the listener only learns about a session from its first packet
		if _, err := conn.Write([]byte{0}); err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "kcp hello failed")
		}

		return &streamSource{conn: conn}, nil
	default:
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "tcp dial failed. addr=%s", addr)
		}

		return &streamSource{conn: conn}, nil
	}
}

type streamSource struct {
	conn net.Conn
}

func (s *streamSource) Next() ([]byte, error) {
	head := make([]byte, igtl.HeaderSize)
	if _, err := io.ReadFull(s.conn, head); err != nil {
		return nil, errors.Wrap(err, "read header failed")
	}

	h, err := igtl.UnpackHeader(head)
	if err != nil {
		return nil, err
	}

	if h.BodySize > maxBodySize {
		return nil, errors.Errorf("body too large. type=%s size=%d", h.Type, h.BodySize)
	}

	pack := make([]byte, igtl.HeaderSize+int(h.BodySize))
	copy(pack, head)

	if _, err := io.ReadFull(s.conn, pack[igtl.HeaderSize:]); err != nil {
		return nil, errors.Wrapf(err, "read %s body failed", h.Type)
	}

	return pack, nil
}

func (s *streamSource) Close() error {
	return s.conn.Close()
}

type wsSource struct {
	conn *websocket.Conn
}

func (s *wsSource) Next() ([]byte, error) {
	_, pack, err := s.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "read message failed")
	}

	return pack, nil
}

func (s *wsSource) Close() error {
	return s.conn.Close()
}

func show(pack []byte) error {
	h, err := igtl.UnpackHeader(pack)
	if err != nil {
		return err
	}

	body := pack[igtl.HeaderSize:]
	if err := h.Verify(body); err != nil {
		return errors.WithMessagef(err, "type=%s device=%s", h.Type, h.DeviceName)
	}

	switch h.Type {
	case igtl.TypeImage:
		img, err := igtl.UnpackImage(body)
		if err != nil {
			return err
		}

		log.Infof("[recv] %s device=%s ts=%.3f dims=%v spacing=%.2f scalar=%d bytes=%d",
			h.Type, h.DeviceName, h.Timestamp.Seconds(), img.Dimensions, img.Spacing[0], img.ScalarType, len(img.Payload))
	case igtl.TypeTrackingData:
		msg, err := igtl.UnpackTrackingData(body)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(msg.Elements))
		for _, e := range msg.Elements {
			names = append(names, e.Name)
		}

		log.Infof("[recv] %s device=%s ts=%.3f elements=%v", h.Type, h.DeviceName, h.Timestamp.Seconds(), names)
	default:
		log.Infof("[recv] %s device=%s ts=%.3f body=%d", h.Type, h.DeviceName, h.Timestamp.Seconds(), h.BodySize)
	}

	return nil
}
