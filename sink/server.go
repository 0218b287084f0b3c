package sink

import (
	"context"
	"net/url"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	_ transport.Server     = (*Server)(nil)
	_ transport.Endpointer = (*Server)(nil)
)

// Server runs an OutputSink as a kratos transport server. Start initializes
// the sink and marks it running, Stop reverses both.
type Server struct {
	sink *OutputSink
}

func NewServer(s *OutputSink) *Server {
	return &Server{sink: s}
}

func (s *Server) Sink() *OutputSink {
	return s.sink
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.sink.Initialize(ctx); err != nil {
		return err
	}

	s.sink.Start()

	log.Infof("[sink.Server] started. stream=%s", s.sink.Conf().Sink.StreamName)

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.sink.Stop()

	if timeout := s.sink.Conf().Sink.StopTimeout.Std(); timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := s.sink.Teardown(ctx); err != nil {
		return err
	}

	log.Infof("[sink.Server] stopped")

	return nil
}

func (s *Server) Endpoint() (*url.URL, error) {
	endpoint, err := s.sink.Endpoint()
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parse endpoint failed. endpoint=%s", endpoint)
	}

	return u, nil
}
