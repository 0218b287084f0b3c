// Package health serves the liveness, metrics and api description
// endpoints next to the sink.
package health

import (
	httpgo "net/http"

	"github.com/go-kratos/kratos/v2/encoding"
	"github.com/go-kratos/kratos/v2/encoding/json"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/go-kratos/swagger-api/openapiv2"
	"github.com/go-pantheon/fabrica-igtl/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the part of the sink the health endpoint reports on.
type Status interface {
	State() sink.State
	Ready() bool
	Connected() bool
	Running() bool
}

var _ Status = (*sink.OutputSink)(nil)

// Report is the body of /health.
type Report struct {
	State     string `json:"state"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
}

type Server struct {
	*http.Server
}

// NewServer exposes /health for st and /metrics for g. A nil g serves the
// default prometheus registry.
func NewServer(addr string, st Status, g prometheus.Gatherer) *Server {
	s := http.NewServer(http.Address(addr))

	metrics := promhttp.Handler()
	if g != nil {
		metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}

	s.HandlePrefix("/q/", openapiv2.NewHandler())
	s.Handle("/metrics", metrics)
	s.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, st)
	})

	return &Server{s}
}

// writeReport answers 200 while the sink listens and 503 otherwise.
func writeReport(w httpgo.ResponseWriter, st Status) {
	rep := Report{
		State:     st.State().String(),
		Ready:     st.Ready(),
		Connected: st.Connected(),
		Running:   st.Running(),
	}

	body, err := encoding.GetCodec(json.Name).Marshal(rep)
	if err != nil {
		log.Errorf("[health.Server] marshal report failed: %+v", err)
		w.WriteHeader(httpgo.StatusInternalServerError)

		return
	}

	code := httpgo.StatusOK
	if !rep.Ready {
		code = httpgo.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_, _ = w.Write(body)
}
