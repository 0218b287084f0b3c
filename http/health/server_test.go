package health

import (
	stdjson "encoding/json"
	httpgo "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-pantheon/fabrica-igtl/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	state     sink.State
	connected bool
	running   bool
}

func (f fakeStatus) State() sink.State { return f.state }
func (f fakeStatus) Ready() bool       { return f.state == sink.StateReady || f.state == sink.StateConnected }
func (f fakeStatus) Connected() bool   { return f.connected }
func (f fakeStatus) Running() bool     { return f.running }

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		st   fakeStatus
		code int
		want Report
	}{
		{
			name: "connected",
			st:   fakeStatus{state: sink.StateConnected, connected: true, running: true},
			code: httpgo.StatusOK,
			want: Report{State: "connected", Ready: true, Connected: true, Running: true},
		},
		{
			name: "waiting",
			st:   fakeStatus{state: sink.StateReady},
			code: httpgo.StatusOK,
			want: Report{State: "ready", Ready: true},
		},
		{
			name: "not ready",
			st:   fakeStatus{state: sink.StateNotReady, running: true},
			code: httpgo.StatusServiceUnavailable,
			want: Report{State: "not_ready", Running: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer("127.0.0.1:0", tt.st, prometheus.NewRegistry())

			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(httpgo.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)

			var got Report
			require.NoError(t, stdjson.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "igtl_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer("127.0.0.1:0", fakeStatus{}, reg)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(httpgo.MethodGet, "/metrics", nil))

	assert.Equal(t, httpgo.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "igtl_test_total 1")
}
