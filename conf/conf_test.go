package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	assert.Equal(t, 18944, c.Sink.Port)
	assert.Equal(t, "IGTL", c.Sink.StreamName)
	assert.Equal(t, NetworkTCP, c.Sink.Network)
	require.NoError(t, c.Validate())
}

func TestValidatePort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port    int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{18944, false},
		{65535, false},
		{65536, true},
		{-1, true},
	}

	for _, tt := range tests {
		err := ValidatePort(tt.port)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidPort, "port=%d", tt.port)
		} else {
			assert.NoError(t, err, "port=%d", tt.port)
		}
	}
}

func TestValidateNetwork(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Sink.Network = "udp"
	require.ErrorIs(t, c.Validate(), ErrInvalidNetwork)

	c = Default()
	c.Sink.Network = NetworkKCP
	c.KCP.MTU = 100
	require.Error(t, c.Validate())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sink.yaml")
	data := []byte(`
sink:
  port: 20000
  stream_name: US
  network: ws
  write_timeout: 500ms
websocket:
  path: /stream
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20000, c.Sink.Port)
	assert.Equal(t, "US", c.Sink.StreamName)
	assert.Equal(t, NetworkWebSocket, c.Sink.Network)
	assert.Equal(t, 500*time.Millisecond, c.Sink.WriteTimeout.Std())
	assert.Equal(t, "/stream", c.WebSocket.Path)
	// untouched values keep their defaults
	assert.True(t, c.TCP.KeepAlive)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sink.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sink":{"port":70000}}`), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidPort)
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"2s"`)))
	assert.Equal(t, 2*time.Second, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Std())

	require.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}
