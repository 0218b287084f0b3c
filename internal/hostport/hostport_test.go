package hostport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalIP(t *testing.T) {
	t.Parallel()

	ip := InternalIP()
	if ip == "" {
		t.Log("no internal ip on this machine")
		return
	}

	parsed := net.ParseIP(ip)
	require.NotNil(t, parsed)
	assert.NotNil(t, parsed.To4())
	assert.True(t, isPrivateIP(ip))
}

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		hostPort string
		want     string
		wantErr  error
	}{
		{name: "invalid", hostPort: "invalid", wantErr: ErrInvalidHostPort},
		{name: "specific ip", hostPort: "192.168.1.1:18944", want: "192.168.1.1:18944"},
		{name: "loopback", hostPort: "127.0.0.1:0", want: "127.0.0.1:0"},
		{name: "hostname", hostPort: "scanner.local:18944", want: "scanner.local:18944"},
		{name: "ipv4 wildcard", hostPort: "0.0.0.0:18944"},
		{name: "ipv6 wildcard", hostPort: "[::]:18944"},
		{name: "empty host", hostPort: ":18944"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Extract(tt.hostPort)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)

			if tt.want != "" {
				assert.Equal(t, tt.want, got)
				return
			}

			host, port, err := net.SplitHostPort(got)
			require.NoError(t, err)
			assert.Equal(t, "18944", port)
			assert.False(t, net.ParseIP(host).IsUnspecified())
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"invalid", "invalid-ip", false},
		{"empty", "", false},
		{"loopback ipv4", "127.0.0.1", false},
		{"public ipv4", "8.8.8.8", false},
		{"private 10/8", "10.0.0.1", true},
		{"private 172.16/12 low", "172.16.0.1", true},
		{"private 172.16/12 high", "172.31.255.255", true},
		{"private 192.168/16", "192.168.1.1", true},
		{"below 172.16/12", "172.15.0.1", false},
		{"above 172.16/12", "172.32.0.1", false},
		{"loopback ipv6", "::1", false},
		{"private ipv6", "fc00::1", true},
		{"documentation ipv6", "2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, isPrivateIP(tt.addr))
		})
	}
}
