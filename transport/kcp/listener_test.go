package kcp

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kcpgo "github.com/xtaci/kcp-go/v5"
)

func TestListenerAcceptAndSend(t *testing.T) {
	t.Parallel()

	c := conf.Default().KCP

	l := NewListener("127.0.0.1:0", c, time.Second)
	require.NoError(t, l.Listen(context.Background()))

	defer l.Close()

	endpoint, err := l.Endpoint()
	require.NoError(t, err)

	client, err := kcpgo.DialWithOptions(strings.TrimPrefix(endpoint, "kcp://"), nil, c.DataShards, c.ParityShards)
	require.NoError(t, err)

	defer client.Close()

	// a kcp session only reaches the listener once the peer sends something
	_, err = client.Write([]byte("hi"))
	require.NoError(t, err)

	conn, err := l.Accept(context.Background())
	require.NoError(t, err)

	defer conn.Close()

	n, err := conn.Send([]byte("igtl"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 4)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "igtl", string(buf))
}

func TestListenRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	c := conf.Default().KCP
	c.MTU = 10

	l := NewListener("127.0.0.1:0", c, time.Second)
	require.Error(t, l.Listen(context.Background()))

	_, err := l.Accept(context.Background())
	require.ErrorIs(t, err, transport.ErrNotListening)
}

func TestCloseUnblocksAccept(t *testing.T) {
	t.Parallel()

	l := NewListener("127.0.0.1:0", conf.Default().KCP, time.Second)
	require.NoError(t, l.Listen(context.Background()))

	errCh := make(chan error, 1)

	go func() {
		_, err := l.Accept(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept not unblocked by close")
	}
}
