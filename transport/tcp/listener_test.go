package tcp

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()

	l := NewListener("127.0.0.1:0", conf.Default().TCP, time.Second)
	require.NoError(t, l.Listen(context.Background()))

	t.Cleanup(func() {
		_ = l.Close()
	})

	return l
}

func TestListenerAcceptAndSend(t *testing.T) {
	t.Parallel()

	l := newTestListener(t)

	endpoint, err := l.Endpoint()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(endpoint, "tcp://"))

	client, err := net.Dial("tcp", strings.TrimPrefix(endpoint, "tcp://"))
	require.NoError(t, err)

	defer client.Close()

	conn, err := l.Accept(context.Background())
	require.NoError(t, err)

	defer conn.Close()

	n, err := conn.Send([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	assert.NotEmpty(t, conn.RemoteAddr())
}

func TestCloseUnblocksAccept(t *testing.T) {
	t.Parallel()

	l := newTestListener(t)

	errCh := make(chan error, 1)

	go func() {
		_, err := l.Accept(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, transport.ErrListenerClosed)
		assert.True(t, transport.IsClosed(err))
	case <-time.After(2 * time.Second):
		t.Fatal("accept not unblocked by close")
	}
}

func TestListenPortInUse(t *testing.T) {
	t.Parallel()

	l := newTestListener(t)

	endpoint, err := l.Endpoint()
	require.NoError(t, err)

	other := NewListener(strings.TrimPrefix(endpoint, "tcp://"), conf.Default().TCP, time.Second)
	require.Error(t, other.Listen(context.Background()))
}

func TestAcceptBeforeListen(t *testing.T) {
	t.Parallel()

	l := NewListener("127.0.0.1:0", conf.Default().TCP, time.Second)

	_, err := l.Accept(context.Background())
	require.ErrorIs(t, err, transport.ErrNotListening)

	_, err = l.Endpoint()
	require.ErrorIs(t, err, transport.ErrNotListening)
	require.NoError(t, l.Close())
}

func TestCancelUnblocksAccept(t *testing.T) {
	t.Parallel()

	l := newTestListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		_, err := l.Accept(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("accept not unblocked by cancel")
	}

	// the listener stays usable after a cancelled accept
	endpoint, err := l.Endpoint()
	require.NoError(t, err)

	client, err := net.Dial("tcp", strings.TrimPrefix(endpoint, "tcp://"))
	require.NoError(t, err)

	defer client.Close()

	conn, err := l.Accept(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}
