package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeDialAccept(t *testing.T) {
	p := NewPipe()
	l, err := p.Listen(context.Background(), "127.0.0.1:6379")
	require.NoError(t, err)
	defer l.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := l.Accept()
		require.NoError(t, err)
		buf := make([]byte, 5)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
	}()

	client, err := p.Dial(context.Background(), "127.0.0.1:6379", time.Second)
	require.NoError(t, err)
	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case <-serverDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server goroutine")
	}
}

func TestPipeDialNoListener(t *testing.T) {
	p := NewPipe()
	_, err := p.Dial(context.Background(), "127.0.0.1:1", time.Second)
	assert.Error(t, err)
}

func TestPipeListenTwiceSameAddr(t *testing.T) {
	p := NewPipe()
	_, err := p.Listen(context.Background(), "127.0.0.1:6379")
	require.NoError(t, err)
	_, err = p.Listen(context.Background(), "127.0.0.1:6379")
	assert.Error(t, err)
}

func TestPipeDialAfterClose(t *testing.T) {
	p := NewPipe()
	l, err := p.Listen(context.Background(), "127.0.0.1:6379")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = p.Dial(context.Background(), "127.0.0.1:6379", time.Second)
	assert.Error(t, err)
}

func TestPipeConnsHaveDistinctPeerAddrs(t *testing.T) {
	p := NewPipe()
	l, err := p.Listen(context.Background(), "127.0.0.1:6379")
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan string, 2)
	go func() {
		for i := 0; i < 2; i++ {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			accepted <- conn.RemoteAddr().String()
		}
	}()

	c1, err := p.Dial(context.Background(), "127.0.0.1:6379", time.Second)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := p.Dial(context.Background(), "127.0.0.1:6379", time.Second)
	require.NoError(t, err)
	defer c2.Close()

	a := <-accepted
	b := <-accepted
	assert.NotEqual(t, a, b)
}

func TestPipeDialTimeout(t *testing.T) {
	p := NewPipe()
	_, err := p.Listen(context.Background(), "127.0.0.1:6379")
	require.NoError(t, err)

	_, err = p.Dial(context.Background(), "127.0.0.1:6379", 20*time.Millisecond)
	assert.Error(t, err)
}
