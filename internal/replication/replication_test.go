package replication

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisd/internal/command"
	"redisd/internal/role"
	"redisd/internal/transport"
)

func TestEmptyRDBIsEightyEightBytes(t *testing.T) {
	assert.Len(t, EmptyRDB, 88)
	assert.Equal(t, "REDIS0011", string(EmptyRDB[:9]))
}

type recordingDispatcher struct {
	calls []call
}

type call struct {
	cmd  command.Command
	args []string
}

func (d *recordingDispatcher) Dispatch(cmd command.Command, args []string) {
	d.calls = append(d.calls, call{cmd: cmd, args: args})
}

func serveHandshake(t *testing.T, conn interface {
	Write([]byte) (int, error)
	Read([]byte) (int, error)
}) {
	r := bufio.NewReader(conn)
	// Each handshake command arrives as a multi-line RESP array; read lines
	// until the one carrying the token we're waiting for shows up.
	expect := func(want string) {
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			if strings.Contains(line, want) {
				return
			}
		}
	}
	reply := func(s string) {
		_, err := conn.Write([]byte(s))
		require.NoError(t, err)
	}

	expect("PING")
	reply("+PONG\r\n")
	expect("listening-port")
	reply("+OK\r\n")
	expect("capa")
	reply("+OK\r\n")
	expect("PSYNC")
	reply("+FULLRESYNC abc123 0\r\n")
	reply(fmt.Sprintf("$%d\r\n", len(EmptyRDB)))
	_, err := conn.Write(EmptyRDB)
	require.NoError(t, err)
}

func TestHandshakeSucceeds(t *testing.T) {
	pipe := transport.NewPipe()
	l, err := pipe.Listen(context.Background(), "primary:replhandshake")
	require.NoError(t, err)
	defer l.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		serveHandshake(t, conn)
		serverErr <- nil
	}()

	rep, err := Handshake(context.Background(), pipe, "primary:replhandshake", 6380, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc123", rep.MasterID)
	assert.Equal(t, int64(0), rep.Offset)
	assert.Equal(t, "primary:replhandshake", rep.PrimaryAddr)

	require.NoError(t, <-serverErr)
}

func TestHandshakeRejectsBadReply(t *testing.T) {
	pipe := transport.NewPipe()
	l, err := pipe.Listen(context.Background(), "primary:badreply")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		r := bufio.NewReader(conn)
		r.ReadString('\n')
		conn.Write([]byte("-ERR nope\r\n"))
	}()

	_, err = Handshake(context.Background(), pipe, "primary:badreply", 6380, time.Second)
	assert.Error(t, err)
}

func TestPropagateFanOut(t *testing.T) {
	replicas := role.NewReplicas()
	a := &fakeLink{}
	b := &fakeLink{}
	replicas.Add("replica-a", a)
	replicas.Add("replica-b", b)

	frame := []byte("*1\r\n$4\r\nPING\r\n")
	err := Propagate(replicas, frame)
	require.NoError(t, err)
	assert.Equal(t, frame, a.written)
	assert.Equal(t, frame, b.written)
}

func TestPropagateDropsFailedReplica(t *testing.T) {
	replicas := role.NewReplicas()
	ok := &fakeLink{}
	bad := &fakeLink{failWith: assertError("boom")}
	replicas.Add("ok", ok)
	replicas.Add("bad", bad)

	err := Propagate(replicas, []byte("x"))
	assert.Error(t, err)
	assert.Equal(t, 1, replicas.Len())
}

func TestPropagateNoReplicasIsNoop(t *testing.T) {
	replicas := role.NewReplicas()
	assert.NoError(t, Propagate(replicas, []byte("x")))
}

type fakeLink struct {
	written  []byte
	failWith error
}

func (f *fakeLink) Write(p []byte) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeLink) Close() error { return nil }

type assertError string

func (e assertError) Error() string { return string(e) }

func TestIngestDispatchesStreamedCommands(t *testing.T) {
	r, w := net.Pipe()
	disp := &recordingDispatcher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Ingest(ctx, r, disp)
	}()

	w.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	time.Sleep(20 * time.Millisecond)
	cancel()
	w.Close()
	<-done

	require.Len(t, disp.calls, 1)
	assert.Equal(t, command.SET, disp.calls[0].cmd)
	assert.Equal(t, []string{"foo", "bar"}, disp.calls[0].args)
}

func TestIngestHandlesPipelinedCommandsInOneWrite(t *testing.T) {
	r, w := net.Pipe()
	disp := &recordingDispatcher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Ingest(ctx, r, disp)
	}()

	// Two concatenated SETs in a single write, as a primary's fan-out may
	// batch them on the wire.
	w.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$1\r\n2\r\n"))
	time.Sleep(20 * time.Millisecond)
	cancel()
	w.Close()
	<-done

	require.Len(t, disp.calls, 2)
	assert.Equal(t, []string{"a", "1"}, disp.calls[0].args)
	assert.Equal(t, []string{"b", "2"}, disp.calls[1].args)
}
