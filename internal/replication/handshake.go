package replication

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"redisd/internal/resp"
	"redisd/internal/role"
	"redisd/internal/transport"
)

// ErrHandshake is the sentinel wrapped around handshake failures caused by
// the primary's reply content (an unexpected reply, a malformed FULLRESYNC
// line or RDB header); dial and I/O failures are wrapped around the
// underlying error instead. Handshake failures are fatal to the replica role.
var ErrHandshake = errors.New("replication: handshake failed")

// Handshake performs the replica-initiated handshake against primaryAddr:
// PING, REPLCONF listening-port, REPLCONF capa psync2, PSYNC, then reads
// the FULLRESYNC reply and the RDB bulk payload that follows it. On success
// it returns a fully populated role.Replica; there is no partially-built
// Replica value observable by the rest of the program.
func Handshake(ctx context.Context, provider transport.Provider, primaryAddr string, listeningPort uint16, dialTimeout time.Duration) (*role.Replica, error) {
	conn, err := provider.Dial(ctx, primaryAddr, dialTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "replication: dial primary")
	}
	r := bufio.NewReader(conn)

	if err := handshakeStep(conn, r, resp.BuildBulkStringArray("PING"), "PONG"); err != nil {
		conn.Close()
		return nil, err
	}
	port := strconv.Itoa(int(listeningPort))
	if err := handshakeStep(conn, r, resp.BuildBulkStringArray("REPLCONF", "listening-port", port), "OK"); err != nil {
		conn.Close()
		return nil, err
	}
	if err := handshakeStep(conn, r, resp.BuildBulkStringArray("REPLCONF", "capa", "psync2"), "OK"); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := conn.Write(resp.Encode(resp.BuildBulkStringArray("PSYNC", "?", "-1"))); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "replication: send PSYNC")
	}
	line, err := readLine(r)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "replication: read FULLRESYNC reply")
	}
	replID, offset, err := parseFullResync(line)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := readRDB(r); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "replication: read RDB payload")
	}

	return &role.Replica{
		PrimaryAddr: primaryAddr,
		Send:        conn,
		Recv:        r,
		MasterID:    replID,
		Offset:      offset,
	}, nil
}

func handshakeStep(conn net.Conn, r *bufio.Reader, payload resp.Payload, wantPrefix string) error {
	if _, err := conn.Write(resp.Encode(payload)); err != nil {
		return errors.Wrapf(err, "replication: send %s", payload)
	}
	line, err := readLine(r)
	if err != nil {
		return errors.Wrapf(err, "replication: read reply to %s", payload)
	}
	if !strings.HasPrefix(line, "+"+wantPrefix) {
		return errors.Wrapf(ErrHandshake, "unexpected reply %q to %s, wanted +%s", line, payload, wantPrefix)
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseFullResync(line string) (replID string, offset int64, err error) {
	trimmed := strings.TrimPrefix(line, "+")
	parts := strings.Fields(trimmed)
	if len(parts) != 3 || parts[0] != "FULLRESYNC" {
		return "", 0, errors.Wrapf(ErrHandshake, "malformed FULLRESYNC reply %q", line)
	}
	offset, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, errors.Wrapf(ErrHandshake, "malformed FULLRESYNC offset in %q", line)
	}
	return parts[1], offset, nil
}

func readRDB(r *bufio.Reader) ([]byte, error) {
	header, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(header, "$") {
		return nil, errors.Wrapf(ErrHandshake, "malformed RDB length header %q", header)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(header, "$"))
	if err != nil || n < 0 {
		return nil, errors.Wrapf(ErrHandshake, "malformed RDB length header %q", header)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
