// Package dispatch implements the command dispatcher: it takes a decoded
// command plus arguments, enforces per-role legality, drives the key-value
// store, and, on a Primary, fans mutating commands out to every attached
// replica before replying.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"redisd/internal/clock"
	"redisd/internal/command"
	"redisd/internal/logging"
	"redisd/internal/metrics"
	"redisd/internal/replication"
	"redisd/internal/resp"
	"redisd/internal/role"
	"redisd/internal/store"
)

// Dispatcher routes one decoded command at a time against a store and a
// role. A single Dispatcher is shared by every connection task; all shared
// state it touches (the store, a Primary's replica registry) is internally
// synchronized.
type Dispatcher struct {
	store *store.Store
	clock clock.Clock
	role  role.Role
	log   logging.Logger
	rec   metrics.Recorder
}

// New builds a Dispatcher. rec may be metrics.Nop{} when observability is
// disabled.
func New(st *store.Store, clk clock.Clock, r role.Role, log logging.Logger, rec metrics.Recorder) *Dispatcher {
	return &Dispatcher{store: st, clock: clk, role: r, log: log, rec: rec}
}

// Handle processes one command from a client-facing connection and returns
// the bytes to write back, or nil when shouldReply is false (the
// replica-ingestion case routes through Dispatch instead, never Handle).
// conn is only consulted by PSYNC, which writes its FULLRESYNC reply and
// snapshot through it directly before enrolling the peer as a replica;
// every other opcode ignores it and replies via the returned bytes.
func (d *Dispatcher) Handle(cmd command.Command, args []string, peerAddr string, conn role.Link, shouldReply bool) []byte {
	d.rec.CommandDispatched(cmd.String())

	reply, enrol := d.apply(cmd, args, peerAddr, conn)
	if enrol != nil {
		enrol()
	}
	if !shouldReply {
		return nil
	}
	return reply
}

// Dispatch applies cmd silently, the shape internal/replication.Dispatcher
// requires for ingesting commands streamed from a primary. It never enrols
// a replica; PSYNC and REPLCONF are protocol errors in this direction and
// the reply is simply discarded.
func (d *Dispatcher) Dispatch(cmd command.Command, args []string) {
	d.rec.CommandDispatched(cmd.String())
	d.apply(cmd, args, "", nil)
}

// apply returns the reply bytes and, for PSYNC, a deferred closure that
// sends the snapshot and enrols the peer (keeps the happy path linear to
// read).
func (d *Dispatcher) apply(cmd command.Command, args []string, peerAddr string, conn role.Link) (reply []byte, enrol func()) {
	switch cmd {
	case command.PING:
		return resp.Encode(resp.SimpleString("PONG")), nil

	case command.ECHO:
		return d.handleEcho(args), nil

	case command.GET:
		return d.handleGet(args), nil

	case command.SET:
		return d.handleSet(args), nil

	case command.TYPE:
		return d.handleType(args), nil

	case command.XADD:
		return d.handleXadd(args), nil

	case command.INFO:
		return d.handleInfo(args), nil

	case command.REPLCONF:
		return d.handleReplconf(args)

	case command.PSYNC:
		return d.handlePsync(args, peerAddr, conn)

	default:
		return resp.EncodeError(fmt.Sprintf("ERR unknown command %q", cmd)), nil
	}
}

func (d *Dispatcher) handleEcho(args []string) []byte {
	if len(args) == 0 {
		return resp.EncodeError("ERR wrong number of arguments for 'echo' command")
	}
	if len(args) == 1 {
		return resp.Encode(resp.BulkString(args[0]))
	}
	return resp.Encode(resp.BuildBulkStringArray(args...))
}

func (d *Dispatcher) handleGet(args []string) []byte {
	if len(args) != 1 {
		return resp.EncodeError("ERR wrong number of arguments for 'get' command")
	}
	v, ok := d.store.Get(args[0])
	if !ok {
		return resp.EncodeNullBulkString()
	}
	return resp.Encode(resp.BulkString(v.Str))
}

func (d *Dispatcher) handleSet(args []string) []byte {
	if len(args) < 2 {
		return resp.EncodeError("ERR wrong number of arguments for 'set' command")
	}
	key, value := args[0], args[1]

	var expiryMS *int64
	if len(args) >= 3 && strings.EqualFold(args[2], "PX") {
		if len(args) < 4 {
			return resp.EncodeError("ERR syntax error")
		}
		ms, err := cast.ToInt64E(args[3])
		if err != nil {
			d.log.Warnw("malformed PX argument", "value", args[3], "err", err)
			return resp.EncodeError("ERR value is not an integer or out of range")
		}
		expiryMS = &ms
	}

	// Fan out before the local mutation: replicas may run slightly ahead
	// in-flight but are never behind once the +OK is written.
	if primary, ok := d.role.(*role.Primary); ok {
		frame := resp.Encode(resp.BuildBulkStringArray("SET", key, value))
		before := primary.Replicas.Len()
		if err := replication.Propagate(primary.Replicas, frame); err != nil {
			d.rec.FanOutFailure()
			for i := primary.Replicas.Len(); i < before; i++ {
				d.rec.ReplicaDetached()
			}
			d.log.Warnw("fan-out to replica failed", "err", err)
		}
	}

	d.store.Set(key, store.String(value), expiryMS)

	return resp.Encode(resp.SimpleString("OK"))
}

func (d *Dispatcher) handleType(args []string) []byte {
	if len(args) != 1 {
		return resp.EncodeError("ERR wrong number of arguments for 'type' command")
	}
	return resp.Encode(resp.SimpleString(d.store.TypeName(args[0])))
}

func (d *Dispatcher) handleXadd(args []string) []byte {
	if len(args) < 4 || len(args)%2 != 0 {
		return resp.EncodeError("ERR wrong number of arguments for 'xadd' command")
	}
	key, id := args[0], args[1]
	entries := args[2:]
	d.store.Set(key, store.StreamValue(store.NewStream(key, id, entries)), nil)
	return resp.Encode(resp.BulkString(id))
}

func (d *Dispatcher) handleInfo(_ []string) []byte {
	switch r := d.role.(type) {
	case *role.Primary:
		body := fmt.Sprintf("role:master\nmaster_replid:%s\nmaster_repl_offset:%d", r.ReplID, r.Offset())
		return resp.Encode(resp.BulkString(body))
	case *role.Replica:
		return resp.Encode(resp.BulkString("role:slave"))
	default:
		return resp.EncodeError("ERR role not yet established")
	}
}

func (d *Dispatcher) handleReplconf(_ []string) (reply []byte, enrol func()) {
	if _, ok := d.role.(*role.Primary); !ok {
		return resp.EncodeError("ERR REPLCONF is not valid on a replica"), nil
	}
	return resp.Encode(resp.SimpleString("OK")), nil
}

func (d *Dispatcher) handlePsync(args []string, peerAddr string, conn role.Link) (reply []byte, enrol func()) {
	primary, ok := d.role.(*role.Primary)
	if !ok {
		return resp.EncodeError("ERR PSYNC is not valid on a replica"), nil
	}
	if len(args) != 2 {
		return resp.EncodeError("ERR wrong number of arguments for 'psync' command"), nil
	}

	full := resp.Encode(resp.SimpleString(fmt.Sprintf("FULLRESYNC %s %d", primary.ReplID, primary.Offset())))
	full = append(full, resp.Encode(resp.RdbBlob(replication.EmptyRDB))...)

	if conn == nil || peerAddr == "" {
		return full, nil
	}
	// The snapshot must hit the wire before the peer is enrolled, so no
	// fan-out write can ever precede the FULLRESYNC bytes on this socket.
	return nil, func() {
		if _, err := conn.Write(full); err != nil {
			d.log.Warnw("failed to send FULLRESYNC snapshot", "peer", peerAddr, "err", err)
			return
		}
		primary.Replicas.Add(peerAddr, conn)
		d.rec.ReplicaAttached()
		d.log.Infow("replica attached", "peer", peerAddr)
	}
}
