// Package server owns the accept-loop chrome around the protocol core:
// building the role from configuration at startup, spawning one task per
// accepted connection, and, on a replica, the long-running primary-socket
// reader task. It contains no RESP or replication logic of its own; it only
// wires the other packages together.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"redisd/internal/clock"
	"redisd/internal/config"
	"redisd/internal/dispatch"
	"redisd/internal/logging"
	"redisd/internal/metrics"
	"redisd/internal/replication"
	"redisd/internal/resp"
	"redisd/internal/role"
	"redisd/internal/store"
	"redisd/internal/transport"
)

const handshakeDialTimeout = 2 * time.Second

// Server wires the core together and runs the accept loop.
type Server struct {
	cfg         config.Core
	provider    transport.Provider
	clock       clock.Clock
	log         logging.Logger
	rec         metrics.Recorder
	metricsAddr string
}

// New builds a Server. rec may be metrics.Nop{} and metricsAddr "" to
// disable observability entirely.
func New(cfg config.Core, provider transport.Provider, clk clock.Clock, log logging.Logger, rec metrics.Recorder, metricsAddr string) *Server {
	return &Server{cfg: cfg, provider: provider, clock: clk, log: log, rec: rec, metricsAddr: metricsAddr}
}

// Run builds the store and role, starts listening, and blocks until ctx is
// cancelled or a fatal error occurs (bind failure or replica handshake
// failure; both exit the process non-zero).
func (s *Server) Run(ctx context.Context) error {
	st := store.New(s.clock)

	r, err := s.buildRole(ctx)
	if err != nil {
		return err
	}

	d := dispatch.New(st, s.clock, r, s.log, s.rec)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(s.cfg.Port)))
	listener, err := s.provider.Listen(ctx, addr)
	if err != nil {
		return errors.Wrap(err, "server: listen")
	}
	defer listener.Close()
	s.log.Infow("listening", "addr", addr, "role", roleName(r))

	if s.metricsAddr != "" {
		go s.serveMetrics()
	}

	if replica, ok := r.(*role.Replica); ok {
		go s.runReplicaIngestion(ctx, replica, d)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "server: accept")
		}
		s.rec.ConnectionAccepted()
		go s.serveConnection(ctx, conn, d, r)
	}
}

func (s *Server) buildRole(ctx context.Context) (role.Role, error) {
	if s.cfg.ReplicaOf == nil {
		return role.NewPrimary(replication.BundledReplicationID), nil
	}

	primaryAddr := s.cfg.ReplicaOf.String()
	rep, err := replication.Handshake(ctx, s.provider, primaryAddr, s.cfg.Port, handshakeDialTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "server: replica handshake")
	}
	s.log.Infow("replica handshake complete", "primary", primaryAddr, "master_id", rep.MasterID)
	return rep, nil
}

func roleName(r role.Role) string {
	switch r.(type) {
	case *role.Primary:
		return "primary"
	case *role.Replica:
		return "replica"
	default:
		return "unknown"
	}
}

// runReplicaIngestion is the long-running task reading propagated commands
// from the primary socket.
func (s *Server) runReplicaIngestion(ctx context.Context, rep *role.Replica, d *dispatch.Dispatcher) {
	if err := replication.Ingest(ctx, rep.Recv, d); err != nil && ctx.Err() == nil {
		s.log.Warnw("replica ingestion ended", "err", err)
	}
}

// serveConnection is the per-connection task: decode, classify, dispatch,
// reply, repeat until the peer disconnects or a protocol error closes the
// connection.
func (s *Server) serveConnection(ctx context.Context, conn net.Conn, d *dispatch.Dispatcher, r role.Role) {
	peerAddr := conn.RemoteAddr().String()
	connLog := s.log.With("peer", peerAddr, "conn_id", uuid.New().String())

	defer func() {
		conn.Close()
		// If this peer had enrolled as a replica via PSYNC, drop it from
		// the fan-out registry now that its connection is gone.
		if primary, ok := r.(*role.Primary); ok {
			if primary.Replicas.Remove(peerAddr) {
				s.rec.ReplicaDetached()
				connLog.Infow("replica detached")
			}
		}
	}()

	var buf []byte
	chunk := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payloads, consumed, decodeErr := resp.DecodeAll(buf)
		buf = buf[consumed:]

		groups := resp.GroupPipeline(payloads)
		for _, g := range groups {
			if !g.HasCmd {
				continue
			}
			args := resp.StringArgs(g.Value)
			// Every command on a client-facing connection gets a reply,
			// including every member of a pipelined batch; only the
			// primary->replica ingestion channel (replication.Ingest)
			// ever dispatches silently.
			reply := d.Handle(g.Command, args, peerAddr, conn, true)
			if reply != nil {
				if _, err := conn.Write(reply); err != nil {
					connLog.Warnw("write failed", "err", err)
					return
				}
			}
		}

		if decodeErr != nil {
			connLog.Warnw("protocol error, closing connection", "err", decodeErr)
			return
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) serveMetrics() {
	mux := http.NewServeMux()
	if p, ok := s.rec.(interface{ Handler() http.Handler }); ok {
		mux.Handle("/metrics", p.Handler())
	}
	srv := &http.Server{Addr: s.metricsAddr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Warnw("metrics server stopped", "err", err)
	}
}
