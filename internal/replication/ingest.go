package replication

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"redisd/internal/command"
	"redisd/internal/resp"
)

// Dispatcher applies a command streamed from the primary. Replica-side
// ingestion never writes a reply back, so Dispatcher has no return channel:
// it is purely a side effect on the local store.
type Dispatcher interface {
	Dispatch(cmd command.Command, args []string)
}

// Ingest reads the primary's propagated command stream from r until ctx is
// done or the connection errs out. A single read may carry several
// pipelined commands. Each decoded payload is classified and handed to
// disp; anything that doesn't classify as a known command is silently
// skipped, since a faithful replica never talks back.
func Ingest(ctx context.Context, r io.Reader, disp Dispatcher) error {
	var buf []byte
	chunk := make([]byte, 4096)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for {
			payload, consumed, err := resp.Decode(buf)
			if err != nil {
				if errors.Is(err, resp.ErrIncomplete) {
					break
				}
				return errors.Wrap(err, "replication: decode propagated command")
			}
			buf = buf[consumed:]

			cmd, ok, val := resp.Classify(payload)
			if !ok {
				continue
			}
			disp.Dispatch(cmd, resp.StringArgs(val))
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return errors.Wrap(err, "replication: read from primary")
		}
	}
}
