package replication

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	"redisd/internal/role"
)

// Propagate writes the already-encoded command frame to every currently
// attached replica concurrently, joining on all of them before returning,
// so publish latency is bounded by the slowest replica rather than the sum
// of all of them. It snapshots the registry before doing any I/O (the
// registry lock is never held across a socket write) and drops any replica
// whose write fails, returning the accumulated errors as a single
// multierror.Error so a caller logs one structured line per fan-out instead
// of only the last failure. No write is retried or acknowledged.
func Propagate(replicas *role.Replicas, frame []byte) error {
	snapshot := replicas.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)

	for addr, link := range snapshot {
		wg.Add(1)
		go func(addr string, link role.Link) {
			defer wg.Done()
			if _, err := link.Write(frame); err != nil {
				mu.Lock()
				result = multierror.Append(result, errWithAddr(addr, err))
				mu.Unlock()
				replicas.Remove(addr)
			}
		}(addr, link)
	}

	wg.Wait()
	return result.ErrorOrNil()
}

func errWithAddr(addr string, err error) error {
	return &addrError{addr: addr, err: err}
}

type addrError struct {
	addr string
	err  error
}

func (e *addrError) Error() string { return e.addr + ": " + e.err.Error() }
func (e *addrError) Unwrap() error { return e.err }
