package searchindex

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-hclog"
)

// Flush triggers per §4.8.
const (
	maxPendingCount = 100
	maxPendingBytes = 50 * 1024 * 1024
	idleTimeout     = 3 * time.Second
)

// FlushHandler is invoked after every flush (successful or not) with the
// batch that was attempted. A non-nil err means the whole batch failed and
// must be treated as not-committed: the caller rolls back every envelope
// named by the batch's SpoolIDs and exits non-zero (§4.8, "no partial
// commit").
type FlushHandler func(batch []Update, err error)

// Scheduler buffers Updates and flushes them in bulk to a BulkIndex
// backend whenever pending count, pending size, or idle time crosses a
// threshold.
type Scheduler struct {
	backend BulkIndex
	onFlush FlushHandler
	log     hclog.Logger

	mu      sync.Mutex
	pending []Update
	bytes   int
	timer   *time.Timer
}

// NewScheduler constructs a Scheduler flushing against backend.
func NewScheduler(backend BulkIndex, onFlush FlushHandler, log hclog.Logger) *Scheduler {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Scheduler{backend: backend, onFlush: onFlush, log: log.Named("searchindex")}
}

func approxSize(u Update) int {
	b, _ := json.Marshal(u.Doc)
	return len(b) + len(u.DocID) + len(u.Index)
}

// Enqueue adds u to the pending batch, flushing immediately if the
// count/size threshold is crossed, and (re)arming the idle timer
// otherwise.
func (s *Scheduler) Enqueue(ctx context.Context, u Update) {
	s.mu.Lock()
	s.pending = append(s.pending, u)
	s.bytes += approxSize(u)
	full := len(s.pending) >= maxPendingCount || s.bytes >= maxPendingBytes

	if s.timer != nil {
		s.timer.Stop()
	}
	if !full {
		s.timer = time.AfterFunc(idleTimeout, func() { s.Flush(ctx) })
	}
	s.mu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush immediately flushes any pending updates, regardless of thresholds.
// Safe to call with nothing pending (a no-op).
func (s *Scheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	size := s.bytes
	s.pending = nil
	s.bytes = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	err := s.backend.Bulk(ctx, batch)
	if err != nil {
		s.log.Error("bulk flush failed, batch will be rolled back", "count", len(batch), "size", humanize.Bytes(uint64(size)), "error", err)
	} else {
		s.log.Debug("bulk flush committed", "count", len(batch), "size", humanize.Bytes(uint64(size)))
	}
	if s.onFlush != nil {
		s.onFlush(batch, err)
	}
}

// Close stops any pending idle timer without flushing. Callers that want
// pending updates flushed on shutdown should call Flush first.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
