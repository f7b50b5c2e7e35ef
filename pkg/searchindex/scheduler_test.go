package searchindex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	calls  [][]Update
	failOn int
}

func (f *fakeBackend) Bulk(ctx context.Context, updates []Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, updates)
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return context.DeadlineExceeded
	}
	return nil
}

func TestScheduler_FlushesAtCount(t *testing.T) {
	backend := &fakeBackend{}
	var flushed [][]Update
	var mu sync.Mutex
	s := NewScheduler(backend, func(batch []Update, err error) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, batch)
	}, nil)

	for i := 0; i < maxPendingCount; i++ {
		s.Enqueue(context.Background(), Update{DocID: "d", Index: "i"})
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
	require.Len(t, flushed[0], maxPendingCount)
}

func TestScheduler_FlushesOnIdle(t *testing.T) {
	backend := &fakeBackend{}
	done := make(chan struct{})
	s := NewScheduler(backend, func(batch []Update, err error) {
		close(done)
	}, nil)

	s.Enqueue(context.Background(), Update{DocID: "a", Index: "i"})
	s.Enqueue(context.Background(), Update{DocID: "b", Index: "i"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected idle flush within 5s")
	}
}

func TestScheduler_FailedBatchReportsError(t *testing.T) {
	backend := &fakeBackend{failOn: 1}
	errCh := make(chan error, 1)
	s := NewScheduler(backend, func(batch []Update, err error) {
		errCh <- err
	}, nil)

	for i := 0; i < maxPendingCount; i++ {
		s.Enqueue(context.Background(), Update{DocID: "d", Index: "i"})
	}

	err := <-errCh
	require.Error(t, err)
}
