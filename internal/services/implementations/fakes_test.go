package implementations

import (
	"context"
	"sync"
	"sync/atomic"

	"whatisyourcolor/internal/domain/color"
)

// fakeSource is a scriptable color.SnapshotSource
type fakeSource struct {
	mu      sync.Mutex
	records []color.Record
	err     error
	gate    chan struct{}
	started chan struct{}
	calls   atomic.Int32
}

func newFakeSource(records ...color.Record) *fakeSource {
	return &fakeSource{records: records, started: make(chan struct{}, 64)}
}

func (f *fakeSource) set(records []color.Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.err = err
}

func (f *fakeSource) Fetch(ctx context.Context) ([]color.Record, error) {
	f.calls.Add(1)
	select {
	case f.started <- struct{}{}:
	default:
	}

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]color.Record(nil), f.records...), nil
}

// fakeCache is an in-memory color.SnapshotCache
type fakeCache struct {
	mu      sync.Mutex
	stored  *color.Snapshot
	saveErr error
	saves   int
}

func (f *fakeCache) LoadSnapshot(ctx context.Context) (*color.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		return nil, color.ErrCacheMiss
	}
	cp := *f.stored
	return &cp, nil
}

func (f *fakeCache) SaveSnapshot(ctx context.Context, snapshot *color.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *snapshot
	f.stored = &cp
	return nil
}

func (f *fakeCache) Health(ctx context.Context) error {
	return nil
}

func (f *fakeCache) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// fakeSink records forwarded submissions
type fakeSink struct {
	mu   sync.Mutex
	sent []color.Record
	err  error
}

func (f *fakeSink) Submit(ctx context.Context, label, colorCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, color.Record{Label: label, ColorCode: colorCode})
	return nil
}

func (f *fakeSink) submissions() []color.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]color.Record(nil), f.sent...)
}

// staticNamer names every colour the same
type staticNamer string

func (n staticNamer) Name(code string) string {
	return string(n)
}
