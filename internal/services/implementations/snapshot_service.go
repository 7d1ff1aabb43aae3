package implementations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/observability"
)

const (
	// DefaultRefreshInterval is how often the sheet is polled
	DefaultRefreshInterval = 5 * time.Second
	// DefaultRefreshTimeout bounds one shared fetch
	DefaultRefreshTimeout = 30 * time.Second

	refreshKey = "refresh"
)

// SnapshotService keeps the latest sheet snapshot in memory, refreshes it on
// a ticker and on demand, and mirrors it to the cache when one is configured.
// Concurrent refreshes share a single fetch.
type SnapshotService struct {
	source   color.SnapshotSource
	cache    color.SnapshotCache // can be nil
	logger   *observability.Logger
	interval time.Duration
	timeout  time.Duration

	current atomic.Pointer[color.Snapshot]
	group   singleflight.Group

	mu          sync.Mutex
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers map[int]func(color.Snapshot)
	nextSubID   int

	// Observability
	tracer          trace.Tracer
	refreshCounter  metric.Int64Counter
	refreshDuration metric.Float64Histogram
	recordGauge     metric.Int64Gauge
}

// SnapshotOption configures a SnapshotService
type SnapshotOption func(*SnapshotService)

// WithRefreshInterval sets the polling interval
func WithRefreshInterval(d time.Duration) SnapshotOption {
	return func(s *SnapshotService) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRefreshTimeout bounds a single shared fetch
func WithRefreshTimeout(d time.Duration) SnapshotOption {
	return func(s *SnapshotService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSnapshotCache mirrors snapshots to cache
func WithSnapshotCache(cache color.SnapshotCache) SnapshotOption {
	return func(s *SnapshotService) {
		s.cache = cache
	}
}

// NewSnapshotService creates a snapshot store reading from source
func NewSnapshotService(source color.SnapshotSource, logger *observability.Logger, opts ...SnapshotOption) *SnapshotService {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	tracer := otel.Tracer("whatisyourcolor/service/snapshot")
	meter := otel.Meter("whatisyourcolor/service/snapshot")

	// Create metrics (ignore errors for graceful degradation)
	refreshCounter, err := meter.Int64Counter(
		"snapshot.refresh.total",
		metric.WithDescription("Total number of snapshot refreshes by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		refreshCounter = nil
	}

	refreshDuration, err := meter.Float64Histogram(
		"snapshot.refresh.duration",
		metric.WithDescription("Duration of snapshot fetches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		refreshDuration = nil
	}

	recordGauge, err := meter.Int64Gauge(
		"snapshot.records",
		metric.WithDescription("Number of records in the visible snapshot"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		recordGauge = nil
	}

	s := &SnapshotService{
		source:          source,
		logger:          logger.Component("snapshot"),
		interval:        DefaultRefreshInterval,
		timeout:         DefaultRefreshTimeout,
		subscribers:     make(map[int]func(color.Snapshot)),
		tracer:          tracer,
		refreshCounter:  refreshCounter,
		refreshDuration: refreshDuration,
		recordGauge:     recordGauge,
	}
	s.current.Store(&color.Snapshot{Records: []color.Record{}})

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Current returns the visible snapshot without fetching
func (s *SnapshotService) Current() color.Snapshot {
	return *s.current.Load()
}

// Refresh fetches the sheet, joining any refresh already in flight. On
// failure the previous snapshot is returned together with the error.
func (s *SnapshotService) Refresh(ctx context.Context) (color.Snapshot, error) {
	if s.isClosed() {
		return s.Current(), color.ErrStoreClosed
	}

	// The shared fetch must not die with whichever caller started it
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return s.Current(), res.Err
		}
		return res.Val.(color.Snapshot), nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

func (s *SnapshotService) refresh(ctx context.Context) (color.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "SnapshotRefresh")
	defer span.End()

	start := time.Now()
	records, err := s.source.Fetch(ctx)
	s.recordDuration(ctx, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.recordRefresh(ctx, "failure")
		s.logger.Warn(ctx).Err(err).Msg("Snapshot refresh failed, keeping previous snapshot")
		return s.Current(), err
	}
	if records == nil {
		records = []color.Record{}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		span.AddEvent("discarded_after_stop")
		return s.Current(), color.ErrStoreClosed
	}

	prev := s.current.Load()
	next := &color.Snapshot{
		Records:   records,
		Version:   prev.Version,
		FetchedAt: time.Now().UTC(),
		Source:    color.SourceRemote,
	}

	changed := !prev.Loaded() || !color.SameRecords(prev.Records, records)
	if changed {
		next.Version = prev.Version + 1
	} else {
		// Reuse the published slice so readers holding it see no change
		next.Records = prev.Records
	}
	s.current.Store(next)
	subscribers := s.subscriberList()
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("snapshot.records", len(records)),
		attribute.Int64("snapshot.version", int64(next.Version)),
		attribute.Bool("snapshot.changed", changed),
	)
	span.SetStatus(codes.Ok, "")

	s.recordRefresh(ctx, "success")
	if s.recordGauge != nil {
		s.recordGauge.Record(ctx, int64(len(records)))
	}

	if changed {
		s.logger.Debug(ctx).
			Int("records", len(records)).
			Uint64("version", next.Version).
			Msg("Snapshot replaced")

		s.mirror(ctx, next)
		for _, fn := range subscribers {
			fn(*next)
		}
	}

	return *next, nil
}

// mirror writes snapshot to the cache; failures are logged only
func (s *SnapshotService) mirror(ctx context.Context, snapshot *color.Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveSnapshot(ctx, snapshot); err != nil {
		s.logger.Warn(ctx).Err(err).Msg("Failed to mirror snapshot to cache")
	}
}

// Warm seeds the store from the cache so a restarted instance can serve the
// mosaic before its first fetch. It never replaces a remote snapshot.
func (s *SnapshotService) Warm(ctx context.Context) bool {
	if s.cache == nil {
		return false
	}

	cached, err := s.cache.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, color.ErrCacheMiss) && !errors.Is(err, color.ErrCacheUnavailable) {
			s.logger.Warn(ctx).Err(err).Msg("Failed to warm snapshot from cache")
		}
		return false
	}

	s.mu.Lock()
	if s.closed || s.current.Load().Loaded() {
		s.mu.Unlock()
		return false
	}

	warmed := &color.Snapshot{
		Records:   cached.Records,
		Version:   1,
		FetchedAt: cached.FetchedAt,
		Source:    color.SourceCache,
	}
	if warmed.Records == nil {
		warmed.Records = []color.Record{}
	}
	if warmed.FetchedAt.IsZero() {
		warmed.FetchedAt = time.Now().UTC()
	}
	s.current.Store(warmed)
	subscribers := s.subscriberList()
	s.mu.Unlock()

	s.logger.Info(ctx).Int("records", warmed.Len()).Msg("Snapshot warmed from cache")
	for _, fn := range subscribers {
		fn(*warmed)
	}
	return true
}

// Start warms from the cache, refreshes once immediately and then on every
// tick until ctx ends or Stop is called. Calling Start twice is a no-op.
func (s *SnapshotService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.Warm(loopCtx)

	go s.loop(loopCtx)
}

func (s *SnapshotService) loop(ctx context.Context) {
	defer close(s.done)

	_, _ = s.Refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Refresh(ctx)
		}
	}
}

// Stop cancels the refresh loop and closes the store. Refreshes that finish
// afterwards no longer change the visible snapshot.
func (s *SnapshotService) Stop() {
	s.mu.Lock()
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Subscribe registers fn to be called after every content change. fn runs on
// the refreshing goroutine and must not block. The returned function removes
// the subscription.
func (s *SnapshotService) Subscribe(fn func(color.Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Ready reports whether a snapshot has been loaded from the sheet or the cache
func (s *SnapshotService) Ready() error {
	if s.isClosed() {
		return color.ErrStoreClosed
	}
	if !s.Current().Loaded() {
		return fmt.Errorf("snapshot not loaded yet")
	}
	return nil
}

func (s *SnapshotService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// subscriberList must be called with mu held
func (s *SnapshotService) subscriberList() []func(color.Snapshot) {
	list := make([]func(color.Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		list = append(list, fn)
	}
	return list
}

func (s *SnapshotService) recordRefresh(ctx context.Context, outcome string) {
	if s.refreshCounter != nil {
		s.refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (s *SnapshotService) recordDuration(ctx context.Context, d time.Duration) {
	if s.refreshDuration != nil {
		s.refreshDuration.Record(ctx, d.Seconds())
	}
}
