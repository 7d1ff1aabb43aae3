package color

import (
	"context"
	"time"
)

// SnapshotSource fetches the full list of records from the remote sheet.
type SnapshotSource interface {
	// Fetch returns every record in sheet order
	Fetch(ctx context.Context) ([]Record, error)
}

// SnapshotCache mirrors the last good snapshot outside the process.
type SnapshotCache interface {
	// LoadSnapshot returns the mirrored snapshot or ErrCacheMiss
	LoadSnapshot(ctx context.Context) (*Snapshot, error)

	// SaveSnapshot replaces the mirrored snapshot
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// Health checks cache connectivity
	Health(ctx context.Context) error
}

// SnapshotProvider exposes the current snapshot and on-demand refresh.
type SnapshotProvider interface {
	// Current returns the visible snapshot without fetching
	Current() Snapshot

	// Refresh fetches a new snapshot. On failure the previous snapshot is
	// returned together with the error.
	Refresh(ctx context.Context) (Snapshot, error)
}

// SubmissionSink forwards an accepted candidate to the external form.
// Delivery is best effort; nil means the submission was dispatched.
type SubmissionSink interface {
	Submit(ctx context.Context, label, colorCode string) error
}

// Namer maps a colour code to a human readable name.
type Namer interface {
	Name(code string) string
}

// CardRenderer renders the shareable card for a candidate as PNG bytes.
type CardRenderer interface {
	Render(ctx context.Context, candidate Candidate) ([]byte, error)
}

// ShareStorage keeps exported cards reachable by URL.
type ShareStorage interface {
	// Put uploads data under key
	Put(ctx context.Context, key, contentType string, data []byte) error

	// URL returns a time-limited URL for key
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Exporter turns a candidate into something the user can save or share.
type Exporter interface {
	Export(ctx context.Context, candidate Candidate) (*Export, error)
}
