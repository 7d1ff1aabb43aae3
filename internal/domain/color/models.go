// Package color holds the domain model of the colour mosaic: text-to-colour
// hashing, submitted records and the snapshot they are read from.
package color

import (
	"errors"
	"time"
)

// Record is one row of the remote sheet. Absent columns are empty strings.
type Record struct {
	Label     string `json:"name"`
	ColorCode string `json:"colorCode"`
}

// Snapshot is the most recently fetched list of records, in sheet order.
// A snapshot is never mutated once published; refreshes replace it whole.
type Snapshot struct {
	Records   []Record  `json:"records"`
	Version   uint64    `json:"version"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source,omitempty"`
}

// Snapshot sources.
const (
	SourceRemote = "remote"
	SourceCache  = "cache"
)

// Len returns the number of records.
func (s Snapshot) Len() int {
	return len(s.Records)
}

// Loaded reports whether the snapshot has been populated at least once.
func (s Snapshot) Loaded() bool {
	return !s.FetchedAt.IsZero()
}

// HasLabel reports whether any record carries exactly label (case-sensitive).
func (s Snapshot) HasLabel(label string) bool {
	for _, r := range s.Records {
		if r.Label == label {
			return true
		}
	}
	return false
}

// SameRecords reports whether a and b hold identical records in the same order.
func SameRecords(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Candidate is the user's input and its derived colour for one submit cycle.
type Candidate struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Name  string `json:"name"`
}

// MaxLabelRunes is the longest label drawn on a card.
const MaxLabelRunes = 256

// ClipLabel shortens label to at most MaxLabelRunes runes.
func ClipLabel(label string) string {
	if len(label) <= MaxLabelRunes {
		return label
	}
	n := 0
	for i := range label {
		if n == MaxLabelRunes {
			return label[:i]
		}
		n++
	}
	return label
}

// NewCandidate derives the colour for label. Name is filled in by a Namer.
func NewCandidate(label string) Candidate {
	return Candidate{
		Label: label,
		Color: FromText(label),
	}
}

// Reason explains why a submission was not forwarded.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonEmpty     Reason = "empty"
	ReasonDuplicate Reason = "duplicate"
)

// Result is the outcome of one submission attempt.
type Result struct {
	Candidate Candidate `json:"candidate"`
	Submitted bool      `json:"submitted"`
	Duplicate bool      `json:"duplicate"`
	// Display is false when the result view must not be shown.
	Display bool   `json:"display"`
	Reason  Reason `json:"reason,omitempty"`
}

// DuplicatePolicy decides what the user sees when the label already exists.
type DuplicatePolicy string

const (
	// DuplicateShow skips the submission but still displays the colour.
	DuplicateShow DuplicatePolicy = "show"
	// DuplicateBlock skips the submission and suppresses the result view.
	DuplicateBlock DuplicatePolicy = "block"
)

// ParseDuplicatePolicy maps a configuration value to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case DuplicateShow, DuplicateBlock:
		return DuplicatePolicy(s), nil
	default:
		return "", ErrUnknownPolicy
	}
}

// Capability is the export mechanism available on the requesting device.
type Capability string

const (
	CapabilityDownload Capability = "download"
	CapabilityShare    Capability = "share"
)

// Export is a rendered card ready to hand to the user.
type Export struct {
	Capability  Capability `json:"capability"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	URL         string     `json:"url,omitempty"`
	Data        []byte     `json:"-"`
}

// ExportFilename is the name offered for downloaded cards.
const ExportFilename = "color_image.png"

// Domain errors
var (
	ErrEmptyLabel         = errors.New("label is empty")
	ErrRateLimited        = errors.New("too many submissions")
	ErrInvalidColorCode   = errors.New("invalid color code")
	ErrUnknownPolicy      = errors.New("unknown policy")
	ErrSourceUnavailable  = errors.New("snapshot source unavailable")
	ErrMalformedSnapshot  = errors.New("malformed snapshot")
	ErrStoreClosed        = errors.New("snapshot store closed")
	ErrSinkClosed         = errors.New("submission sink closed")
	ErrCacheUnavailable   = errors.New("cache unavailable")
	ErrCacheMiss          = errors.New("key not found in cache")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrExportFailed       = errors.New("export failed")
)
