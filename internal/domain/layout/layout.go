// Package layout places snapshot records on the mosaic. Positions are keyed
// by a stable record identity so that reordering the snapshot never moves a
// tile that belongs to a different record.
package layout

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"whatisyourcolor/internal/domain/color"
)

// Defaults
const (
	DefaultCellSize = 15
	DefaultMaxDelay = 5 * time.Second

	// MaxViewportSide bounds each viewport dimension in pixels
	MaxViewportSide = 1 << 14
)

// Policy names
const (
	PolicyGrid = "grid"
	PolicyDrop = "drop"
)

var ErrInvalidViewport = errors.New("invalid viewport")

// Key identifies a record independently of its index in the snapshot.
// Seq distinguishes repeated (label, colour) pairs in sheet order.
type Key struct {
	Label string
	Color string
	Seq   int
}

// String renders the key for use in JSON and logs.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Color, k.Label, k.Seq)
}

// KeysFor derives keys for records, newest first. Ordinals are counted in
// sheet order so appending a row never changes the keys of existing rows.
func KeysFor(records []color.Record) []Key {
	seen := make(map[[2]string]int, len(records))
	keys := make([]Key, len(records))
	for i, r := range records {
		pair := [2]string{r.Label, r.ColorCode}
		keys[len(records)-1-i] = Key{Label: r.Label, Color: r.ColorCode, Seq: seen[pair]}
		seen[pair]++
	}
	return keys
}

// Viewport is the size of the area the mosaic is drawn into.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewViewport validates the dimensions. Each side must be in
// [1, MaxViewportSide].
func NewViewport(width, height int) (Viewport, error) {
	if width <= 0 || height <= 0 || width > MaxViewportSide || height > MaxViewportSide {
		return Viewport{}, fmt.Errorf("%w: %dx%d", ErrInvalidViewport, width, height)
	}
	return Viewport{Width: width, Height: height}, nil
}

// Position is where a tile is drawn and when its entrance animation starts.
type Position struct {
	X     int           `json:"x"`
	Y     int           `json:"y"`
	Delay time.Duration `json:"-"`
}

// Assignment is the full set of positions computed for one viewport.
type Assignment struct {
	Viewport  Viewport
	Positions map[Key]Position
}

// Len returns the number of assigned keys.
func (a *Assignment) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Positions)
}

// Lookup returns the position for key.
func (a *Assignment) Lookup(key Key) (Position, bool) {
	if a == nil {
		return Position{}, false
	}
	p, ok := a.Positions[key]
	return p, ok
}

// reusable reports whether prior positions may be kept for vp.
func (a *Assignment) reusable(vp Viewport) bool {
	return a != nil && a.Viewport == vp
}

// Engine assigns a position to every key. Implementations must return a
// position for each key in keys and nothing else. A prior assignment made
// for a different viewport must be ignored (full recompute).
type Engine interface {
	Assign(keys []Key, vp Viewport, prior *Assignment) *Assignment
}

// Options configure an engine.
type Options struct {
	CellSize int
	MaxDelay time.Duration
	Rand     *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.CellSize <= 0 {
		o.CellSize = DefaultCellSize
	}
	if o.MaxDelay < 0 {
		o.MaxDelay = 0
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

// New returns the engine for a policy name.
func New(policy string, opts Options) (Engine, error) {
	switch policy {
	case PolicyGrid, "":
		return NewGridEngine(opts), nil
	case PolicyDrop:
		return NewDropEngine(opts), nil
	default:
		return nil, fmt.Errorf("unknown layout policy %q", policy)
	}
}

// grid describes how many whole cells fit into a viewport.
type grid struct {
	cell    int
	columns int
	rows    int
	vp      Viewport
}

// Viewports built without NewViewport are clamped to MaxViewportSide.
func newGrid(vp Viewport, cell int) grid {
	columns := min(vp.Width, MaxViewportSide) / cell
	if columns < 1 {
		columns = 1
	}
	rows := min(vp.Height, MaxViewportSide) / cell
	if rows < 1 {
		rows = 1
	}
	return grid{cell: cell, columns: columns, rows: rows, vp: vp}
}

// at converts a (column, row) cell, row 0 at the bottom, into pixel
// coordinates clamped to the viewport.
func (g grid) at(col, row int) (int, int) {
	x := col * g.cell
	y := g.vp.Height - (row+1)*g.cell
	if y < 0 {
		y = 0
	}
	return x, y
}

// cellOf is the inverse of at for positions produced by this grid.
func (g grid) cellOf(p Position) (int, int) {
	col := p.X / g.cell
	row := (g.vp.Height - g.cell - p.Y) / g.cell
	if row < 0 {
		row = 0
	}
	return col, row
}

func randomDelay(r *rand.Rand, maxDelay time.Duration) time.Duration {
	if maxDelay <= 0 {
		return 0
	}
	return time.Duration(r.Int64N(int64(maxDelay)))
}
