package layout

import "sync"

// DropEngine drops each new key into a random column, stacking on top of
// whatever is already there. Existing keys keep their position until the
// viewport changes.
type DropEngine struct {
	opts Options
	mu   sync.Mutex
}

// NewDropEngine creates an incremental random-drop engine.
func NewDropEngine(opts Options) *DropEngine {
	return &DropEngine{opts: opts.withDefaults()}
}

// Assign implements Engine.
func (e *DropEngine) Assign(keys []Key, vp Viewport, prior *Assignment) *Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := newGrid(vp, e.opts.CellSize)
	heights := make([]int, g.columns)

	out := &Assignment{
		Viewport:  vp,
		Positions: make(map[Key]Position, len(keys)),
	}

	fresh := make([]Key, 0, len(keys))
	if prior.reusable(vp) {
		for _, key := range keys {
			p, ok := prior.Lookup(key)
			if !ok {
				fresh = append(fresh, key)
				continue
			}
			out.Positions[key] = p
			col, row := g.cellOf(p)
			if col < len(heights) && row+1 > heights[col] {
				heights[col] = row + 1
			}
		}
	} else {
		fresh = append(fresh, keys...)
	}

	// keys are newest first; drop the oldest first so newer tiles land on top
	for i := len(fresh) - 1; i >= 0; i-- {
		col := e.pickColumn(heights, g.rows)
		row := heights[col]
		if row >= g.rows {
			row = g.rows - 1
		} else {
			heights[col]++
		}
		x, y := g.at(col, row)
		out.Positions[fresh[i]] = Position{
			X:     x,
			Y:     y,
			Delay: randomDelay(e.opts.Rand, e.opts.MaxDelay),
		}
	}
	return out
}

// pickColumn chooses a random column, falling through to the next one while
// the chosen column is full. When every column is full the random pick wins.
func (e *DropEngine) pickColumn(heights []int, rows int) int {
	start := e.opts.Rand.IntN(len(heights))
	for i := 0; i < len(heights); i++ {
		c := (start + i) % len(heights)
		if heights[c] < rows {
			return c
		}
	}
	return start
}
