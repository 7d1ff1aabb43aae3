package layout

import "sync"

// GridEngine lays keys out row by row from the bottom-left corner. Every call
// recomputes coordinates; animation delays survive as long as the viewport
// does not change. Once the viewport is full, rows wrap to the bottom again.
type GridEngine struct {
	opts Options
	mu   sync.Mutex
}

// NewGridEngine creates a deterministic grid engine.
func NewGridEngine(opts Options) *GridEngine {
	return &GridEngine{opts: opts.withDefaults()}
}

// Assign implements Engine.
func (e *GridEngine) Assign(keys []Key, vp Viewport, prior *Assignment) *Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := newGrid(vp, e.opts.CellSize)
	reuse := prior.reusable(vp)

	out := &Assignment{
		Viewport:  vp,
		Positions: make(map[Key]Position, len(keys)),
	}
	for i, key := range keys {
		col := i % g.columns
		row := (i / g.columns) % g.rows
		x, y := g.at(col, row)

		pos := Position{X: x, Y: y}
		if p, ok := prior.Lookup(key); reuse && ok {
			pos.Delay = p.Delay
		} else {
			pos.Delay = randomDelay(e.opts.Rand, e.opts.MaxDelay)
		}
		out.Positions[key] = pos
	}
	return out
}
