package layout

import "time"

// Tile is a positioned record ready to render.
type Tile struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Color string  `json:"color"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Delay float64 `json:"delay"`
}

// Board keeps the layout of one view across snapshot changes and resizes.
// A Board is not safe for concurrent use.
type Board struct {
	engine  Engine
	vp      Viewport
	keys    []Key
	current *Assignment
}

// NewBoard creates an empty board for vp.
func NewBoard(engine Engine, vp Viewport) *Board {
	return &Board{engine: engine, vp: vp}
}

// Viewport returns the current viewport.
func (b *Board) Viewport() Viewport {
	return b.vp
}

// Resize recomputes every position when the viewport changes.
func (b *Board) Resize(vp Viewport) *Assignment {
	if vp == b.vp && b.current != nil {
		return b.current
	}
	b.vp = vp
	b.current = b.engine.Assign(b.keys, vp, nil)
	return b.current
}

// Update lays out a new key set, keeping what the engine allows to keep.
func (b *Board) Update(keys []Key) *Assignment {
	b.keys = keys
	b.current = b.engine.Assign(keys, b.vp, b.current)
	return b.current
}

// Tiles returns the current layout in render order.
func (b *Board) Tiles() []Tile {
	tiles := make([]Tile, 0, len(b.keys))
	for _, key := range b.keys {
		p, ok := b.current.Lookup(key)
		if !ok {
			continue
		}
		tiles = append(tiles, Tile{
			Key:   key.String(),
			Label: key.Label,
			Color: key.Color,
			X:     p.X,
			Y:     p.Y,
			Delay: p.Delay.Truncate(time.Millisecond).Seconds(),
		})
	}
	return tiles
}
