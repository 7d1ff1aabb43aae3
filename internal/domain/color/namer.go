package color

import (
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultNameMemoSize = 4096

type namedColor struct {
	name  string
	color colorful.Color
}

// NearestNamer names a colour after the perceptually closest entry of the
// SVG 1.1 named colour table (CIE L*a*b* distance).
type NearestNamer struct {
	palette []namedColor

	mu      sync.Mutex
	memo    map[Code]string
	memoCap int
}

// NewNearestNamer builds a namer over the SVG named colours.
func NewNearestNamer() *NearestNamer {
	title := cases.Title(language.English)

	palette := make([]namedColor, 0, len(colornames.Names))
	for _, name := range colornames.Names {
		c, ok := colorful.MakeColor(colornames.Map[name])
		if !ok {
			continue
		}
		palette = append(palette, namedColor{
			name:  title.String(name),
			color: c,
		})
	}

	return &NearestNamer{
		palette: palette,
		memo:    make(map[Code]string),
		memoCap: defaultNameMemoSize,
	}
}

// Name returns the closest colour name for code. Unparsable codes are
// returned unchanged.
func (n *NearestNamer) Name(code string) string {
	parsed, err := ParseCode(code)
	if err != nil {
		return code
	}

	n.mu.Lock()
	if name, ok := n.memo[parsed]; ok {
		n.mu.Unlock()
		return name
	}
	n.mu.Unlock()

	name := n.nearest(parsed)

	n.mu.Lock()
	if len(n.memo) >= n.memoCap {
		n.memo = make(map[Code]string)
	}
	n.memo[parsed] = name
	n.mu.Unlock()

	return name
}

func (n *NearestNamer) nearest(code Code) string {
	target, ok := colorful.MakeColor(code.RGBA())
	if !ok || len(n.palette) == 0 {
		return code.String()
	}

	best := code.String()
	bestDist := math.MaxFloat64
	for _, candidate := range n.palette {
		d := target.DistanceLab(candidate.color)
		if d < bestDist {
			bestDist = d
			best = candidate.name
		}
	}
	return best
}
