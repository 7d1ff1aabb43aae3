package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	imagecolor "image/color"
	"image/png"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"whatisyourcolor/internal/domain/color"
)

const (
	cardMargin     = 16
	cardLineHeight = 18
	cardLines      = 3

	ellipsis = "..."
)

var (
	cardPaper = imagecolor.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	cardInk   = imagecolor.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	cardMuted = imagecolor.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
)

// CardRenderer draws the exportable colour card as a PNG
type CardRenderer struct {
	width  int
	height int
	scale  int
	face   font.Face
}

// NewCardRenderer creates a renderer for cards of width x height, upscaled by scale
func NewCardRenderer(width, height, scale int) *CardRenderer {
	if width <= 0 {
		width = 300
	}
	if height <= 0 {
		height = 420
	}
	if scale <= 0 {
		scale = 1
	}

	return &CardRenderer{
		width:  width,
		height: height,
		scale:  scale,
		face:   basicfont.Face7x13,
	}
}

// Size returns the pixel dimensions of rendered cards
func (r *CardRenderer) Size() (int, int) {
	return r.width * r.scale, r.height * r.scale
}

// Render draws the swatch for candidate with its label, name and hex code underneath
func (r *CardRenderer) Render(ctx context.Context, candidate color.Candidate) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, err := color.ParseCode(candidate.Color)
	if err != nil {
		return nil, fmt.Errorf("failed to render card: %w", err)
	}

	candidate.Label = color.ClipLabel(candidate.Label)
	base := r.compose(code, candidate)

	var out image.Image = base
	if r.scale > 1 {
		w, h := r.Size()
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		// Nearest neighbour keeps the bitmap font crisp
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), base, base.Bounds(), draw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	encoder := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("%w: failed to encode card: %v", color.ErrExportFailed, err)
	}

	return buf.Bytes(), nil
}

func (r *CardRenderer) compose(code color.Code, candidate color.Candidate) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(cardPaper), image.Point{}, draw.Src)

	footer := cardLines*cardLineHeight + cardMargin
	swatch := image.Rect(cardMargin, cardMargin, r.width-cardMargin, r.height-footer)
	if swatch.Empty() {
		swatch = img.Bounds()
	}
	draw.Draw(img, swatch, image.NewUniform(code.RGBA()), image.Point{}, draw.Src)

	name := candidate.Name
	if name == "" {
		name = code.String()
	}

	baseline := swatch.Max.Y + cardLineHeight
	r.drawCentered(img, candidate.Label, baseline, cardInk)
	r.drawCentered(img, name, baseline+cardLineHeight, cardInk)
	r.drawCentered(img, code.String(), baseline+2*cardLineHeight, cardMuted)

	return img
}

func (r *CardRenderer) drawCentered(img *image.RGBA, text string, baseline int, ink imagecolor.Color) {
	if text == "" {
		return
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(ink),
		Face: r.face,
	}

	text = fitText(d, text, r.width-2*cardMargin)
	width := d.MeasureString(text).Ceil()
	x := (r.width - width) / 2
	if x < cardMargin {
		x = cardMargin
	}

	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

// fitText trims text with an ellipsis until it fits within maxWidth pixels.
// Prefix width grows with length, so the cut point is found by bisection.
func fitText(d *font.Drawer, text string, maxWidth int) string {
	if d.MeasureString(text).Ceil() <= maxWidth {
		return text
	}

	runes := []rune(text)
	tooWide := sort.Search(len(runes), func(n int) bool {
		return d.MeasureString(string(runes[:n])+ellipsis).Ceil() > maxWidth
	})
	if tooWide == 0 {
		return ""
	}
	return string(runes[:tooWide-1]) + ellipsis
}
