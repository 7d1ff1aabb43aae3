package storage

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"whatisyourcolor/internal/domain/color"
)

func TestNewCardRenderer(t *testing.T) {
	tests := []struct {
		name                 string
		width, height, scale int
		expectW, expectH     int
	}{
		{"explicit size", 200, 300, 1, 200, 300},
		{"scaled", 200, 300, 2, 400, 600},
		{"defaults", 0, 0, 0, 300, 420},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCardRenderer(tt.width, tt.height, tt.scale)
			w, h := r.Size()
			assert.Equal(t, tt.expectW, w)
			assert.Equal(t, tt.expectH, h)
		})
	}
}

func TestCardRenderer_Render(t *testing.T) {
	r := NewCardRenderer(200, 300, 2)
	candidate := color.Candidate{Label: "hello", Color: "#d218e9", Name: "Darkorchid"}

	data, err := r.Render(context.Background(), candidate)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())

	// Centre of the swatch carries the colour
	cr, cg, cb, _ := img.At(200, 200).RGBA()
	assert.Equal(t, uint32(0xd2), cr>>8)
	assert.Equal(t, uint32(0x18), cg>>8)
	assert.Equal(t, uint32(0xe9), cb>>8)

	// Margin is paper white
	pr, pg, pb, _ := img.At(2, 2).RGBA()
	assert.Equal(t, []uint32{0xff, 0xff, 0xff}, []uint32{pr >> 8, pg >> 8, pb >> 8})
}

func TestCardRenderer_RenderIsDeterministic(t *testing.T) {
	r := NewCardRenderer(120, 160, 1)
	candidate := color.Candidate{Label: "Bob", Color: "#950501", Name: "Maroon"}

	a, err := r.Render(context.Background(), candidate)
	require.NoError(t, err)
	b, err := r.Render(context.Background(), candidate)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = png.Decode(bytes.NewReader(a))
	assert.NoError(t, err)
}

func TestCardRenderer_RenderErrors(t *testing.T) {
	r := NewCardRenderer(120, 160, 1)

	t.Run("invalid colour", func(t *testing.T) {
		_, err := r.Render(context.Background(), color.Candidate{Label: "x", Color: "blue"})
		assert.ErrorIs(t, err, color.ErrInvalidColorCode)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Render(ctx, color.NewCandidate("x"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCardRenderer_LongAndUnicodeLabels(t *testing.T) {
	r := NewCardRenderer(120, 160, 1)

	for _, label := range []string{strings.Repeat("w", 200), "안녕하세요", "😀", ""} {
		_, err := r.Render(context.Background(), color.NewCandidate(label))
		assert.NoError(t, err, "label %q", label)
	}
}

func TestFitText(t *testing.T) {
	d := &font.Drawer{Face: basicfont.Face7x13}

	tests := []struct {
		name     string
		text     string
		maxWidth int
		expected string
	}{
		{"fits", "short", 100, "short"},
		// 7px per glyph: "abc" + "..." is 42px
		{"trimmed to longest prefix", "abcdefghij", 42, "abc..."},
		{"one pixel short", "abcdefghij", 41, "ab..."},
		{"ellipsis does not fit", "abcdef", 5, ""},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, fitText(d, tt.text, tt.maxWidth))
		})
	}

	fitted := fitText(d, strings.Repeat("a", 50), 70)
	assert.True(t, strings.HasSuffix(fitted, "..."))
	assert.LessOrEqual(t, d.MeasureString(fitted).Ceil(), 70)
}

func TestFitText_LongTextIsFast(t *testing.T) {
	d := &font.Drawer{Face: basicfont.Face7x13}
	text := strings.Repeat("w", 64000)

	start := time.Now()
	fitted := fitText(d, text, 200)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.LessOrEqual(t, d.MeasureString(fitted).Ceil(), 200)
	assert.True(t, strings.HasSuffix(fitted, "..."))
}

func TestCardRenderer_HugeLabelRendersQuickly(t *testing.T) {
	r := NewCardRenderer(120, 160, 1)
	label := strings.Repeat("x", 1<<20)

	start := time.Now()
	data, err := r.Render(context.Background(), color.Candidate{Label: label, Color: "#d218e9"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}
