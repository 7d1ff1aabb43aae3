package color

import (
	"fmt"
	imagecolor "image/color"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Hash32 folds text into a signed 32-bit rolling hash (h*31 + unit) over its
// UTF-16 code units. Overflow wraps with two's-complement semantics, so the
// result matches a browser computing the same hash with 32-bit integers.
func Hash32(text string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(text)) {
		h = int32(unit) + ((h << 5) - h)
	}
	return h
}

// FromText maps text to a deterministic "#rrggbb" colour code.
// The low byte of the hash is written first, then bits 8-15, then 16-23.
func FromText(text string) string {
	h := Hash32(text)

	var b strings.Builder
	b.Grow(7)
	b.WriteByte('#')
	for i := 0; i < 3; i++ {
		v := (h >> (i * 8)) & 0xff
		fmt.Fprintf(&b, "%02x", v)
	}
	return b.String()
}

// Code is a validated, lowercase "#rrggbb" colour code.
type Code string

// ParseCode validates s as a six digit hex colour. A missing leading '#' is
// accepted and the result is normalised to lowercase.
func ParseCode(s string) (Code, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidColorCode, s)
	}
	if _, err := strconv.ParseUint(s, 16, 32); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidColorCode, s)
	}
	return Code("#" + strings.ToLower(s)), nil
}

// MustParseCode is like ParseCode but panics on invalid input.
func MustParseCode(s string) Code {
	c, err := ParseCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the code with its leading '#'.
func (c Code) String() string {
	return string(c)
}

// Hex returns the six digits without the leading '#', suitable for URLs.
func (c Code) Hex() string {
	return strings.TrimPrefix(string(c), "#")
}

// RGBA converts the code to an opaque colour.
func (c Code) RGBA() imagecolor.RGBA {
	v, _ := strconv.ParseUint(c.Hex(), 16, 32)
	return imagecolor.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}
}
