// Package colorutil parses and derives the colours used by the board
// appearance settings.
package colorutil

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Common colours.
var (
	Black = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Blue  = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 255}
)

// ParseHex parses "#rgb", "#rrggbb" or "#rrggbbaa" (the "#" is optional).
func ParseHex(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("colorutil: bad hex colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("colorutil: bad hex colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Hex formats c as "#rrggbb", or "#rrggbbaa" when it is not opaque.
func Hex(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", n.R, n.G, n.B, n.A)
}

// Luminance returns the perceived brightness of c in [0, 1] (Rec. 601).
func Luminance(c color.Color) float64 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return (0.299*float64(n.R) + 0.587*float64(n.G) + 0.114*float64(n.B)) / 255
}

// Shade moves c toward white by amount when it is dark and toward black
// when it is light. amount is in [0, 1].
func Shade(c color.Color, amount float64) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	amount = min(max(amount, 0), 1)
	target := 255.0
	if Luminance(n) > 0.5 {
		target = 0
	}
	mix := func(v uint8) uint8 {
		return uint8(float64(v) + (target-float64(v))*amount + 0.5)
	}
	return color.NRGBA{R: mix(n.R), G: mix(n.G), B: mix(n.B), A: n.A}
}
