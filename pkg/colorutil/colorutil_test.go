package colorutil

import (
	"image/color"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#1e1e22", color.NRGBA{R: 0x1e, G: 0x1e, B: 0x22, A: 0xff}, false},
		{"fff", color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, false},
		{"#10203040", color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0x40}, false},
		{"#12345", color.NRGBA{}, true},
		{"#zzzzzz", color.NRGBA{}, true},
		{"", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHex(t *testing.T) {
	if got := Hex(color.NRGBA{R: 0x1e, G: 0x1e, B: 0x22, A: 0xff}); got != "#1e1e22" {
		t.Errorf("Hex = %q", got)
	}
	if got := Hex(color.NRGBA{R: 1, G: 2, B: 3, A: 4}); got != "#01020304" {
		t.Errorf("Hex = %q", got)
	}
}

func TestShade(t *testing.T) {
	dark := Shade(Black, 0.5)
	if dark.R != 128 || dark.A != 255 {
		t.Errorf("Shade(black) = %v", dark)
	}
	light := Shade(White, 0.5)
	if light.R != 128 {
		t.Errorf("Shade(white) = %v", light)
	}
	if got := Shade(Black, 2); got != White {
		t.Errorf("amount not clamped: %v", got)
	}
}
