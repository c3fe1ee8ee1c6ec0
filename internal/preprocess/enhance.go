package preprocess

import (
	"fmt"
	"strings"
)

// Mode selects contrast/brightness factors and binarization aggressiveness
type Mode int

const (
	Original Mode = iota
	Soft
	Strong
)

func (m Mode) String() string {
	switch m {
	case Original:
		return "original"
	case Soft:
		return "soft"
	case Strong:
		return "strong"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the lowercase names produced by String
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "original":
		return Original, nil
	case "soft":
		return Soft, nil
	case "strong":
		return Strong, nil
	}
	return Original, fmt.Errorf("unknown enhancement mode %q", s)
}

// MarshalText implements encoding.TextMarshaler so modes travel as names in JSON
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case Original, Soft, Strong:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("invalid enhancement mode %d", int(m))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type enhancement struct {
	contrast   float64
	brightness float64
}

var enhancements = map[Mode]enhancement{
	Soft:   {contrast: 1.1, brightness: 2},
	Strong: {contrast: 1.3, brightness: 10},
}

// Luma returns the BT.601 luminance of an RGB triple
func Luma(r, g, b byte) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// Enhance converts the buffer to grayscale and stretches contrast around 128,
// in place. Original mode leaves the buffer untouched.
func Enhance(buf *PixelBuffer, mode Mode) {
	buf.mustBeValid()
	e, ok := enhancements[mode]
	if !ok {
		return
	}

	rowBytes := buf.Width * 4
	forEachRowRange(buf.Height, func(_, y0, y1 int) {
		pix := buf.Pix[y0*rowBytes : y1*rowBytes]
		for i := 0; i < len(pix); i += 4 {
			gray := Luma(pix[i], pix[i+1], pix[i+2])
			v := clampByte((gray-128)*e.contrast + 128 + e.brightness)
			pix[i], pix[i+1], pix[i+2] = v, v, v
		}
	})
}

// clampByte rounds to the nearest integer and clamps into [0,255]
func clampByte(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}
