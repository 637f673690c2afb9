// Package fonts provides metrics for the standard PDF fonts the engine draws
// with, WinAnsi text encoding, and width-aware line wrapping.
package fonts

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Family is the PostScript name of one of the standard fonts.
type Family string

const (
	Helvetica     Family = "Helvetica"
	HelveticaBold Family = "Helvetica-Bold"
	TimesRoman    Family = "Times-Roman"
	TimesBold     Family = "Times-Bold"
	Courier       Family = "Courier"
	CourierBold   Family = "Courier-Bold"
)

// Metrics describes a standard font in 1/1000 em units.
type Metrics struct {
	Family    Family
	Ascent    float64
	Descent   float64
	CapHeight float64
	widths    *[95]int16
	fixed     float64 // monospaced advance, zero for proportional fonts
	fallback  float64 // advance for glyphs outside ASCII
}

var courierWidth = 600.0

var standard = map[Family]*Metrics{
	Helvetica:     {Family: Helvetica, Ascent: 718, Descent: -207, CapHeight: 718, widths: &helveticaWidths, fallback: 556},
	HelveticaBold: {Family: HelveticaBold, Ascent: 718, Descent: -207, CapHeight: 718, widths: &helveticaBoldWidths, fallback: 611},
	TimesRoman:    {Family: TimesRoman, Ascent: 683, Descent: -217, CapHeight: 662, widths: &timesRomanWidths, fallback: 500},
	TimesBold:     {Family: TimesBold, Ascent: 676, Descent: -205, CapHeight: 676, widths: &timesBoldWidths, fallback: 500},
	Courier:       {Family: Courier, Ascent: 629, Descent: -157, CapHeight: 562, fixed: courierWidth},
	CourierBold:   {Family: CourierBold, Ascent: 626, Descent: -142, CapHeight: 562, fixed: courierWidth},
}

// Lookup returns the metrics of a standard font.
func Lookup(f Family) (*Metrics, error) {
	m, ok := standard[f]
	if !ok {
		return nil, fmt.Errorf("unknown standard font %q", f)
	}
	return m, nil
}

// MustLookup is Lookup for the package's own constants.
func MustLookup(f Family) *Metrics {
	m, err := Lookup(f)
	if err != nil {
		panic(err)
	}
	return m
}

// Families lists the supported fonts in a stable order.
func Families() []Family {
	return []Family{Helvetica, HelveticaBold, TimesRoman, TimesBold, Courier, CourierBold}
}

// Bold returns the bold variant of f, or f itself when it is already bold.
func (f Family) Bold() Family {
	switch f {
	case Helvetica:
		return HelveticaBold
	case TimesRoman:
		return TimesBold
	case Courier:
		return CourierBold
	}
	return f
}

// GlyphWidth returns the advance of r in 1/1000 em.
func (m *Metrics) GlyphWidth(r rune) float64 {
	if m.fixed > 0 {
		return m.fixed
	}
	b, ok := charmap.Windows1252.EncodeRune(r)
	if !ok {
		b = '?'
	}
	if b >= 32 && b <= 126 {
		return float64(m.widths[b-32])
	}
	return m.fallback
}

// TextWidth returns the width of s in points at the given font size.
func (m *Metrics) TextWidth(s string, size float64) float64 {
	var w float64
	for _, r := range s {
		w += m.GlyphWidth(r)
	}
	return w * size / 1000
}

// Height returns the distance from descender to ascender at size.
func (m *Metrics) Height(size float64) float64 {
	return (m.Ascent - m.Descent) * size / 1000
}

// EncodeWinAnsi converts s to WinAnsiEncoding bytes. Runes without a
// WinAnsi code become '?'.
func EncodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// DecodeWinAnsi converts WinAnsiEncoding bytes to a Go string.
func DecodeWinAnsi(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(charmap.Windows1252.DecodeByte(c))
	}
	return sb.String()
}
