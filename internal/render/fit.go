package render

// Measurer reports the rendered width, in document units, of a string at a
// given font size. The production implementation wraps an fpdf document with
// the CJK font selected; tests supply fakes.
type Measurer interface {
	StringWidth(s string, size float64) float64
}

const (
	maxFontSize = 12
	minFontSize = 7
)

// DefaultProbes is the glyph probe set used to size report text: one wide
// CJK glyph and one wide Latin glyph. A size only qualifies when the widest
// probe fits inside the usable width, so even single-glyph lines always fit.
var DefaultProbes = []string{"汉", "W"}

// ChooseFontSize returns the largest size from 12 down to 7 at which every
// probe glyph measures strictly narrower than the usable page width
// (pageWidth minus horizontal margins). When no candidate qualifies it
// returns the floor size 7 so the renderer always has a usable size, even
// on pathologically narrow pages.
func ChooseFontSize(m Measurer, pageWidth, leftMargin, rightMargin float64, probes []string) float64 {
	if len(probes) == 0 {
		probes = DefaultProbes
	}
	effectiveWidth := pageWidth - leftMargin - rightMargin

	for size := float64(maxFontSize); size >= minFontSize; size-- {
		widest := 0.0
		for _, p := range probes {
			if w := m.StringWidth(p, size); w > widest {
				widest = w
			}
		}
		if widest < effectiveWidth {
			return size
		}
	}
	return minFontSize
}
