package render

import (
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/wgd/deepsearch/internal/fonts"
)

// Page geometry of the original report layout: A4 portrait in millimeters.
const (
	marginLeft   = 12.0
	marginTop    = 15.0
	marginRight  = 12.0
	marginBottom = 15.0

	// Line height relative to the font size.
	lineHeightRatio = 0.6

	// Horizontal indent per list nesting level.
	listIndent = 5.0
)

// document is one in-progress PDF. Each rendering strategy builds its own
// document from scratch, because fpdf records errors sticky-style and a
// failed attempt would poison any later one.
type document struct {
	pdf        *fpdf.Fpdf
	fontSize   float64
	lineHeight float64
	effWidth   float64
	left       float64
}

// newDocument builds an empty A4 page with the CJK font registered and the
// base font size fitted to the usable width.
func newDocument(fontPath string) (*document, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.AddUTF8Font(fonts.DefaultFontName, "", fontPath)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.AddPage()
	pdf.SetFont(fonts.DefaultFontName, "", maxFontSize)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("preparing document: %w", err)
	}

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()

	size := ChooseFontSize(pdfMeasurer{pdf}, pageWidth, left, right, DefaultProbes)
	pdf.SetFontSize(size)

	return &document{
		pdf:        pdf,
		fontSize:   size,
		lineHeight: size * lineHeightRatio,
		effWidth:   pageWidth - left - right,
		left:       left,
	}, nil
}

// pdfMeasurer adapts an fpdf document to the Measurer interface.
type pdfMeasurer struct {
	pdf *fpdf.Fpdf
}

func (m pdfMeasurer) StringWidth(s string, size float64) float64 {
	m.pdf.SetFontSize(size)
	return m.pdf.GetStringWidth(s)
}

// setSize switches the active font size and the derived line height.
func (d *document) setSize(size float64) {
	d.pdf.SetFontSize(size)
}

// blankLine advances the cursor by one line height without drawing.
func (d *document) blankLine() {
	d.pdf.Ln(d.lineHeight)
}

// rule draws a horizontal separator across the usable width.
func (d *document) rule() {
	y := d.pdf.GetY() + d.lineHeight/2
	d.pdf.Line(d.left, y, d.left+d.effWidth, y)
	d.pdf.Ln(d.lineHeight)
}
