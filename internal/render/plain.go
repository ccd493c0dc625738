package render

import (
	"fmt"
	"strings"
	"unicode"
)

// lineTooWideError reports that a line contains an unbreakable run wider
// than the usable page width at the current font size.
type lineTooWideError struct {
	run   string
	width float64
	limit float64
}

func (e *lineTooWideError) Error() string {
	run := e.run
	if len(run) > 20 {
		run = run[:20] + "…"
	}
	return fmt.Sprintf("unbreakable run %q measures %.1fmm, usable width is %.1fmm", run, e.width, e.limit)
}

// lineVariant is one ranked representation of a line of text. Variants are
// tried in order; the first one that fits is written. This replaces the
// original's nested exception handlers with typed per-line results.
type lineVariant struct {
	name      string
	transform func(string) string
}

var lineVariants = []lineVariant{
	{name: "verbatim", transform: func(s string) string { return s }},
	{name: "breakable", transform: insertBreakPoints},
	{name: "transliterated", transform: func(s string) string { return insertBreakPoints(transliterate(s)) }},
}

// renderPlain is the defensive plain-text strategy: blank lines advance the
// cursor, every other line goes through the per-line fallback chain. A
// problematic line degrades to an approximation instead of aborting the
// whole document.
func renderPlain(d *document, text string) error {
	for _, raw := range strings.Split(text, "\n") {
		if strings.TrimSpace(raw) == "" {
			d.blankLine()
			continue
		}
		if err := d.writeLine(raw); err != nil {
			return err
		}
	}
	return d.pdf.Error()
}

// writeLine writes one line at the base size with no indent.
func (d *document) writeLine(line string) error {
	return d.write(line, d.lineHeight, 0)
}

// write renders a line into a bounded text box, trying each line variant in
// turn. lineHeight is the row advance; indent shifts the box right and
// narrows it accordingly.
func (d *document) write(line string, lineHeight, indent float64) error {
	width := d.effWidth - indent

	var lastErr error
	for _, v := range lineVariants {
		candidate := v.transform(line)
		if run, w := d.widestRun(candidate, width); w >= width {
			lastErr = &lineTooWideError{run: run, width: w, limit: width}
			continue
		}
		d.pdf.SetX(d.left + indent)
		d.pdf.MultiCell(width, lineHeight, candidate, "", "L", false)
		return d.pdf.Error()
	}
	return lastErr
}

// widestRun measures the widest unbreakable token of s at the current font
// size. Whitespace and zero-width spaces are break opportunities.
func (d *document) widestRun(s string, limit float64) (string, float64) {
	var widest string
	var widestW float64
	for _, run := range splitRuns(s) {
		if w := d.pdf.GetStringWidth(run); w > widestW {
			widest, widestW = run, w
		}
		// Past the limit already; no need to keep measuring.
		if widestW >= limit {
			break
		}
	}
	return widest, widestW
}

// splitRuns breaks a line into unbreakable runs at whitespace and zero-width
// space boundaries.
func splitRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == zeroWidthSpace
	})
}

const zeroWidthSpace = '​'

// insertBreakPoints joins every rune of s with zero-width spaces, giving the
// layout a break opportunity between any two characters.
func insertBreakPoints(s string) string {
	runes := []rune(s)
	if len(runes) < 2 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for i, r := range runes {
		if i > 0 {
			sb.WriteRune(zeroWidthSpace)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// transliterate degrades s to a Latin-1 representable approximation,
// substituting a placeholder for every other rune.
func transliterate(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r <= unicode.MaxLatin1 {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('?')
		}
	}
	return sb.String()
}
