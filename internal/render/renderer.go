// Package render turns Markdown research reports into downloadable
// artifacts. Markdown output is the report verbatim; PDF output goes through
// an ordered chain of rendering strategies so that hostile content degrades
// instead of failing.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wgd/deepsearch/internal/fonts"
)

// ErrRenderFailed is returned when every PDF rendering strategy has been
// exhausted.
var ErrRenderFailed = errors.New("render failed")

// Renderer renders reports using a provisioned CJK font.
type Renderer struct {
	fonts *fonts.Provisioner
}

// New creates a Renderer backed by the given font provisioner.
func New(p *fonts.Provisioner) *Renderer {
	return &Renderer{fonts: p}
}

// strategy is one way of producing a PDF from report text. Strategies are
// tried in order and the first success wins.
type strategy struct {
	name   string
	render func(d *document, text string) error
}

var pdfStrategies = []strategy{
	{name: "structured", render: renderStructured},
	{name: "plain", render: renderPlain},
}

// Render converts text to the requested format. Markdown is returned
// verbatim. PDF requires the CJK font; provisioning failure fails the whole
// render, every later failure falls through the strategy chain.
func (r *Renderer) Render(ctx context.Context, text string, format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(text), nil
	case FormatPDF:
		return r.renderPDF(ctx, text)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func (r *Renderer) renderPDF(ctx context.Context, text string) ([]byte, error) {
	fontPath, err := r.fonts.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("downloading CJK font failed: %w", err)
	}

	var lastErr error
	for _, s := range pdfStrategies {
		doc, err := newDocument(fontPath)
		if err != nil {
			lastErr = err
			continue
		}
		if err := s.render(doc, text); err != nil {
			lastErr = fmt.Errorf("%s strategy: %w", s.name, err)
			continue
		}

		var buf bytes.Buffer
		if err := doc.pdf.Output(&buf); err != nil {
			lastErr = fmt.Errorf("%s strategy: serializing document: %w", s.name, err)
			continue
		}
		return buf.Bytes(), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrRenderFailed, lastErr)
}
