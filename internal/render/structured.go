package render

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// renderStructured is the preferred strategy: it parses the Markdown into an
// AST (same extension set the original enabled: tables, fenced code, hard
// line breaks, sane lists) and renders headings, paragraphs, nested lists,
// code blocks, quotes and rules as styled paginated text. Paragraph bodies
// still go through the per-line fallback chain, so an unbreakable run cannot
// sink this tier by itself.
func renderStructured(d *document, text string) (err error) {
	// gomarkdown has no error return; a panic on hostile input must fall
	// through to the plain-text strategy instead of taking the process down.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("markdown rendering panicked: %v", r)
		}
	}()

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.HardLineBreak)
	root := p.Parse([]byte(text))

	sr := structuredRenderer{d: d}
	if err := sr.renderBlocks(root.GetChildren(), 0); err != nil {
		return err
	}
	return d.pdf.Error()
}

type structuredRenderer struct {
	d *document
}

func (sr *structuredRenderer) renderBlocks(blocks []ast.Node, indent float64) error {
	for _, block := range blocks {
		if err := sr.renderBlock(block, indent); err != nil {
			return err
		}
	}
	return nil
}

func (sr *structuredRenderer) renderBlock(block ast.Node, indent float64) error {
	d := sr.d
	switch n := block.(type) {
	case *ast.Heading:
		size := headingSize(d.fontSize, n.Level)
		d.setSize(size)
		err := d.write(inlineText(n), size*lineHeightRatio, indent)
		d.setSize(d.fontSize)
		if err != nil {
			return err
		}
		d.blankLine()

	case *ast.Paragraph:
		if err := sr.writeText(inlineText(n), indent); err != nil {
			return err
		}
		d.blankLine()

	case *ast.List:
		if err := sr.renderList(n, indent); err != nil {
			return err
		}
		if indent == 0 {
			d.blankLine()
		}

	case *ast.CodeBlock:
		if err := sr.writeText(strings.TrimRight(string(n.Literal), "\n"), indent+listIndent); err != nil {
			return err
		}
		d.blankLine()

	case *ast.BlockQuote:
		if err := sr.renderBlocks(n.GetChildren(), indent+listIndent); err != nil {
			return err
		}

	case *ast.HorizontalRule:
		d.rule()

	default:
		// Tables and anything else unhandled degrade to their text content.
		if text := inlineText(block); text != "" {
			if err := sr.writeText(text, indent); err != nil {
				return err
			}
			d.blankLine()
		}
	}
	return nil
}

func (sr *structuredRenderer) renderList(list *ast.List, indent float64) error {
	ordered := list.ListFlags&ast.ListTypeOrdered != 0
	idx := 1
	for _, child := range list.GetChildren() {
		item, ok := child.(*ast.ListItem)
		if !ok {
			continue
		}

		marker := "• "
		if ordered {
			marker = fmt.Sprintf("%d. ", idx)
			idx++
		}

		first := true
		for _, ic := range item.GetChildren() {
			if nested, ok := ic.(*ast.List); ok {
				if err := sr.renderList(nested, indent+listIndent); err != nil {
					return err
				}
				continue
			}
			text := inlineText(ic)
			for _, line := range strings.Split(text, "\n") {
				prefix := strings.Repeat(" ", len(marker))
				if first {
					prefix = marker
					first = false
				}
				if err := sr.d.write(prefix+line, sr.d.lineHeight, indent); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// writeText writes a possibly multi-line text block line by line.
func (sr *structuredRenderer) writeText(text string, indent float64) error {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			sr.d.blankLine()
			continue
		}
		if err := sr.d.write(line, sr.d.lineHeight, indent); err != nil {
			return err
		}
	}
	return nil
}

// headingSize scales the fitted base size up for the top heading levels.
func headingSize(base float64, level int) float64 {
	switch level {
	case 1:
		return base + 6
	case 2:
		return base + 4
	case 3:
		return base + 2
	default:
		return base + 1
	}
}

// inlineText flattens a node's inline content to plain text. Soft and hard
// breaks become newlines; code spans keep their literal text.
func inlineText(node ast.Node) string {
	var sb strings.Builder
	ast.WalkFunc(node, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch v := n.(type) {
		case *ast.Text:
			sb.Write(v.Literal)
		case *ast.Code:
			sb.Write(v.Literal)
		case *ast.Softbreak, *ast.Hardbreak:
			sb.WriteByte('\n')
		}
		return ast.GoToNext
	})
	return sb.String()
}
