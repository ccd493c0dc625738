package render

import "fmt"

// Format selects the target encoding of a rendered report.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unknown format %q (want markdown or pdf)", s)
	}
}

// Ext returns the file extension for download artifacts in this format.
func (f Format) Ext() string {
	if f == FormatPDF {
		return ".pdf"
	}
	return ".md"
}

// MIME returns the content type served for this format.
func (f Format) MIME() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/markdown"
}
