package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Converter turns markdown into HTML. Callers must only pass text that is
// actually present.
type Converter interface {
	Convert(markdown string) (string, error)
}

// MarkdownConverter converts with goldmark. Raw HTML in the source is omitted
// and dangerous link schemes are dropped, so the output is safe to insert into
// the page.
type MarkdownConverter struct {
	md goldmark.Markdown
}

// NewMarkdownConverter creates a converter with GitHub flavoured extensions,
// which OCR output uses for tables.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// Convert implements Converter
func (c *MarkdownConverter) Convert(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}
