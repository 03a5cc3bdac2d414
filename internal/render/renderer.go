// Package render writes a normalized OCR result into the page.
package render

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"mistral-pdf-convert/internal/export"
	"mistral-pdf-convert/internal/models"
	"mistral-pdf-convert/internal/view"
)

// DefaultExportURL is the front-end route that serves the markdown download.
const DefaultExportURL = "/export"

// Labels shown in the rendered result.
const (
	LabelPage          = "Página"
	LabelBack          = "Volver al formulario"
	LabelDownload      = "Descargar Markdown"
	LabelEmptyPage     = "Esta página no contiene texto."
	LabelNoContent     = "El documento no contiene texto extraído."
	LabelConvertFailed = "No se pudo mostrar el contenido de esta sección."
)

// Options configures a Renderer.
type Options struct {
	// ExportURL is the href of the download affordance.
	ExportURL string
}

// Renderer writes results into a view.Surface, replacing whatever a previous
// call left there.
type Renderer struct {
	converter Converter
	exportURL string
	logger    *logrus.Logger
}

// NewRenderer creates a renderer. A nil converter selects goldmark.
func NewRenderer(converter Converter, opts Options, logger *logrus.Logger) *Renderer {
	if converter == nil {
		converter = NewMarkdownConverter()
	}
	if opts.ExportURL == "" {
		opts.ExportURL = DefaultExportURL
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Renderer{
		converter: converter,
		exportURL: opts.ExportURL,
		logger:    logger,
	}
}

// Render replaces the result section of target with result.
func (r *Renderer) Render(result *models.OcrResult, target *view.Surface) error {
	if target == nil {
		return fmt.Errorf("render target is nil")
	}
	if result == nil {
		result = &models.OcrResult{}
	}

	// Conversion happens before taking the surface lock.
	fragment := r.buildFragment(result)

	return target.Mutate(func(doc *goquery.Document) error {
		content := doc.Find("#" + view.IDResultContent)
		if content.Length() == 0 {
			return fmt.Errorf("result container #%s not found", view.IDResultContent)
		}
		content.SetHtml(fragment)
		r.linkPageImages(content, result)

		doc.Find("#" + view.IDResultFile).SetText(result.FileName)
		doc.Find("#" + view.IDResultSection).RemoveAttr("hidden")
		return nil
	})
}

func (r *Renderer) buildFragment(result *models.OcrResult) string {
	var b strings.Builder
	r.writeNav(&b, result)

	if result.HasPages() {
		for _, page := range result.Pages {
			r.writePage(&b, page)
		}
	} else if text, ok := present(result.ConcatenatedText); ok {
		b.WriteString(`<article class="document-markdown">`)
		b.WriteString(r.convert(text, "document"))
		b.WriteString(`</article>`)
	} else {
		fmt.Fprintf(&b, `<p id="no-content" class="placeholder">%s</p>`, html.EscapeString(LabelNoContent))
	}

	if _, ok := result.ExportText(); ok {
		fmt.Fprintf(&b, `<p class="export"><a id="download-btn" href="%s" download="%s">%s</a></p>`,
			html.EscapeString(r.exportURL),
			html.EscapeString(export.MarkdownFilename(result.FileName)),
			html.EscapeString(LabelDownload),
		)
	}
	return b.String()
}

func (r *Renderer) writeNav(b *strings.Builder, result *models.OcrResult) {
	b.WriteString(`<nav id="page-nav">`)
	if len(result.Pages) > 1 {
		b.WriteString(`<ol>`)
		for _, page := range result.Pages {
			fmt.Fprintf(b, `<li><a href="#page-%d">%s %d</a></li>`, page.Number(), LabelPage, page.Number())
		}
		b.WriteString(`</ol>`)
	}
	fmt.Fprintf(b, `<a id="back-link" href="#%s">%s</a>`, view.IDUploadForm, html.EscapeString(LabelBack))
	b.WriteString(`</nav>`)
}

func (r *Renderer) writePage(b *strings.Builder, page models.PageResult) {
	fmt.Fprintf(b, `<section class="page" id="page-%d" data-page="%d">`, page.Number(), page.Number())
	fmt.Fprintf(b, `<h3 class="page-header">%s %d</h3>`, LabelPage, page.Number())

	if text, ok := present(page.Markdown); ok {
		b.WriteString(`<div class="page-markdown">`)
		b.WriteString(r.convert(text, fmt.Sprintf("page %d", page.Number())))
		b.WriteString(`</div>`)
	} else {
		fmt.Fprintf(b, `<p class="placeholder">%s</p>`, html.EscapeString(LabelEmptyPage))
	}

	for _, img := range page.Images {
		writeImage(b, img)
	}
	b.WriteString(`</section>`)
}

func writeImage(b *strings.Builder, img models.ImageRef) {
	caption := img.Caption
	if caption == "" {
		caption = img.ID
	}
	b.WriteString(`<figure class="page-image"`)
	if img.ID != "" {
		fmt.Fprintf(b, ` data-image-id="%s"`, html.EscapeString(img.ID))
	}
	b.WriteString(`>`)
	if isSafeImageURL(img.URL) {
		fmt.Fprintf(b, `<img src="%s" alt="%s" loading="lazy">`, html.EscapeString(img.URL), html.EscapeString(caption))
	}
	if caption != "" {
		fmt.Fprintf(b, `<figcaption>%s</figcaption>`, html.EscapeString(caption))
	}
	b.WriteString(`</figure>`)
}

// convert never fails the whole render: a section that cannot be converted is
// replaced by a placeholder.
func (r *Renderer) convert(markdown, section string) string {
	out, err := r.converter.Convert(markdown)
	if err != nil {
		r.logger.WithError(err).WithField("section", section).Warn("Markdown conversion failed")
		return fmt.Sprintf(`<p class="placeholder">%s</p>`, html.EscapeString(LabelConvertFailed))
	}
	return out
}

// linkPageImages points <img> tags produced from markdown such as
// ![img-0.jpeg](img-0.jpeg) at the extracted image data.
func (r *Renderer) linkPageImages(content *goquery.Selection, result *models.OcrResult) {
	for _, page := range result.Pages {
		if len(page.Images) == 0 {
			continue
		}
		urls := make(map[string]string, len(page.Images))
		for _, img := range page.Images {
			if img.ID != "" && isSafeImageURL(img.URL) {
				urls[img.ID] = img.URL
			}
		}
		if len(urls) == 0 {
			continue
		}
		selector := fmt.Sprintf("#page-%d .page-markdown img", page.Number())
		content.Find(selector).Each(func(_ int, img *goquery.Selection) {
			src, _ := img.Attr("src")
			if u, ok := urls[src]; ok {
				img.SetAttr("src", u)
			}
		})
	}
}

func present(text *string) (string, bool) {
	if text == nil || strings.TrimSpace(*text) == "" {
		return "", false
	}
	return *text, true
}

func isSafeImageURL(u string) bool {
	lower := strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(lower, "data:image/") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "http://")
}
