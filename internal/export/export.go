// Package export turns the concatenated OCR text into a downloadable markdown
// file.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MarkdownMediaType is the media type of exported files.
const MarkdownMediaType = "text/markdown; charset=utf-8"

// DefaultFilename is used when the source file name gives nothing usable.
const DefaultFilename = "resultado_ocr.md"

// Blob is binary data with a media type.
type Blob struct {
	Data      []byte
	MediaType string
}

// Registry hands out transient blob: references, the way a browser hands out
// object URLs. A reference resolves until it is revoked.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]Blob)}
}

// CreateObjectURL registers blob and returns its reference.
func (r *Registry) CreateObjectURL(blob Blob) string {
	ref := "blob:" + uuid.NewString()
	r.mu.Lock()
	r.blobs[ref] = blob
	r.mu.Unlock()
	return ref
}

// Resolve returns the blob behind ref.
func (r *Registry) Resolve(ref string) (Blob, bool) {
	r.mu.RLock()
	blob, ok := r.blobs[ref]
	r.mu.RUnlock()
	return blob, ok
}

// RevokeObjectURL releases ref. Revoking an unknown reference is a no-op.
func (r *Registry) RevokeObjectURL(ref string) {
	r.mu.Lock()
	delete(r.blobs, ref)
	r.mu.Unlock()
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Trigger performs the user-agent side of a download for a live reference.
type Trigger interface {
	Download(ref string, filename string) error
}

// Exporter produces markdown downloads.
type Exporter struct {
	blobs   *Registry
	trigger Trigger
	logger  *logrus.Logger
}

// NewExporter creates an exporter that resolves references through blobs.
func NewExporter(blobs *Registry, trigger Trigger, logger *logrus.Logger) *Exporter {
	if blobs == nil {
		blobs = NewRegistry()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Exporter{blobs: blobs, trigger: trigger, logger: logger}
}

// ExportText offers text as a UTF-8 markdown file named filename. The transient
// reference is released before returning, whether or not the trigger failed.
func (e *Exporter) ExportText(text, filename string) error {
	if e.trigger == nil {
		return fmt.Errorf("export: no download trigger configured")
	}
	filename = sanitizeFilename(filename)

	ref := e.blobs.CreateObjectURL(Blob{Data: []byte(text), MediaType: MarkdownMediaType})
	defer e.blobs.RevokeObjectURL(ref)

	if err := e.trigger.Download(ref, filename); err != nil {
		e.logger.WithError(err).WithField("filename", filename).Warn("Markdown download failed")
		return fmt.Errorf("download %s: %w", filename, err)
	}
	e.logger.WithFields(logrus.Fields{
		"filename": filename,
		"bytes":    len(text),
	}).Debug("Markdown download triggered")
	return nil
}

// MarkdownFilename derives the export name from the source file name:
// "informe.pdf" becomes "informe.md".
func MarkdownFilename(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return DefaultFilename
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(stem) == "" {
		return DefaultFilename
	}
	return stem + ".md"
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return DefaultFilename
	}
	if !strings.HasSuffix(strings.ToLower(name), ".md") {
		name += ".md"
	}
	return name
}
