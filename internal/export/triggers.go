package export

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// ResponseTrigger answers an HTTP request with the blob as an attachment.
type ResponseTrigger struct {
	w     http.ResponseWriter
	blobs *Registry
}

// NewResponseTrigger creates a trigger writing to w.
func NewResponseTrigger(w http.ResponseWriter, blobs *Registry) *ResponseTrigger {
	return &ResponseTrigger{w: w, blobs: blobs}
}

// Download implements Trigger
func (t *ResponseTrigger) Download(ref string, filename string) error {
	blob, ok := t.blobs.Resolve(ref)
	if !ok {
		return fmt.Errorf("reference %s is not live", ref)
	}
	t.w.Header().Set("Content-Type", blob.MediaType)
	t.w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	t.w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	t.w.Header().Set("Cache-Control", "no-store")
	t.w.WriteHeader(http.StatusOK)
	if _, err := t.w.Write(blob.Data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// FileTrigger saves the blob into a directory. The write goes through a
// temporary file that is renamed into place, so a failed export never leaves a
// truncated file behind.
type FileTrigger struct {
	dir   string
	blobs *Registry

	// Saved holds the path of the last file written.
	Saved string
}

// NewFileTrigger creates a trigger writing into dir.
func NewFileTrigger(dir string, blobs *Registry) *FileTrigger {
	return &FileTrigger{dir: dir, blobs: blobs}
}

// Download implements Trigger
func (t *FileTrigger) Download(ref string, filename string) error {
	blob, ok := t.blobs.Resolve(ref)
	if !ok {
		return fmt.Errorf("reference %s is not live", ref)
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("ensure export dir: %w", err)
	}

	tmp, err := os.CreateTemp(t.dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(blob.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	target := filepath.Join(t.dir, filename)
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("move export into place: %w", err)
	}
	committed = true
	t.Saved = target
	return nil
}
