package models

import "strings"

// FileHandle is the PDF picked in the upload form.
type FileHandle struct {
	Name      string
	MediaType string // declared by the browser, may be empty
	Data      []byte
}

// SubmissionInput is built fresh from the form for every submission.
type SubmissionInput struct {
	APIKey        string
	File          *FileHandle
	IncludeImages bool
}

// APIKeySuffix returns the last four characters of the key for log output.
func (in SubmissionInput) APIKeySuffix() string {
	key := strings.TrimSpace(in.APIKey)
	if len(key) < 4 {
		return "..."
	}
	return key[len(key)-4:]
}

// ImageRef points at an image extracted from a page.
type ImageRef struct {
	ID      string
	URL     string
	Caption string
}

// PageResult is one page of a normalized OCR result. A nil Markdown means the
// backend sent no text for the page.
type PageResult struct {
	Index    int
	Markdown *string
	Images   []ImageRef
}

// Number is the 1-based page number shown to users.
func (p PageResult) Number() int {
	return p.Index + 1
}

// OcrResult is the normalized success payload.
type OcrResult struct {
	FileName         string
	Pages            []PageResult
	ConcatenatedText *string
}

// HasPages reports whether per-page rendering applies.
func (r *OcrResult) HasPages() bool {
	return r != nil && len(r.Pages) > 0
}

// ExportText returns the concatenated text and whether it can be exported.
func (r *OcrResult) ExportText() (string, bool) {
	if r == nil || r.ConcatenatedText == nil {
		return "", false
	}
	text := *r.ConcatenatedText
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// SubmissionState is the controller's position in the submission cycle.
type SubmissionState int

const (
	StateIdle SubmissionState = iota
	StateValidating
	StateSubmitting
	StateRendering
	StateError
)

func (s SubmissionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateRendering:
		return "rendering"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear by name in JSON responses.
func (s SubmissionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Busy reports whether a submission is in flight.
func (s SubmissionState) Busy() bool {
	return s == StateValidating || s == StateSubmitting || s == StateRendering
}

// StringPtr returns a pointer to a copy of v.
func StringPtr(v string) *string {
	return &v
}
