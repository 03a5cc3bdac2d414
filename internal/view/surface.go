// Package view holds the in-memory page the browser is shown: a goquery
// document that components look elements up in and mutate.
package view

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Element ids the page template must provide.
const (
	IDUploadForm    = "upload-form"
	IDSubmitButton  = "submit-btn"
	IDLoading       = "loading"
	IDErrorMessage  = "error-message"
	IDResultSection = "result-section"
	IDResultFile    = "result-filename"
	IDResultContent = "result-content"
)

var requiredIDs = []string{
	IDUploadForm,
	IDSubmitButton,
	IDLoading,
	IDErrorMessage,
	IDResultSection,
	IDResultFile,
	IDResultContent,
}

// Surface is a DOM-like page shared between request handlers. All access goes
// through Mutate or Read so concurrent handlers never see a half-written tree.
type Surface struct {
	mu  sync.RWMutex
	doc *goquery.Document
}

// NewSurface parses the page template and checks that every element the
// pipeline writes to exists.
func NewSurface(r io.Reader) (*Surface, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	var missing []string
	for _, id := range requiredIDs {
		if doc.Find("#"+id).Length() == 0 {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("page is missing elements: %s", strings.Join(missing, ", "))
	}
	return &Surface{doc: doc}, nil
}

// NewSurfaceFromBytes is NewSurface for an in-memory template.
func NewSurfaceFromBytes(page []byte) (*Surface, error) {
	return NewSurface(bytes.NewReader(page))
}

// Mutate runs fn with exclusive access to the document.
func (s *Surface) Mutate(fn func(doc *goquery.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.doc)
}

// Read runs fn with shared access to the document. fn must not modify it.
func (s *Surface) Read(fn func(doc *goquery.Document)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.doc)
}

// HTML serializes the whole page.
func (s *Surface) HTML() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Html()
}

// Text returns the trimmed text content of the elements matching selector.
func (s *Surface) Text(selector string) string {
	var text string
	s.Read(func(doc *goquery.Document) {
		text = strings.TrimSpace(doc.Find(selector).Text())
	})
	return text
}

// Count returns how many elements match selector.
func (s *Surface) Count(selector string) int {
	var n int
	s.Read(func(doc *goquery.Document) {
		n = doc.Find(selector).Length()
	})
	return n
}

// Visible reports whether the element with the given id lacks the hidden
// attribute.
func (s *Surface) Visible(id string) bool {
	var visible bool
	s.Read(func(doc *goquery.Document) {
		sel := doc.Find("#" + id)
		_, hidden := sel.Attr("hidden")
		visible = sel.Length() > 0 && !hidden
	})
	return visible
}

// SetLoading shows or hides the loading indicator and disables or enables the
// submit control.
func (s *Surface) SetLoading(loading bool) {
	_ = s.Mutate(func(doc *goquery.Document) error {
		indicator := doc.Find("#" + IDLoading)
		button := doc.Find("#" + IDSubmitButton)
		if loading {
			indicator.RemoveAttr("hidden")
			button.SetAttr("disabled", "disabled")
			doc.Find("body").SetAttr("aria-busy", "true")
		} else {
			indicator.SetAttr("hidden", "hidden")
			button.RemoveAttr("disabled")
			doc.Find("body").RemoveAttr("aria-busy")
		}
		return nil
	})
}

// Loading reports whether the loading indicator is shown.
func (s *Surface) Loading() bool {
	return s.Visible(IDLoading)
}

// ShowError replaces the error display with message.
func (s *Surface) ShowError(message string) {
	_ = s.Mutate(func(doc *goquery.Document) error {
		box := doc.Find("#" + IDErrorMessage)
		box.SetText(message)
		box.RemoveAttr("hidden")
		return nil
	})
}

// ClearError empties and hides the error display.
func (s *Surface) ClearError() {
	_ = s.Mutate(func(doc *goquery.Document) error {
		box := doc.Find("#" + IDErrorMessage)
		box.SetText("")
		box.SetAttr("hidden", "hidden")
		return nil
	})
}

// ErrorMessage returns the displayed error, or "" when none is shown.
func (s *Surface) ErrorMessage() string {
	if !s.Visible(IDErrorMessage) {
		return ""
	}
	return s.Text("#" + IDErrorMessage)
}
