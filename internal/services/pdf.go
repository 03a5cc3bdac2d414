package services

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// PageCount reads the number of pages from in-memory PDF bytes. The parser
// panics on some malformed files; that is reported as an error.
func (s *PDFService) PageCount(data []byte) (pages int, err error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("pdf is empty")
	}
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf for page count: %w", err)
	}
	numPages := reader.NumPage()
	if numPages == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return numPages, nil
}
