package ocr

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"mistral-pdf-convert/internal/models"
)

var pdfMediaTypes = map[string]bool{
	"application/pdf":   true,
	"application/x-pdf": true,
}

// IsPDFMediaType reports whether a declared media type names a PDF. Parameters
// such as charset are ignored.
func IsPDFMediaType(mediaType string) bool {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		parsed = strings.ToLower(strings.TrimSpace(mediaType))
	}
	return pdfMediaTypes[parsed]
}

// BuildRequest validates the input and encodes it as the multipart body the
// backend expects. It has no side effects.
func BuildRequest(input models.SubmissionInput) (*RequestPayload, error) {
	if strings.TrimSpace(input.APIKey) == "" {
		return nil, validationError(MsgMissingAPIKey)
	}
	if input.File == nil {
		return nil, validationError(MsgMissingFile)
	}
	if input.File.MediaType != "" && !IsPDFMediaType(input.File.MediaType) {
		return nil, validationError(MsgNotPDF)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField(FieldAPIKey, input.APIKey); err != nil {
		return nil, fmt.Errorf("write %s field: %w", FieldAPIKey, err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     FieldPDFFile,
		"filename": input.File.Name,
	}))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create %s part: %w", FieldPDFFile, err)
	}
	if _, err := part.Write(input.File.Data); err != nil {
		return nil, fmt.Errorf("write %s part: %w", FieldPDFFile, err)
	}

	if err := writer.WriteField(FieldIncludeImages, strconv.FormatBool(input.IncludeImages)); err != nil {
		return nil, fmt.Errorf("write %s field: %w", FieldIncludeImages, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &RequestPayload{
		Body:          body.Bytes(),
		ContentType:   writer.FormDataContentType(),
		FileName:      input.File.Name,
		IncludeImages: input.IncludeImages,
	}, nil
}
