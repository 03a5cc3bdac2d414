package ocr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed submission.
type ErrorKind string

const (
	// KindValidation is a client-side input problem; no request was sent.
	KindValidation ErrorKind = "validation"
	// KindNetwork means no response was obtained.
	KindNetwork ErrorKind = "network"
	// KindHTTP means the backend answered with a non-2xx status.
	KindHTTP ErrorKind = "http"
	// KindParse means a 2xx body was malformed or not a success envelope.
	KindParse ErrorKind = "parse"
)

// Error is the single error type surfaced to the user.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var ocrErr *Error
	if errors.As(err, &ocrErr) {
		return ocrErr, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ocrErr, ok := AsError(err)
	return ok && ocrErr.Kind == kind
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
}

func httpError(status int, message string) *Error {
	return &Error{Kind: KindHTTP, Status: status, Message: message}
}

func parseError(message string, err error) *Error {
	return &Error{Kind: KindParse, Message: message, Err: err}
}

// User-facing messages.
const (
	MsgMissingAPIKey = "Por favor, introduce tu API Key de Mistral AI."
	MsgMissingFile   = "Por favor, selecciona un archivo PDF."
	MsgNotPDF        = "El archivo seleccionado no es un PDF."
	MsgNetwork       = "No se pudo conectar con el servicio OCR. Revisa tu conexión e inténtalo de nuevo."
	MsgMalformed     = "La respuesta del servidor no tiene el formato esperado."
	MsgUnsuccessful  = "El servidor no pudo procesar el archivo."
)

// Multipart field names expected by the backend.
const (
	FieldAPIKey        = "api_key"
	FieldPDFFile       = "pdf_file"
	FieldIncludeImages = "include_images"
)

// RequestPayload is a ready-to-send multipart body.
type RequestPayload struct {
	Body          []byte
	ContentType   string
	FileName      string
	IncludeImages bool
}

// Config holds configuration for the OCR client
type Config struct {
	Endpoint         string
	TimeoutSeconds   int
	MaxResponseBytes int64
}

// Envelope is the backend's JSON body. Pointer fields distinguish absent (or
// null) values from empty ones.
type Envelope struct {
	Success          *bool          `json:"success"`
	Error            *string        `json:"error"`
	FileName         string         `json:"fileName"`
	Pages            []EnvelopePage `json:"pages"`
	ConcatenatedText *string        `json:"concatenated_text"`
	Text             *string        `json:"text"`
}

// EnvelopePage is one element of the envelope's pages array.
type EnvelopePage struct {
	Markdown *string           `json:"markdown"`
	Images   []json.RawMessage `json:"images"`
}

// envelopeImage is the object form of an image entry.
type envelopeImage struct {
	ID          string `json:"id"`
	ImageBase64 string `json:"image_base64"`
	URL         string `json:"url"`
	Caption     string `json:"caption"`
	Alt         string `json:"alt"`
}
