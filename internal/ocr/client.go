package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mistral-pdf-convert/internal/models"
)

const (
	// DefaultEndpoint is the backend route served next to the front end.
	DefaultEndpoint = "http://localhost:8000/api/ocr-pdf"

	// DefaultTimeoutSeconds matches the backend's own OCR timeout.
	DefaultTimeoutSeconds = 300

	// DefaultMaxResponseBytes bounds the body read; pages with inline images
	// can be large.
	DefaultMaxResponseBytes = 256 << 20
)

// Client sends one OCR request per Submit call. It never retries: OCR jobs are
// costly and the backend does not treat them as idempotent.
type Client struct {
	endpoint   string
	maxBody    int64
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates an OCR client, filling unset configuration with defaults.
func NewClient(config Config, logger *logrus.Logger) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Client{
		endpoint: config.Endpoint,
		maxBody:  config.MaxResponseBytes,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit posts the payload and returns the normalized result. Every failure is
// returned as *Error.
func (c *Client) Submit(ctx context.Context, payload *RequestPayload) (*models.OcrResult, error) {
	if payload == nil {
		return nil, validationError(MsgMissingFile)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload.Body))
	if err != nil {
		return nil, networkError(fmt.Errorf("create http request: %w", err))
	}
	httpReq.Header.Set("Content-Type", payload.ContentType)
	httpReq.Header.Set("Accept", "application/json")

	log := c.logger.WithFields(logrus.Fields{
		"endpoint":       c.endpoint,
		"file_name":      payload.FileName,
		"include_images": payload.IncludeImages,
		"payload_kb":     len(payload.Body) / 1024,
	})
	log.Debug("Sending OCR request")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.WithError(err).Warn("OCR request failed before a response was received")
		return nil, networkError(fmt.Errorf("execute ocr request: %w", err))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		log.WithError(err).Warn("Failed to read OCR response body")
		return nil, networkError(fmt.Errorf("read response body: %w", err))
	}

	log = log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(started).Round(time.Millisecond),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := httpErrorMessage(resp.StatusCode, body)
		log.WithField("error", message).Warn("OCR backend returned an error status")
		return nil, httpError(resp.StatusCode, message)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.WithError(err).Warn("OCR response is not valid JSON")
		return nil, parseError(MsgMalformed, fmt.Errorf("decode ocr response: %w", err))
	}
	if env.Success == nil || !*env.Success {
		message := MsgMalformed
		if env.Success != nil {
			message = MsgUnsuccessful
		}
		if env.Error != nil && strings.TrimSpace(*env.Error) != "" {
			message = *env.Error
		}
		log.WithField("error", message).Warn("OCR response is not a success envelope")
		return nil, parseError(message, nil)
	}

	result := Normalize(&env)
	if result.FileName == "" {
		result.FileName = payload.FileName
	}
	log.WithField("pages", len(result.Pages)).Info("OCR request completed")
	return result, nil
}

// httpErrorMessage prefers the backend's own error field and falls back to a
// message built from the status code.
func httpErrorMessage(status int, body []byte) string {
	var env struct {
		Error  *string `json:"error"`
		Detail any     `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != nil && strings.TrimSpace(*env.Error) != "" {
			return *env.Error
		}
		if detail, ok := env.Detail.(string); ok && strings.TrimSpace(detail) != "" {
			return detail
		}
	}
	return GenericHTTPMessage(status)
}

// GenericHTTPMessage is shown when an error response carries no usable message.
func GenericHTTPMessage(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("Error del servidor (código %d).", status)
	}
	return fmt.Sprintf("Error del servidor (código %d: %s).", status, text)
}
