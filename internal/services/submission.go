package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mistral-pdf-convert/internal/models"
	"mistral-pdf-convert/internal/ocr"
	"mistral-pdf-convert/internal/view"
)

// ErrSubmissionInFlight is returned when a submit arrives while another one is
// still being validated, sent or rendered. The new submit is dropped.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// MsgRenderFailed is shown when a successful response cannot be displayed.
const MsgRenderFailed = "No se pudo mostrar el resultado del OCR."

// MsgUnexpected is shown when a submission stops on an internal fault.
const MsgUnexpected = "Se produjo un error inesperado al procesar el documento."

var errPanicked = errors.New("submission panicked")

// OCRClient sends a built request to the backend.
type OCRClient interface {
	Submit(ctx context.Context, payload *ocr.RequestPayload) (*models.OcrResult, error)
}

// PageCounter reads the page count of an uploaded PDF.
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

// ResultRenderer writes a result into the page.
type ResultRenderer interface {
	Render(result *models.OcrResult, target *view.Surface) error
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State    models.SubmissionState `json:"state"`
	Loading  bool                   `json:"loading"`
	Error    string                 `json:"error,omitempty"`
	FileName string                 `json:"fileName,omitempty"`
	Pages    int                    `json:"pages"`
}

// SubmissionController drives one submission at a time through
// validating, submitting, rendering (or error) and back to idle.
type SubmissionController struct {
	client   OCRClient
	renderer ResultRenderer
	surface  *view.Surface
	pdf      PageCounter
	logger   *logrus.Logger

	mu        sync.Mutex
	state     models.SubmissionState
	current   *models.OcrResult
	lastError string
}

// NewSubmissionController wires the controller to its collaborators. The
// surface is both the render target and the loading/error display.
func NewSubmissionController(
	client OCRClient,
	renderer ResultRenderer,
	surface *view.Surface,
	pdf PageCounter,
	logger *logrus.Logger,
) *SubmissionController {
	if pdf == nil {
		pdf = NewPDFService()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &SubmissionController{
		client:   client,
		renderer: renderer,
		surface:  surface,
		pdf:      pdf,
		logger:   logger,
		state:    models.StateIdle,
	}
}

// Submit runs one full submission cycle and returns the result it rendered.
// It returns ErrSubmissionInFlight when another submission is active, or the
// error that was displayed when the submission failed.
func (c *SubmissionController) Submit(ctx context.Context, input models.SubmissionInput) (result *models.OcrResult, err error) {
	if !c.begin() {
		c.logger.Debug("Submit ignored: a submission is already in progress")
		return nil, ErrSubmissionInFlight
	}

	log := c.logger.WithFields(logrus.Fields{
		"submission_id": uuid.NewString(),
		"api_key":       "..." + input.APIKeySuffix(),
	})
	if input.File != nil {
		log = log.WithField("file_name", input.File.Name)
	}

	// A panicking collaborator must not leave the controller busy forever.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = c.fail(log, fmt.Errorf("%w: %v", errPanicked, r))
		}
	}()

	c.surface.ClearError()

	payload, err := ocr.BuildRequest(input)
	if err != nil {
		return nil, c.fail(log, err)
	}
	if c.logger.IsLevelEnabled(logrus.DebugLevel) {
		c.logPageCount(log, input.File)
	}

	result, err = c.send(ctx, log, payload)
	if err != nil {
		return nil, c.fail(log, err)
	}

	c.transition(models.StateRendering)
	if err := c.renderer.Render(result, c.surface); err != nil {
		return nil, c.fail(log, fmt.Errorf("render result: %w", err))
	}

	c.mu.Lock()
	c.current = result
	c.state = models.StateIdle
	c.mu.Unlock()

	log.WithField("pages", len(result.Pages)).Info("Submission rendered")
	return result, nil
}

// Reject displays a failure that happened before a submission could start,
// such as an unreadable upload. It does not change the submission state.
func (c *SubmissionController) Reject(message string) {
	c.mu.Lock()
	c.lastError = message
	c.mu.Unlock()

	c.surface.ShowError(message)
	c.logger.WithField("error", message).Warn("Submission rejected before start")
}

// send holds the loading state for exactly the duration of the network call.
func (c *SubmissionController) send(ctx context.Context, log *logrus.Entry, payload *ocr.RequestPayload) (*models.OcrResult, error) {
	c.transition(models.StateSubmitting)
	c.surface.SetLoading(true)
	defer c.surface.SetLoading(false)

	log.Debug("Submitting to OCR backend")
	return c.client.Submit(ctx, payload)
}

func (c *SubmissionController) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Busy() {
		return false
	}
	c.state = models.StateValidating
	c.lastError = ""
	return true
}

func (c *SubmissionController) transition(state models.SubmissionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// fail shows the error's message, leaves any previous result in place and
// returns the controller to idle.
func (c *SubmissionController) fail(log *logrus.Entry, err error) error {
	message := MsgRenderFailed
	if errors.Is(err, errPanicked) {
		message = MsgUnexpected
	}
	if ocrErr, ok := ocr.AsError(err); ok {
		message = ocrErr.Message
		log = log.WithField("kind", ocrErr.Kind)
		if ocrErr.Kind == ocr.KindHTTP {
			log = log.WithField("status", ocrErr.Status)
		}
	}

	c.mu.Lock()
	c.state = models.StateError
	c.lastError = message
	c.mu.Unlock()

	c.surface.ShowError(message)
	log.WithError(err).Warn("Submission failed")

	c.transition(models.StateIdle)
	return err
}

func (c *SubmissionController) logPageCount(log *logrus.Entry, file *models.FileHandle) {
	pages, err := c.pdf.PageCount(file.Data)
	if err != nil {
		log.WithError(err).Debug("Could not read page count before upload")
		return
	}
	log.WithField("source_pages", pages).Debug("PDF inspected before upload")
}

// State returns the current submission state.
func (c *SubmissionController) State() models.SubmissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the result on display, or nil when none has been rendered.
func (c *SubmissionController) Current() *models.OcrResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Snapshot returns the state the UI needs to draw itself.
func (c *SubmissionController) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State: c.state,
		Error: c.lastError,
	}
	if c.current != nil {
		snap.FileName = c.current.FileName
		snap.Pages = len(c.current.Pages)
	}
	c.mu.Unlock()

	snap.Loading = c.surface.Loading()
	return snap
}

// Surface returns the page the controller renders into.
func (c *SubmissionController) Surface() *view.Surface {
	return c.surface
}
