package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"mistral-pdf-convert/internal/export"
	"mistral-pdf-convert/internal/models"
	"mistral-pdf-convert/internal/ocr"
	"mistral-pdf-convert/internal/render"
	"mistral-pdf-convert/internal/services"
)

const maxMultipartMemory = 8 << 20 // 8 MB

// Messages returned by the front-end routes.
const (
	MsgNothingToExport    = "No hay texto disponible para descargar."
	MsgSubmissionInFlight = "Ya hay un documento en proceso. Espera a que termine."
	MsgInvalidForm        = "No se pudo leer el formulario enviado."
	MsgUnreadableFile     = "No se pudo leer el archivo."
	MsgTooLarge           = "El archivo supera el límite de %d MB."
)

type Server struct {
	mux         *http.ServeMux
	submissions *services.SubmissionController
	blobs       *export.Registry
	maxUpload   int64
	logger      *logrus.Logger
}

func NewServer(
	submissions *services.SubmissionController,
	blobs *export.Registry,
	maxUpload int64,
	logger *logrus.Logger,
) *Server {
	if blobs == nil {
		blobs = export.NewRegistry()
	}
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	s := &Server{
		mux:         http.NewServeMux(),
		submissions: submissions,
		blobs:       blobs,
		maxUpload:   maxUpload,
		logger:      logger,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/submit", s.handleFormSubmit)
	s.mux.HandleFunc("/export", s.handleExport)
	s.mux.HandleFunc("/api/submit", s.handleAPISubmit)
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}

	page, err := s.submissions.Surface().HTML()
	if err != nil {
		s.logger.WithError(err).Error("Failed to serialize page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = io.WriteString(w, page)
	}
}

// handleFormSubmit is the form target used without JavaScript. Whatever the
// outcome the browser is sent back to the page with 303, so reloading it never
// resubmits; failures show up in the page's error display.
func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	input, _, err := s.readSubmission(w, r)
	if err != nil {
		s.submissions.Reject(err.Error())
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if _, err := s.submit(r, input); errors.Is(err, services.ErrSubmissionInFlight) {
		s.logger.Info("Form submit ignored while another submission is in flight")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAPISubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	input, status, err := s.readSubmission(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	result, err := s.submit(r, input)
	if errors.Is(err, services.ErrSubmissionInFlight) {
		writeError(w, http.StatusConflict, MsgSubmissionInFlight)
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		payload := map[string]any{"success": false, "error": services.MsgRenderFailed}
		if ocrErr, ok := ocr.AsError(err); ok {
			status = statusForError(ocrErr)
			payload["error"] = ocrErr.Message
			payload["kind"] = ocrErr.Kind
		}
		writeJSON(w, status, payload)
		return
	}

	payload := map[string]any{
		"success":  true,
		"fileName": result.FileName,
		"pages":    len(result.Pages),
	}
	if _, ok := result.ExportText(); ok {
		payload["exportUrl"] = render.DefaultExportURL
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.submissions.Snapshot())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	result := s.submissions.Current()
	text, ok := result.ExportText()
	if !ok {
		writeError(w, http.StatusNotFound, MsgNothingToExport)
		return
	}

	exporter := export.NewExporter(s.blobs, export.NewResponseTrigger(w, s.blobs), s.logger)
	if err := exporter.ExportText(text, export.MarkdownFilename(result.FileName)); err != nil {
		s.logger.WithError(err).Warn("Export failed")
	}
}

// submit detaches the request context: closing the tab must not abort an OCR
// job that is already running.
func (s *Server) submit(r *http.Request, input models.SubmissionInput) (*models.OcrResult, error) {
	return s.submissions.Submit(context.WithoutCancel(r.Context()), input)
}

// readSubmission builds a SubmissionInput from the multipart form. Missing
// fields are left empty for the controller to reject.
func (s *Server) readSubmission(w http.ResponseWriter, r *http.Request) (models.SubmissionInput, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.SubmissionInput{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf(MsgTooLarge, s.maxUpload>>20)
		}
		return models.SubmissionInput{}, http.StatusBadRequest, errors.New(MsgInvalidForm)
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	input := models.SubmissionInput{
		APIKey:        r.FormValue(ocr.FieldAPIKey),
		IncludeImages: parseCheckbox(r.FormValue(ocr.FieldIncludeImages)),
	}

	file, header, err := r.FormFile(ocr.FieldPDFFile)
	if errors.Is(err, http.ErrMissingFile) {
		return input, http.StatusOK, nil
	}
	if err != nil {
		return models.SubmissionInput{}, http.StatusBadRequest, errors.New(MsgUnreadableFile)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.SubmissionInput{}, http.StatusBadRequest, errors.New(MsgUnreadableFile)
	}
	input.File = &models.FileHandle{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	}
	return input, http.StatusOK, nil
}

func parseCheckbox(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "yes":
		return true
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

// statusForError maps a failed submission onto the status of the JSON answer.
func statusForError(err *ocr.Error) int {
	switch err.Kind {
	case ocr.KindValidation:
		return http.StatusUnprocessableEntity
	case ocr.KindHTTP:
		if err.Status >= 400 {
			return err.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
