package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mistral-pdf-convert/internal/export"
	"mistral-pdf-convert/internal/ocr"
	"mistral-pdf-convert/internal/render"
	"mistral-pdf-convert/internal/services"
	"mistral-pdf-convert/internal/view"
	"mistral-pdf-convert/internal/web"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func newTestServer(t *testing.T, status int, body string) *Server {
	t.Helper()
	return newServerWithBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}), 1<<20)
}

func newServerWithBackend(t *testing.T, handler http.Handler, maxUpload int64) *Server {
	t.Helper()
	backend := httptest.NewServer(handler)
	t.Cleanup(backend.Close)

	logger := testLogger()
	surface, err := view.NewSurfaceFromBytes(web.Index())
	require.NoError(t, err)
	client := ocr.NewClient(ocr.Config{Endpoint: backend.URL, TimeoutSeconds: 5}, logger)
	renderer := render.NewRenderer(nil, render.Options{}, logger)
	controller := services.NewSubmissionController(client, renderer, surface, nil, logger)
	return NewServer(controller, export.NewRegistry(), maxUpload, logger)
}

type formInput struct {
	apiKey        string
	fileName      string
	mediaType     string
	includeImages string
	content       []byte
}

func multipartRequest(t *testing.T, path string, in formInput) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField(ocr.FieldAPIKey, in.apiKey))
	if in.fileName != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="pdf_file"; filename="`+in.fileName+`"`)
		header.Set("Content-Type", in.mediaType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		content := in.content
		if content == nil {
			content = []byte("%PDF-1.4")
		}
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if in.includeImages != "" {
		require.NoError(t, writer.WriteField(ocr.FieldIncludeImages, in.includeImages))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func do(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

const successBody = `{"success":true,"fileName":"sample.pdf","text":"# Hi"}`

func TestIndex(t *testing.T) {
	server := newTestServer(t, http.StatusOK, successBody)

	rec := do(server, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `id="upload-form"`)

	rec = do(server, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(server, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFormSubmitRedirectsAndRenders(t *testing.T) {
	server := newTestServer(t, http.StatusOK, successBody)

	rec := do(server, multipartRequest(t, "/submit", formInput{
		apiKey:    "k1",
		fileName:  "sample.pdf",
		mediaType: "application/pdf",
	}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = do(server, httptest.NewRequest(http.MethodGet, "/", nil))
	page := rec.Body.String()
	assert.Contains(t, page, "sample.pdf")
	assert.Contains(t, page, "<h1>Hi</h1>")
	assert.Contains(t, page, `id="download-btn"`)

	rec = do(server, httptest.NewRequest(http.MethodGet, "/export", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.MarkdownMediaType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sample.md")
	assert.Equal(t, "# Hi", rec.Body.String())
}

func TestFormSubmitValidationShowsError(t *testing.T) {
	server := newTestServer(t, http.StatusOK, successBody)

	rec := do(server, multipartRequest(t, "/submit", formInput{
		fileName:  "sample.pdf",
		mediaType: "application/pdf",
	}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(server, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), ocr.MsgMissingAPIKey)
}

func TestFormSubmitOversizedUploadShowsError(t *testing.T) {
	server := newTestServer(t, http.StatusOK, successBody)

	rec := do(server, multipartRequest(t, "/submit", formInput{
		apiKey:    "k1",
		fileName:  "enorme.pdf",
		mediaType: "application/pdf",
		content:   bytes.Repeat([]byte("x"), 2<<20),
	}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	want := fmt.Sprintf(MsgTooLarge, 1)
	rec = do(server, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), want)

	rec = do(server, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, want, decode(t, rec)["error"])
}

func TestFormSubmitMalformedBodyShowsError(t *testing.T) {
	server := newTestServer(t, http.StatusOK, successBody)

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("not a form"))
	req.Header.Set("Content-Type", "text/plain")
	rec := do(server, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(server, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), MsgInvalidForm)
}

func TestSubmitWhileBusy(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	server := newServerWithBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, successBody)
	}), 1<<20)

	valid := formInput{apiKey: "k1", fileName: "sample.pdf", mediaType: "application/pdf"}

	var wg sync.WaitGroup
	var first *httptest.ResponseRecorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = do(server, multipartRequest(t, "/api/submit", valid))
	}()
	<-started

	rec := do(server, multipartRequest(t, "/api/submit", valid))
	assert.Equal(t, http.StatusConflict, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, MsgSubmissionInFlight, payload["error"])

	rec = do(server, multipartRequest(t, "/submit", valid))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(server, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	state := decode(t, rec)
	assert.Equal(t, "submitting", state["state"])
	assert.Equal(t, true, state["loading"])

	close(release)
	wg.Wait()

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "sample.pdf", decode(t, first)["fileName"])
	assert.Equal(t, int32(1), hits.Load())
}

func TestAPISubmit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := newTestServer(t, http.StatusOK, successBody)

		rec := do(server, multipartRequest(t, "/api/submit", formInput{
			apiKey:        "k1",
			fileName:      "sample.pdf",
			mediaType:     "application/pdf",
			includeImages: "on",
		}))
		require.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, true, payload["success"])
		assert.Equal(t, "sample.pdf", payload["fileName"])
		assert.Equal(t, render.DefaultExportURL, payload["exportUrl"])
	})

	t.Run("validation", func(t *testing.T) {
		server := newTestServer(t, http.StatusOK, successBody)

		rec := do(server, multipartRequest(t, "/api/submit", formInput{
			apiKey:    "k1",
			fileName:  "notes.txt",
			mediaType: "text/plain",
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, false, payload["success"])
		assert.Equal(t, ocr.MsgNotPDF, payload["error"])
		assert.Equal(t, string(ocr.KindValidation), payload["kind"])
	})

	t.Run("backend rejects the key", func(t *testing.T) {
		server := newTestServer(t, http.StatusUnauthorized, `{"success":false,"error":"API Key de Mistral AI inválida o no autorizada."}`)

		rec := do(server, multipartRequest(t, "/api/submit", formInput{
			apiKey:    "bad",
			fileName:  "sample.pdf",
			mediaType: "application/pdf",
		}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, "API Key de Mistral AI inválida o no autorizada.", payload["error"])
		assert.Equal(t, string(ocr.KindHTTP), payload["kind"])
	})

	t.Run("not multipart", func(t *testing.T) {
		server := newTestServer(t, http.StatusOK, successBody)

		req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := do(server, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestExportWithoutResult(t *testing.T) {
	server := newTestServer(t, http.StatusOK, successBody)

	rec := do(server, httptest.NewRequest(http.MethodGet, "/export", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, MsgNothingToExport, decode(t, rec)["error"])
}

func TestStateAndHealth(t *testing.T) {
	server := newTestServer(t, http.StatusOK, successBody)

	rec := do(server, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode(t, rec)
	assert.Equal(t, "idle", state["state"])
	assert.Equal(t, false, state["loading"])

	rec = do(server, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = do(server, httptest.NewRequest(http.MethodPost, "/api/state", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestParseCheckbox(t *testing.T) {
	for _, v := range []string{"true", "on", "ON", "1", "yes"} {
		assert.True(t, parseCheckbox(v), v)
	}
	for _, v := range []string{"", "false", "off", "0", "maybe"} {
		assert.False(t, parseCheckbox(v), v)
	}
}
