package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mistral-pdf-convert/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func testPayload(t *testing.T) *RequestPayload {
	t.Helper()
	payload, err := BuildRequest(models.SubmissionInput{
		APIKey: "k1",
		File: &models.FileHandle{
			Name:      "sample.pdf",
			MediaType: "application/pdf",
			Data:      []byte("%PDF-1.4"),
		},
	})
	require.NoError(t, err)
	return payload
}

func backend(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "k1", r.FormValue(FieldAPIKey))
		assert.Equal(t, "false", r.FormValue(FieldIncludeImages))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func submit(t *testing.T, server *httptest.Server) (*models.OcrResult, error) {
	t.Helper()
	client := NewClient(Config{Endpoint: server.URL, TimeoutSeconds: 5}, testLogger())
	return client.Submit(context.Background(), testPayload(t))
}

func TestClientSubmitSuccess(t *testing.T) {
	t.Run("legacy text envelope", func(t *testing.T) {
		server := backend(t, http.StatusOK, `{"success":true,"fileName":"sample.pdf","text":"# Hi"}`)

		result, err := submit(t, server)
		require.NoError(t, err)
		assert.Equal(t, "sample.pdf", result.FileName)
		assert.Empty(t, result.Pages)
		text, ok := result.ExportText()
		assert.True(t, ok)
		assert.Equal(t, "# Hi", text)
	})

	t.Run("pages without concatenated text", func(t *testing.T) {
		server := backend(t, http.StatusOK, `{"success":true,"fileName":"multi.pdf","pages":[{"markdown":"p1"},{"markdown":"p2"}]}`)

		result, err := submit(t, server)
		require.NoError(t, err)
		require.Len(t, result.Pages, 2)
		assert.Equal(t, "p1", *result.Pages[0].Markdown)
		assert.Equal(t, "p2", *result.Pages[1].Markdown)
		assert.Nil(t, result.ConcatenatedText)
	})

	t.Run("file name falls back to the uploaded name", func(t *testing.T) {
		server := backend(t, http.StatusOK, `{"success":true,"concatenated_text":"x"}`)

		result, err := submit(t, server)
		require.NoError(t, err)
		assert.Equal(t, "sample.pdf", result.FileName)
	})
}

func TestClientSubmitHTTPErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{
			name:    "missing field",
			status:  http.StatusUnprocessableEntity,
			body:    `{"success":false,"error":"El campo 'api_key' es requerido."}`,
			message: "El campo 'api_key' es requerido.",
		},
		{
			name:    "auth failure",
			status:  http.StatusUnauthorized,
			body:    `{"success":false,"error":"API Key de Mistral AI inválida o no autorizada."}`,
			message: "API Key de Mistral AI inválida o no autorizada.",
		},
		{
			name:    "fastapi detail",
			status:  http.StatusBadRequest,
			body:    `{"detail":"El archivo debe ser un PDF."}`,
			message: "El archivo debe ser un PDF.",
		},
		{
			name:    "no usable message",
			status:  http.StatusInternalServerError,
			body:    `<html>boom</html>`,
			message: GenericHTTPMessage(http.StatusInternalServerError),
		},
		{
			name:    "blank error field",
			status:  http.StatusBadGateway,
			body:    `{"success":false,"error":"  "}`,
			message: GenericHTTPMessage(http.StatusBadGateway),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := backend(t, tc.status, tc.body)

			result, err := submit(t, server)
			assert.Nil(t, result)
			ocrErr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindHTTP, ocrErr.Kind)
			assert.Equal(t, tc.status, ocrErr.Status)
			assert.Equal(t, tc.message, ocrErr.Message)
		})
	}
}

func TestClientSubmitParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"not json", `not json`, MsgMalformed},
		{"success missing", `{"text":"x"}`, MsgMalformed},
		{"success false", `{"success":false}`, MsgUnsuccessful},
		{"success false with error", `{"success":false,"error":"Cuota agotada"}`, "Cuota agotada"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := backend(t, http.StatusOK, tc.body)

			result, err := submit(t, server)
			assert.Nil(t, result)
			ocrErr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindParse, ocrErr.Kind)
			assert.Equal(t, tc.message, ocrErr.Message)
		})
	}
}

func TestClientSubmitNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := NewClient(Config{Endpoint: endpoint, TimeoutSeconds: 5}, testLogger())
	result, err := client.Submit(context.Background(), testPayload(t))
	assert.Nil(t, result)
	assert.True(t, IsKind(err, KindNetwork))

	ocrErr, _ := AsError(err)
	assert.Equal(t, MsgNetwork, ocrErr.Message)
	assert.NotNil(t, ocrErr.Unwrap())
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{}, nil)
	assert.Equal(t, DefaultEndpoint, client.Endpoint())
	assert.Equal(t, int64(DefaultMaxResponseBytes), client.maxBody)
	assert.Equal(t, float64(DefaultTimeoutSeconds), client.httpClient.Timeout.Seconds())
}
