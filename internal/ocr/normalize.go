package ocr

import (
	"bytes"
	"encoding/json"
	"path"
	"strings"

	"mistral-pdf-convert/internal/models"
)

// Normalize reconciles the envelope shapes the backend has produced over time
// (legacy text, concatenated_text only, pages plus concatenated_text) into one
// OcrResult. Absent fields stay nil so the renderer can pick its fallback.
func Normalize(env *Envelope) *models.OcrResult {
	result := &models.OcrResult{}
	if env == nil {
		return result
	}
	result.FileName = env.FileName

	if len(env.Pages) > 0 {
		result.Pages = make([]models.PageResult, 0, len(env.Pages))
		for i, page := range env.Pages {
			result.Pages = append(result.Pages, models.PageResult{
				Index:    i,
				Markdown: page.Markdown,
				Images:   normalizeImages(page.Images),
			})
		}
	}

	switch {
	case env.ConcatenatedText != nil:
		result.ConcatenatedText = env.ConcatenatedText
	case env.Text != nil:
		result.ConcatenatedText = env.Text
	}

	return result
}

func normalizeImages(raw []json.RawMessage) []models.ImageRef {
	if len(raw) == 0 {
		return nil
	}
	images := make([]models.ImageRef, 0, len(raw))
	for _, item := range raw {
		if ref, ok := normalizeImage(item); ok {
			images = append(images, ref)
		}
	}
	return images
}

func normalizeImage(item json.RawMessage) (models.ImageRef, bool) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 || bytes.Equal(item, []byte("null")) {
		return models.ImageRef{}, false
	}

	var plain string
	if err := json.Unmarshal(item, &plain); err == nil {
		plain = strings.TrimSpace(plain)
		if plain == "" {
			return models.ImageRef{}, false
		}
		ref := models.ImageRef{ID: plain}
		if isRenderableURL(plain) {
			ref.URL = plain
		}
		return ref, true
	}

	var obj envelopeImage
	if err := json.Unmarshal(item, &obj); err != nil {
		return models.ImageRef{}, false
	}
	ref := models.ImageRef{
		ID:      obj.ID,
		Caption: obj.Caption,
	}
	if ref.Caption == "" {
		ref.Caption = obj.Alt
	}
	switch {
	case obj.ImageBase64 != "":
		ref.URL = dataURL(obj.ID, obj.ImageBase64)
	case obj.URL != "":
		ref.URL = obj.URL
	}
	if ref.ID == "" && ref.URL == "" {
		return models.ImageRef{}, false
	}
	return ref, true
}

// dataURL returns b64 as a data URL, guessing the media type from the image id
// when the backend sent bare base64.
func dataURL(id, b64 string) string {
	if strings.HasPrefix(b64, "data:") {
		return b64
	}
	mediaType := "image/jpeg"
	switch strings.ToLower(path.Ext(id)) {
	case ".png":
		mediaType = "image/png"
	case ".gif":
		mediaType = "image/gif"
	case ".webp":
		mediaType = "image/webp"
	}
	return "data:" + mediaType + ";base64," + b64
}

func isRenderableURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "data:image/") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://")
}
