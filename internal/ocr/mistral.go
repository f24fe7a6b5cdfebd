package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR transcribes scanned menus with the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR creates a MistralOCR. An empty model uses mistral-ocr-latest.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{apiKey: apiKey, model: model, endpoint: mistralOCREndpoint, client: &http.Client{}}
}

type mistralOCRRequest struct {
	Model    string `json:"model"`
	Document struct {
		Type        string `json:"type"`
		DocumentURL string `json:"document_url"`
	} `json:"document"`
	IncludeImageBase64 bool `json:"include_image_base64"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

// Name implements Transcriber.
func (m *MistralOCR) Name() string { return "mistral" }

// Transcribe uploads the PDF inline and returns the text of every page that
// has any. Mistral bills per page, so the usage is always zero.
func (m *MistralOCR) Transcribe(ctx context.Context, pdf []byte) (string, model.TokenUsage, error) {
	var body mistralOCRRequest
	body.Model = m.model
	body.Document.Type = "document_url"
	body.Document.DocumentURL = "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf)

	payload, err := json.Marshal(body)
	if err != nil {
		return "", model.TokenUsage{}, eris.Wrap(err, "ocr: marshal mistral request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", model.TokenUsage{}, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", model.TokenUsage{}, eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.TokenUsage{}, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", model.TokenUsage{}, eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", model.TokenUsage{}, eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	return joinPages(out.Pages), model.TokenUsage{}, nil
}

// imageRefRe matches the markdown image placeholders Mistral emits for
// photos and logos, e.g. ![img-0.jpeg](img-0.jpeg).
var imageRefRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)

// joinPages drops image placeholders and pages left empty by them, such as
// a cover photo, and joins the rest in page order.
func joinPages(pages []mistralOCRPage) string {
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		t := strings.TrimSpace(imageRefRe.ReplaceAllString(p.Markdown, ""))
		if t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n")
}
