// Package ocr turns menu PDFs into text: the embedded text layer when there
// is one, else a vision model transcription.
package ocr

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/config"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/pkg/gemini"
)

// nativeMinChars is the text-layer length a PDF must exceed to skip vision.
const nativeMinChars = 100

// maxPDFBytes caps menu PDF downloads.
const maxPDFBytes = 20 << 20

// Extractor reads the embedded text layer of a PDF.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// Transcriber reads a PDF with a vision-capable model.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, pdf []byte) (string, model.TokenUsage, error)
}

// NewTranscriber creates the configured vision Transcriber. opts apply to
// the gemini transcriber only; Mistral bills per page.
func NewTranscriber(cfg config.OCRConfig, geminiClient gemini.Client, opts ...VisionOption) (Transcriber, error) {
	switch cfg.Vision {
	case "gemini", "":
		if geminiClient == nil {
			return nil, eris.New("ocr: gemini vision requires gemini.key")
		}
		return NewGeminiVision(geminiClient, "", opts...), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral vision requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown vision provider %q", cfg.Vision)
	}
}

// Method records how a document's text was obtained.
type Method string

const (
	MethodNative Method = "native"
	MethodVision Method = "vision"
)

// Document is the text read from one menu PDF.
type Document struct {
	Text   string
	Method Method
	Usage  model.TokenUsage
}

// PDFReader downloads menu PDFs and reads their text.
type PDFReader struct {
	client    *http.Client
	userAgent string
	native    Extractor
	vision    Transcriber
}

// NewPDFReader creates a PDFReader. timeout bounds the download only.
// vision may be nil, in which case scanned PDFs yield the short native text.
func NewPDFReader(native Extractor, vision Transcriber, userAgent string, timeout time.Duration) *PDFReader {
	return &PDFReader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		native:    native,
		vision:    vision,
	}
}

// Read downloads the PDF at url. A non-2xx response is an error. The text
// layer is used when it holds more than 100 characters; otherwise the PDF is
// sent to the vision transcriber.
func (r *PDFReader) Read(ctx context.Context, url string) (*Document, error) {
	pdf, err := r.download(ctx, url)
	if err != nil {
		return nil, err
	}

	text, err := r.native.ExtractText(ctx, pdf)
	if err != nil {
		zap.L().Warn("ocr: text layer extraction failed, trying vision",
			zap.String("url", url),
			zap.Error(err),
		)
		text = ""
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > nativeMinChars {
		return &Document{Text: text, Method: MethodNative}, nil
	}

	if r.vision == nil {
		return &Document{Text: text, Method: MethodNative}, nil
	}

	zap.L().Info("ocr: text layer too short, transcribing with vision",
		zap.String("url", url),
		zap.String("vision", r.vision.Name()),
		zap.Int("native_chars", utf8.RuneCountInString(text)),
	)
	visionText, usage, err := r.vision.Transcribe(ctx, pdf)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: vision transcription")
	}
	return &Document{Text: strings.TrimSpace(visionText), Method: MethodVision, Usage: usage}, nil
}

func (r *PDFReader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create request")
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: fetch pdf")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("ocr: fetch pdf: status %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read pdf")
	}
	return pdf, nil
}
