package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/ocr"
	"github.com/mealingabout/menu-pipeline/internal/scrape"
	"github.com/mealingabout/menu-pipeline/internal/store"
)

func htmlMenu(url string) store.RestaurantUpdate {
	return store.RestaurantUpdate{
		Website:  strPtr("https://example.com"),
		MenuURL:  strPtr(url),
		MenuType: menuTypePtr(model.MenuTypeHTML),
	}
}

func TestExtract_Threshold(t *testing.T) {
	tests := []struct {
		name       string
		chars      int
		wantStatus model.AnalysisStatus
	}{
		{"99 chars fails", 99, model.StatusFailed},
		{"100 chars extracted", 100, model.StatusExtracted},
		{"101 chars extracted", 101, model.StatusExtracted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			r := h.seed(t, "p1", "Big Bowl", htmlMenu("https://bigbowl.com/menu"))

			text := strings.Repeat("a", tt.chars)
			h.scraper.On("Scrape", mock.Anything, "https://bigbowl.com/menu").
				Return(&scrape.Result{Page: scrape.Page{Text: text}, Source: "local_http"}, nil)

			_, err := h.pipeline.Extract(context.Background())
			require.NoError(t, err)

			got := h.get(t, r.Slug)
			assert.Equal(t, tt.wantStatus, got.AnalysisStatus)

			jobs, err := h.store.ListAnalysisJobs(context.Background(), 0)
			require.NoError(t, err)
			if tt.wantStatus == model.StatusExtracted {
				require.Len(t, jobs, 1)
				assert.Equal(t, text, jobs[0].RawText)
				assert.Nil(t, got.AnalysisError)
			} else {
				assert.Empty(t, jobs)
				require.NotNil(t, got.AnalysisError)
				assert.Equal(t, "Could not extract menu text", *got.AnalysisError)
			}
		})
	}
}

func TestExtract_CountsRunesNotBytes(t *testing.T) {
	h := newHarness(t)
	r := h.seed(t, "p1", "Café", htmlMenu("https://cafe.com/menu"))

	// 60 two-byte runes: 120 bytes but under the threshold.
	h.scraper.On("Scrape", mock.Anything, "https://cafe.com/menu").
		Return(&scrape.Result{Page: scrape.Page{Text: strings.Repeat("é", 60)}}, nil)

	_, err := h.pipeline.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, h.get(t, r.Slug).AnalysisStatus)
}

func TestExtract_PDF(t *testing.T) {
	h := newHarness(t)
	r := h.seed(t, "p1", "Big Bowl", store.RestaurantUpdate{
		Website:  strPtr("https://bigbowl.com"),
		MenuURL:  strPtr("https://bigbowl.com/menu.pdf"),
		MenuType: menuTypePtr(model.MenuTypePDF),
	})

	text := strings.Repeat("Kung Pao Tofu 12.95\n", 10)
	h.pdf.On("Read", mock.Anything, "https://bigbowl.com/menu.pdf").
		Return(&ocr.Document{Text: text, Method: ocr.MethodVision}, nil)

	rep, err := h.pipeline.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Succeeded)
	assert.Equal(t, model.StatusExtracted, h.get(t, r.Slug).AnalysisStatus)
	h.scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestExtract_VisionUsageReported(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "Big Bowl", store.RestaurantUpdate{
		Website:  strPtr("https://bigbowl.com"),
		MenuURL:  strPtr("https://bigbowl.com/menu.pdf"),
		MenuType: menuTypePtr(model.MenuTypePDF),
	})
	h.seed(t, "p2", "Small Plate", htmlMenu("https://smallplate.com/menu"))

	usage := model.TokenUsage{InputTokens: 800, OutputTokens: 40, Cost: 0.000096}
	h.pdf.On("Read", mock.Anything, "https://bigbowl.com/menu.pdf").
		Return(&ocr.Document{Text: strings.Repeat("Mapo tofu 14\n", 10), Method: ocr.MethodVision, Usage: usage}, nil)
	h.scraper.On("Scrape", mock.Anything, "https://smallplate.com/menu").
		Return(&scrape.Result{Page: scrape.Page{Text: strings.Repeat("Burrata 15\n", 12)}, Source: "local_http"}, nil)

	rep, err := h.pipeline.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Stats.Succeeded)
	assert.Equal(t, 800, rep.Usage.InputTokens)
	assert.Equal(t, 40, rep.Usage.OutputTokens)
	assert.InDelta(t, 0.000096, rep.Usage.Cost, 1e-9)
}

func TestExtract_ErrorMessageKeptVerbatim(t *testing.T) {
	h := newHarness(t)
	r := h.seed(t, "p1", "Big Bowl", htmlMenu("https://bigbowl.com/menu"))

	h.scraper.On("Scrape", mock.Anything, "https://bigbowl.com/menu").
		Return(nil, errors.New("scrape: all scrapers failed: status 403"))

	rep, err := h.pipeline.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Failed)

	got := h.get(t, r.Slug)
	assert.Equal(t, model.StatusFailed, got.AnalysisStatus)
	require.NotNil(t, got.AnalysisError)
	assert.Equal(t, "scrape: all scrapers failed: status 403", *got.AnalysisError)
}

func TestExtract_SkipsRecordNoLongerPending(t *testing.T) {
	h := newHarness(t)
	r := h.seed(t, "p1", "Big Bowl", htmlMenu("https://bigbowl.com/menu"))
	require.NoError(t, h.store.SetStatus(context.Background(), r.ID, model.StatusPending, model.StatusExtracting, ""))

	assert.Equal(t, outcomeSkipped, h.pipeline.extractOne(context.Background(), &Report{}, r))
	h.scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestExtract_StoreFailureIsStageFatal(t *testing.T) {
	p := New(testConfig(), nil, Deps{Store: &failingStore{err: errors.New("connection refused")}})

	_, err := p.Extract(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: list restaurants")
}
