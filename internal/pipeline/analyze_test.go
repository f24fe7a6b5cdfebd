package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mealingabout/menu-pipeline/internal/ai"
	"github.com/mealingabout/menu-pipeline/internal/model"
)

const menuText = "Falafel Plate - chickpea fritters, tahini, pita 13\nChicken Shawarma - garlic sauce, fries 15\nLentil Soup 6"

// seedExtracted puts a restaurant in extracted with raw text on file.
func (h *harness) seedExtracted(t *testing.T, placeID, name, text string) model.Restaurant {
	t.Helper()
	ctx := context.Background()
	r := h.seed(t, placeID, name, htmlMenu("https://"+placeID+".com/menu"))
	require.NoError(t, h.store.SetStatus(ctx, r.ID, model.StatusPending, model.StatusExtracting, ""))
	require.NoError(t, h.store.ReplaceRawMenu(ctx, r.ID, text, model.MenuTypeHTML))
	require.NoError(t, h.store.SetStatus(ctx, r.ID, model.StatusExtracting, model.StatusExtracted, ""))
	return h.get(t, r.Slug)
}

func falafelResult() *ai.Result {
	return &ai.Result{
		Provider: "perplexity",
		Model:    "sonar",
		Items: []model.AnalyzedItem{
			{
				Name: "Falafel Plate",
				Labels: []model.DietaryLabel{
					{Type: model.LabelVegan, Confidence: model.LabelConfirmed},
					{Type: model.LabelVegetarian, Confidence: model.LabelConfirmed},
				},
			},
			{
				Name: "Lentil Soup",
				Labels: []model.DietaryLabel{
					{Type: model.LabelVegan, Confidence: model.LabelUncertain, AskServer: strPtr("Is the stock vegetable based?")},
					{Type: model.LabelGlutenFree, Confidence: model.LabelConfirmed},
				},
			},
			{Name: "Chicken Shawarma", Labels: []model.DietaryLabel{}},
		},
		Usage: model.TokenUsage{InputTokens: 900, OutputTokens: 300, Cost: 0.0062},
	}
}

func TestAnalyze_StoresItemsAndMarksAnalyzed(t *testing.T) {
	h := newHarness(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.pipeline.now = func() time.Time { return fixed }
	r := h.seedExtracted(t, "p1", "Sultan's Market", menuText)

	h.analyzer.On("Analyze", mock.Anything, menuText).Return(falafelResult(), nil)

	rep, err := h.pipeline.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Succeeded)
	assert.InDelta(t, 0.0062, rep.Usage.Cost, 1e-9)
	assert.Equal(t, 900, rep.Usage.InputTokens)

	got := h.get(t, r.Slug)
	assert.Equal(t, model.StatusAnalyzed, got.AnalysisStatus)
	require.NotNil(t, got.LastAnalyzedAt)
	assert.True(t, fixed.Equal(*got.LastAnalyzedAt))
	assert.Nil(t, got.AnalysisError)

	items, err := h.store.ListMenuItems(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	byName := make(map[string]model.MenuItem, len(items))
	for _, it := range items {
		byName[it.Name] = it
	}
	falafel := byName["Falafel Plate"]
	assert.True(t, falafel.IsVegan)
	assert.True(t, falafel.IsVegetarian)
	assert.Equal(t, model.ConfidenceCertain, falafel.Confidence)

	soup := byName["Lentil Soup"]
	assert.True(t, soup.IsGlutenFree)
	assert.Equal(t, model.ConfidenceUncertain, soup.Confidence)
	require.NotNil(t, soup.AskServer)
	assert.Equal(t, "Is the stock vegetable based?", *soup.AskServer)

	// No labels still maps to uncertain.
	assert.Equal(t, model.ConfidenceUncertain, byName["Chicken Shawarma"].Confidence)
}

func TestAnalyze_ZeroItemsIsSuccess(t *testing.T) {
	h := newHarness(t)
	r := h.seedExtracted(t, "p1", "Steakhouse", menuText)

	h.analyzer.On("Analyze", mock.Anything, menuText).Return(&ai.Result{Provider: "gemini"}, nil)

	_, err := h.pipeline.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalyzed, h.get(t, r.Slug).AnalysisStatus)

	items, err := h.store.ListMenuItems(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAnalyze_ReanalysisReplacesAllItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.seedExtracted(t, "p1", "Sultan's Market", menuText)

	h.analyzer.On("Analyze", mock.Anything, menuText).Return(falafelResult(), nil).Once()
	_, err := h.pipeline.Analyze(ctx)
	require.NoError(t, err)

	// Operator requeue with a new menu.
	n, err := h.store.RequeueStatus(ctx, model.StatusAnalyzed, model.StatusExtracted)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	newText := "Hummus Bowl - chickpeas, olive oil 11\nBaba Ganoush - smoked eggplant 9"
	require.NoError(t, h.store.ReplaceRawMenu(ctx, r.ID, newText, model.MenuTypeHTML))

	h.analyzer.On("Analyze", mock.Anything, newText).Return(&ai.Result{
		Provider: "perplexity",
		Items: []model.AnalyzedItem{{
			Name:   "Hummus Bowl",
			Labels: []model.DietaryLabel{{Type: model.LabelVegan, Confidence: model.LabelConfirmed}},
		}},
	}, nil).Once()

	_, err = h.pipeline.Analyze(ctx)
	require.NoError(t, err)

	items, err := h.store.ListMenuItems(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Hummus Bowl", items[0].Name)
	assert.Equal(t, model.StatusAnalyzed, h.get(t, r.Slug).AnalysisStatus)
}

func TestAnalyze_FailureKeepsPublishedItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.seedExtracted(t, "p1", "Sultan's Market", menuText)

	h.analyzer.On("Analyze", mock.Anything, menuText).Return(falafelResult(), nil).Once()
	_, err := h.pipeline.Analyze(ctx)
	require.NoError(t, err)

	_, err = h.store.RequeueStatus(ctx, model.StatusAnalyzed, model.StatusExtracted)
	require.NoError(t, err)

	allFailed := &ai.AllProvidersFailedError{Last: errors.New("anthropic: status 529")}
	h.analyzer.On("Analyze", mock.Anything, menuText).Return(nil, allFailed).Once()

	rep, err := h.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Failed)

	got := h.get(t, r.Slug)
	assert.Equal(t, model.StatusFailed, got.AnalysisStatus)
	require.NotNil(t, got.AnalysisError)
	assert.Equal(t, "All AI providers failed. Last error: anthropic: status 529", *got.AnalysisError)

	items, err := h.store.ListMenuItems(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestAnalyze_EmptyRawTextFails(t *testing.T) {
	h := newHarness(t)
	r := h.seedExtracted(t, "p1", "Blank", "   ")

	rep, err := h.pipeline.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Failed)
	assert.Equal(t, model.StatusFailed, h.get(t, r.Slug).AnalysisStatus)
	h.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalyze_StoreFailureIsStageFatal(t *testing.T) {
	p := New(testConfig(), nil, Deps{Store: &failingStore{err: errors.New("connection refused")}})

	_, err := p.Analyze(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyze: list jobs")
}
