package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mealingabout/menu-pipeline/internal/ai"
	"github.com/mealingabout/menu-pipeline/internal/config"
	"github.com/mealingabout/menu-pipeline/internal/geo"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/ocr"
	"github.com/mealingabout/menu-pipeline/internal/scrape"
	"github.com/mealingabout/menu-pipeline/internal/store"
	"github.com/mealingabout/menu-pipeline/pkg/google/mocks"
)

// --- Finder Mock ---

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) Find(ctx context.Context, siteURL string) (*scrape.MenuLink, error) {
	args := m.Called(ctx, siteURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.MenuLink), args.Error(1)
}

// --- Scraper Mock ---

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, url string) (*scrape.Result, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.Result), args.Error(1)
}

// --- PDF Reader Mock ---

type mockPDFReader struct {
	mock.Mock
}

func (m *mockPDFReader) Read(ctx context.Context, url string) (*ocr.Document, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ocr.Document), args.Error(1)
}

// --- Analyzer Mock ---

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, menuText string) (*ai.Result, error) {
	args := m.Called(ctx, menuText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.Result), args.Error(1)
}

// --- Failing Store ---

// failingStore fails every stage's initial query.
type failingStore struct {
	store.Store
	err error
}

func (s *failingStore) ListPlaceSlugs(context.Context) (map[string]string, error) {
	return nil, s.err
}

func (s *failingStore) ListRestaurants(context.Context, store.RestaurantFilter) ([]model.Restaurant, error) {
	return nil, s.err
}

func (s *failingStore) ListAnalysisJobs(context.Context, int) ([]model.AnalysisJob, error) {
	return nil, s.err
}

// --- Harness ---

type harness struct {
	store    *store.SQLiteStore
	places   *mocks.MockClient
	finder   *mockFinder
	scraper  *mockScraper
	pdf      *mockPDFReader
	analyzer *mockAnalyzer
	pipeline *Pipeline
}

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MinRating:         4.0,
		MinReviews:        30,
		EnrichBatchSize:   50,
		Concurrency:       1,
		PlacesTimeoutSecs: 10,
		MinMenuChars:      100,
	}
}

func testRegions() []geo.Region {
	return []geo.Region{
		{Name: "West Town", Lat: 41.8919, Lng: -87.6691, RadiusM: 1200},
		{Name: "River North", Lat: 41.8926, Lng: -87.6340, RadiusM: 1000},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	h := &harness{
		store:    st,
		places:   mocks.NewMockClient(t),
		finder:   &mockFinder{},
		scraper:  &mockScraper{},
		pdf:      &mockPDFReader{},
		analyzer: &mockAnalyzer{},
	}
	h.pipeline = New(testConfig(), testRegions(), Deps{
		Store:    st,
		Places:   h.places,
		Finder:   h.finder,
		Scraper:  h.scraper,
		PDF:      h.pdf,
		Analyzer: h.analyzer,
	})
	return h
}

// seed inserts a pending restaurant and applies u.
func (h *harness) seed(t *testing.T, placeID, name string, u store.RestaurantUpdate) model.Restaurant {
	t.Helper()
	ctx := context.Background()
	r := &model.Restaurant{
		PlaceID:        placeID,
		Slug:           placeID + "-slug",
		Name:           name,
		Neighborhood:   "West Town",
		AnalysisStatus: model.StatusPending,
	}
	require.NoError(t, h.store.UpsertRestaurant(ctx, r))
	if u != (store.RestaurantUpdate{}) {
		require.NoError(t, h.store.UpdateRestaurant(ctx, r.ID, u))
	}
	return h.get(t, r.Slug)
}

func (h *harness) get(t *testing.T, slug string) model.Restaurant {
	t.Helper()
	r, err := h.store.GetRestaurantBySlug(context.Background(), slug)
	require.NoError(t, err)
	return *r
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }
