package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStaleStatus is returned when a status update finds the record no longer
// in the expected state.
var ErrStaleStatus = errors.New("store: record not in expected status")

// RestaurantFilter selects restaurants for a stage. Nil pointers mean "don't care".
type RestaurantFilter struct {
	Status     model.AnalysisStatus
	HasWebsite *bool
	HasMenuURL *bool
	Limit      int
}

// RestaurantUpdate carries the metadata columns a stage writes. Only non-nil
// fields are written. Status is changed through SetStatus, never here.
type RestaurantUpdate struct {
	Website              *string
	Phone                *string
	Summary              *string
	PhotoURL             *string
	ReviewCount          *int
	ServesVegetarianFood *bool
	MenuURL              *string
	MenuType             *model.MenuType
}

// Store defines the persistence interface for the menu pipeline.
type Store interface {
	// Restaurants
	ListPlaceSlugs(ctx context.Context) (map[string]string, error)
	UpsertRestaurant(ctx context.Context, r *model.Restaurant) error
	ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]model.Restaurant, error)
	GetRestaurantBySlug(ctx context.Context, slug string) (*model.Restaurant, error)
	UpdateRestaurant(ctx context.Context, id string, u RestaurantUpdate) error
	SetStatus(ctx context.Context, id string, from, to model.AnalysisStatus, errMsg string) error
	RequeueStatus(ctx context.Context, from, to model.AnalysisStatus) (int, error)
	CountByStatus(ctx context.Context) (map[model.AnalysisStatus]int, error)

	// Raw menus
	ReplaceRawMenu(ctx context.Context, restaurantID string, content string, source model.MenuType) error
	ListAnalysisJobs(ctx context.Context, limit int) ([]model.AnalysisJob, error)

	// Menu items
	ReplaceMenuItems(ctx context.Context, restaurantID string, items []model.MenuItem, analyzedAt time.Time) error
	ListMenuItems(ctx context.Context, restaurantID string) ([]model.MenuItem, error)

	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, run *model.Run) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Bool returns a pointer to b, for filters.
func Bool(b bool) *bool { return &b }

var restaurantFields = []string{
	"id", "place_id", "slug", "name", "address", "neighborhood", "lat", "lng",
	"phone", "website", "summary", "photo_url", "rating", "review_count", "price_level", "serves_vegetarian_food",
	"menu_url", "menu_type", "analysis_status", "analysis_error", "last_analyzed_at", "created_at", "updated_at",
}

// restaurantColumns is the SELECT list shared by every restaurant query, in
// scanRestaurant order, optionally qualified by a table alias.
func restaurantColumns(alias string) string {
	if alias == "" {
		return strings.Join(restaurantFields, ", ")
	}
	cols := make([]string, len(restaurantFields))
	for i, c := range restaurantFields {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// upsertInsertColumns are written when a place is first seen.
var upsertInsertColumns = []string{
	"id", "place_id", "slug", "name", "address", "neighborhood", "lat", "lng",
	"rating", "review_count", "price_level", "photo_url", "analysis_status", "created_at", "updated_at",
}

// upsertUpdateColumns are refreshed on re-discovery. slug, neighborhood and
// analysis_status are insert-only so a re-run can never rename or regress a record.
var upsertUpdateColumns = []string{
	"name", "address", "lat", "lng", "rating", "review_count", "price_level", "photo_url", "updated_at",
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRestaurant(row scannable) (*model.Restaurant, error) {
	var r model.Restaurant
	err := row.Scan(
		&r.ID, &r.PlaceID, &r.Slug, &r.Name, &r.Address, &r.Neighborhood, &r.Lat, &r.Lng,
		&r.Phone, &r.Website, &r.Summary, &r.PhotoURL, &r.Rating, &r.ReviewCount, &r.PriceLevel, &r.ServesVegetarianFood,
		&r.MenuURL, &r.MenuType, &r.AnalysisStatus, &r.AnalysisError, &r.LastAnalyzedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// listQuery builds the stage selection query with ? placeholders.
func listQuery(f RestaurantFilter) (string, []any) {
	q := `SELECT ` + restaurantColumns("") + ` FROM restaurants WHERE 1=1`
	var args []any
	if f.Status != "" {
		q += ` AND analysis_status = ?`
		args = append(args, string(f.Status))
	}
	if f.HasWebsite != nil {
		if *f.HasWebsite {
			q += ` AND website IS NOT NULL AND website <> ''`
		} else {
			q += ` AND (website IS NULL OR website = '')`
		}
	}
	if f.HasMenuURL != nil {
		if *f.HasMenuURL {
			q += ` AND menu_url IS NOT NULL AND menu_url <> ''`
		} else {
			q += ` AND (menu_url IS NULL OR menu_url = '')`
		}
	}
	q += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return q, args
}

// updateQuery builds the UPDATE for the non-nil fields of u with ?
// placeholders. ok is false when u is empty.
func updateQuery(id string, u RestaurantUpdate, now time.Time) (string, []any, bool) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Website != nil {
		add("website", *u.Website)
	}
	if u.Phone != nil {
		add("phone", *u.Phone)
	}
	if u.Summary != nil {
		add("summary", *u.Summary)
	}
	if u.PhotoURL != nil {
		add("photo_url", *u.PhotoURL)
	}
	if u.ReviewCount != nil {
		add("review_count", *u.ReviewCount)
	}
	if u.ServesVegetarianFood != nil {
		add("serves_vegetarian_food", *u.ServesVegetarianFood)
	}
	if u.MenuURL != nil {
		add("menu_url", *u.MenuURL)
	}
	if u.MenuType != nil {
		add("menu_type", string(*u.MenuType))
	}
	if len(sets) == 0 {
		return "", nil, false
	}
	add("updated_at", now)
	args = append(args, id)
	return `UPDATE restaurants SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`, args, true
}

// rebind rewrites ? placeholders as $1..$n for PostgreSQL.
func rebind(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// analysisJobsQuery selects extracted restaurants with their raw text. A
// missing raw_menus row yields empty text, which Analyze reports as a failure.
func analysisJobsQuery(limit int) (string, []any) {
	q := `SELECT ` + restaurantColumns("r") + `, COALESCE(m.content, '')
		FROM restaurants r
		LEFT JOIN raw_menus m ON m.restaurant_id = r.id
		WHERE r.analysis_status = ?
		ORDER BY r.created_at, r.id`
	args := []any{string(model.StatusExtracted)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return q, args
}

const setStatusQuery = `UPDATE restaurants SET analysis_status = ?, analysis_error = ?, updated_at = ?
	WHERE id = ? AND analysis_status = ?`

const requeueQuery = `UPDATE restaurants SET analysis_status = ?, analysis_error = NULL, updated_at = ?
	WHERE analysis_status = ?`

const markAnalyzedQuery = `UPDATE restaurants
	SET analysis_status = ?, last_analyzed_at = ?, analysis_error = NULL, updated_at = ?
	WHERE id = ? AND analysis_status = ?`

const countByStatusQuery = `SELECT analysis_status, COUNT(*) FROM restaurants GROUP BY analysis_status`

// nullableError maps an empty message to NULL.
func nullableError(msg string) *string {
	if msg == "" {
		return nil
	}
	return &msg
}

// withExtra appends destinations after the restaurant columns, for joins.
type withExtra struct {
	row   scannable
	extra []any
}

func (w withExtra) Scan(dest ...any) error {
	return w.row.Scan(append(dest, w.extra...)...)
}
