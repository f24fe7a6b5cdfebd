package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mealingabout/menu-pipeline/internal/db"
	"github.com/mealingabout/menu-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local runs
// and store behaviour tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer; avoids SQLITE_BUSY between the stage loop and status updates.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id                     TEXT PRIMARY KEY,
	place_id               TEXT NOT NULL UNIQUE,
	slug                   TEXT NOT NULL UNIQUE,
	name                   TEXT NOT NULL,
	address                TEXT NOT NULL DEFAULT '',
	neighborhood           TEXT NOT NULL DEFAULT '',
	lat                    REAL NOT NULL DEFAULT 0,
	lng                    REAL NOT NULL DEFAULT 0,
	phone                  TEXT,
	website                TEXT,
	summary                TEXT,
	photo_url              TEXT,
	rating                 REAL,
	review_count           INTEGER,
	price_level            INTEGER,
	serves_vegetarian_food BOOLEAN,
	menu_url               TEXT,
	menu_type              TEXT,
	analysis_status        TEXT NOT NULL DEFAULT 'pending',
	analysis_error         TEXT,
	last_analyzed_at       DATETIME,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_restaurants_status ON restaurants(analysis_status);

CREATE TABLE IF NOT EXISTS raw_menus (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	content       TEXT NOT NULL,
	source        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_raw_menus_restaurant ON raw_menus(restaurant_id);

CREATE TABLE IF NOT EXISTS menu_items (
	id             TEXT PRIMARY KEY,
	restaurant_id  TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	description    TEXT,
	is_vegan       BOOLEAN NOT NULL DEFAULT 0,
	is_vegetarian  BOOLEAN NOT NULL DEFAULT 0,
	is_gluten_free BOOLEAN NOT NULL DEFAULT 0,
	confidence     TEXT NOT NULL,
	modifications  TEXT,
	ask_server     TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_menu_items_restaurant ON menu_items(restaurant_id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	stages      TEXT NOT NULL DEFAULT '[]',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListPlaceSlugs(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT place_id, slug FROM restaurants`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list place slugs")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var placeID, slug string
		if err := rows.Scan(&placeID, &slug); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan place slug")
		}
		out[placeID] = slug
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate place slugs")
}

var dollarParam = regexp.MustCompile(`\$\d+`)

func (s *SQLiteStore) UpsertRestaurant(ctx context.Context, r *model.Restaurant) error {
	query, err := db.BuildUpsert(db.UpsertConfig{
		Table:        "restaurants",
		Columns:      upsertInsertColumns,
		ConflictKeys: []string{"place_id"},
		UpdateCols:   upsertUpdateColumns,
		Returning:    []string{"id", "slug", "neighborhood", "analysis_status", "created_at"},
	})
	if err != nil {
		return eris.Wrap(err, "sqlite: build upsert")
	}
	query = dollarParam.ReplaceAllString(query, "?")

	now := time.Now().UTC()
	status := r.AnalysisStatus
	if status == "" {
		status = model.StatusPending
	}

	err = s.db.QueryRowContext(ctx, query,
		uuid.New().String(), r.PlaceID, r.Slug, r.Name, r.Address, r.Neighborhood, r.Lat, r.Lng,
		r.Rating, r.ReviewCount, r.PriceLevel, r.PhotoURL, string(status), now, now,
	).Scan(&r.ID, &r.Slug, &r.Neighborhood, &r.AnalysisStatus, &r.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert restaurant %s", r.PlaceID)
	}
	r.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]model.Restaurant, error) {
	query, args := listQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list restaurants")
	}
	defer rows.Close()

	var out []model.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan restaurant")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate restaurants")
}

func (s *SQLiteStore) GetRestaurantBySlug(ctx context.Context, slug string) (*model.Restaurant, error) {
	r, err := scanRestaurant(s.db.QueryRowContext(ctx,
		`SELECT `+restaurantColumns("")+` FROM restaurants WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: restaurant %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get restaurant %s", slug)
	}
	return r, nil
}

func (s *SQLiteStore) UpdateRestaurant(ctx context.Context, id string, u RestaurantUpdate) error {
	query, args, ok := updateQuery(id, u, time.Now().UTC())
	if !ok {
		return nil
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update restaurant %s", id)
	}
	return checkRowsAffected(res, ErrNotFound, "restaurant", id)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, from, to model.AnalysisStatus, errMsg string) error {
	if err := model.Transition(from, to); err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", id)
	}
	res, err := s.db.ExecContext(ctx, setStatusQuery,
		string(to), nullableError(errMsg), time.Now().UTC(), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", id)
	}
	return checkRowsAffected(res, ErrStaleStatus, "restaurant", id)
}

func (s *SQLiteStore) RequeueStatus(ctx context.Context, from, to model.AnalysisStatus) (int, error) {
	if err := model.Transition(from, to); err != nil {
		return 0, eris.Wrap(err, "sqlite: requeue")
	}
	res, err := s.db.ExecContext(ctx, requeueQuery, string(to), time.Now().UTC(), string(from))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: requeue %s -> %s", from, to)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.AnalysisStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, countByStatusQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	out := make(map[model.AnalysisStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		out[model.AnalysisStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate status counts")
}

func (s *SQLiteStore) ReplaceRawMenu(ctx context.Context, restaurantID string, content string, source model.MenuType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin raw menu tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM raw_menus WHERE restaurant_id = ?`, restaurantID); err != nil {
		return eris.Wrapf(err, "sqlite: delete raw menu %s", restaurantID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO raw_menus (id, restaurant_id, content, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), restaurantID, content, string(source), time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert raw menu %s", restaurantID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit raw menu tx")
}

func (s *SQLiteStore) ListAnalysisJobs(ctx context.Context, limit int) ([]model.AnalysisJob, error) {
	query, args := analysisJobsQuery(limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analysis jobs")
	}
	defer rows.Close()

	var out []model.AnalysisJob
	for rows.Next() {
		var text string
		r, err := scanRestaurant(withExtra{row: rows, extra: []any{&text}})
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis job")
		}
		out = append(out, model.AnalysisJob{Restaurant: *r, RawText: text})
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate analysis jobs")
}

// ReplaceMenuItems swaps the restaurant's items and marks it analyzed in one
// transaction. Any error rolls back, leaving the previous items in place.
func (s *SQLiteStore) ReplaceMenuItems(ctx context.Context, restaurantID string, items []model.MenuItem, analyzedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin menu items tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM menu_items WHERE restaurant_id = ?`, restaurantID); err != nil {
		return eris.Wrapf(err, "sqlite: delete menu items %s", restaurantID)
	}

	for _, it := range items {
		var mods *string
		if it.Modifications != nil {
			b, err := json.Marshal(it.Modifications)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal modifications")
			}
			m := string(b)
			mods = &m
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO menu_items (id, restaurant_id, name, description, is_vegan, is_vegetarian, is_gluten_free,
				confidence, modifications, ask_server, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), restaurantID, it.Name, it.Description, it.IsVegan, it.IsVegetarian, it.IsGlutenFree,
			string(it.Confidence), mods, it.AskServer, analyzedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert menu item %q", it.Name)
		}
	}

	res, err := tx.ExecContext(ctx, markAnalyzedQuery,
		string(model.StatusAnalyzed), analyzedAt, analyzedAt, restaurantID, string(model.StatusAnalyzing))
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark analyzed %s", restaurantID)
	}
	if err := checkRowsAffected(res, ErrStaleStatus, "restaurant", restaurantID); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit menu items tx")
}

func (s *SQLiteStore) ListMenuItems(ctx context.Context, restaurantID string) ([]model.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, restaurant_id, name, description, is_vegan, is_vegetarian, is_gluten_free,
			confidence, modifications, ask_server, created_at
		FROM menu_items WHERE restaurant_id = ? ORDER BY created_at, name`, restaurantID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list menu items %s", restaurantID)
	}
	defer rows.Close()

	var out []model.MenuItem
	for rows.Next() {
		var it model.MenuItem
		var mods *string
		if err := rows.Scan(&it.ID, &it.RestaurantID, &it.Name, &it.Description, &it.IsVegan, &it.IsVegetarian,
			&it.IsGlutenFree, &it.Confidence, &mods, &it.AskServer, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan menu item")
		}
		if mods != nil {
			if err := json.Unmarshal([]byte(*mods), &it.Modifications); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal modifications")
			}
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate menu items")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, stages, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), "[]", run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.Run) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stages = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(stagesJSON), run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, ErrNotFound, "run", run.ID)
}

func checkRowsAffected(res sql.Result, sentinel error, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(sentinel, "sqlite: %s %s", entity, id)
	}
	return nil
}
