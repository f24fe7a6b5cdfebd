package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/db"
	"github.com/mealingabout/menu-pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id                     TEXT PRIMARY KEY,
	place_id               TEXT NOT NULL UNIQUE,
	slug                   TEXT NOT NULL UNIQUE,
	name                   TEXT NOT NULL,
	address                TEXT NOT NULL DEFAULT '',
	neighborhood           TEXT NOT NULL DEFAULT '',
	lat                    DOUBLE PRECISION NOT NULL DEFAULT 0,
	lng                    DOUBLE PRECISION NOT NULL DEFAULT 0,
	phone                  TEXT,
	website                TEXT,
	summary                TEXT,
	photo_url              TEXT,
	rating                 DOUBLE PRECISION,
	review_count           INTEGER,
	price_level            INTEGER,
	serves_vegetarian_food BOOLEAN,
	menu_url               TEXT,
	menu_type              TEXT CHECK (menu_type IN ('html', 'pdf', 'none')),
	analysis_status        TEXT NOT NULL DEFAULT 'pending'
		CHECK (analysis_status IN ('pending', 'extracting', 'extracted', 'analyzing', 'analyzed', 'failed')),
	analysis_error         TEXT,
	last_analyzed_at       TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_restaurants_status ON restaurants(analysis_status);

CREATE TABLE IF NOT EXISTS raw_menus (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	content       TEXT NOT NULL,
	source        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_menus_restaurant ON raw_menus(restaurant_id);

CREATE TABLE IF NOT EXISTS menu_items (
	id             TEXT PRIMARY KEY,
	restaurant_id  TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	description    TEXT,
	is_vegan       BOOLEAN NOT NULL DEFAULT false,
	is_vegetarian  BOOLEAN NOT NULL DEFAULT false,
	is_gluten_free BOOLEAN NOT NULL DEFAULT false,
	confidence     TEXT NOT NULL CHECK (confidence IN ('certain', 'uncertain')),
	modifications  TEXT[],
	ask_server     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_menu_items_restaurant ON menu_items(restaurant_id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	stages      JSONB NOT NULL DEFAULT '[]',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListPlaceSlugs(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT place_id, slug FROM restaurants`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list place slugs")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var placeID, slug string
		if err := rows.Scan(&placeID, &slug); err != nil {
			return nil, eris.Wrap(err, "postgres: scan place slug")
		}
		out[placeID] = slug
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate place slugs")
}

func (s *PostgresStore) UpsertRestaurant(ctx context.Context, r *model.Restaurant) error {
	query, err := db.BuildUpsert(db.UpsertConfig{
		Table:        "restaurants",
		Columns:      upsertInsertColumns,
		ConflictKeys: []string{"place_id"},
		UpdateCols:   upsertUpdateColumns,
		Returning:    []string{"id", "slug", "neighborhood", "analysis_status", "created_at"},
	})
	if err != nil {
		return eris.Wrap(err, "postgres: build upsert")
	}

	now := time.Now().UTC()
	status := r.AnalysisStatus
	if status == "" {
		status = model.StatusPending
	}

	err = s.pool.QueryRow(ctx, query,
		uuid.New().String(), r.PlaceID, r.Slug, r.Name, r.Address, r.Neighborhood, r.Lat, r.Lng,
		r.Rating, r.ReviewCount, r.PriceLevel, r.PhotoURL, string(status), now, now,
	).Scan(&r.ID, &r.Slug, &r.Neighborhood, &r.AnalysisStatus, &r.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert restaurant %s", r.PlaceID)
	}
	r.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]model.Restaurant, error) {
	query, args := listQuery(filter)
	rows, err := s.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list restaurants")
	}
	defer rows.Close()

	var out []model.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan restaurant")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate restaurants")
}

func (s *PostgresStore) GetRestaurantBySlug(ctx context.Context, slug string) (*model.Restaurant, error) {
	r, err := scanRestaurant(s.pool.QueryRow(ctx,
		`SELECT `+restaurantColumns("")+` FROM restaurants WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: restaurant %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get restaurant %s", slug)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRestaurant(ctx context.Context, id string, u RestaurantUpdate) error {
	query, args, ok := updateQuery(id, u, time.Now().UTC())
	if !ok {
		return nil
	}
	tag, err := s.pool.Exec(ctx, rebind(query), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update restaurant %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: restaurant %s", id)
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, from, to model.AnalysisStatus, errMsg string) error {
	if err := model.Transition(from, to); err != nil {
		return eris.Wrapf(err, "postgres: set status %s", id)
	}
	tag, err := s.pool.Exec(ctx, rebind(setStatusQuery),
		string(to), nullableError(errMsg), time.Now().UTC(), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleStatus, "postgres: restaurant %s not %s", id, from)
	}
	return nil
}

func (s *PostgresStore) RequeueStatus(ctx context.Context, from, to model.AnalysisStatus) (int, error) {
	if err := model.Transition(from, to); err != nil {
		return 0, eris.Wrap(err, "postgres: requeue")
	}
	tag, err := s.pool.Exec(ctx, rebind(requeueQuery), string(to), time.Now().UTC(), string(from))
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: requeue %s -> %s", from, to)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.AnalysisStatus]int, error) {
	rows, err := s.pool.Query(ctx, countByStatusQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	out := make(map[model.AnalysisStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		out[model.AnalysisStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate status counts")
}

func (s *PostgresStore) ReplaceRawMenu(ctx context.Context, restaurantID string, content string, source model.MenuType) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin raw menu tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM raw_menus WHERE restaurant_id = $1`, restaurantID); err != nil {
		return eris.Wrapf(err, "postgres: delete raw menu %s", restaurantID)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO raw_menus (id, restaurant_id, content, source, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), restaurantID, content, string(source), time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: insert raw menu %s", restaurantID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit raw menu tx")
}

func (s *PostgresStore) ListAnalysisJobs(ctx context.Context, limit int) ([]model.AnalysisJob, error) {
	query, args := analysisJobsQuery(limit)
	rows, err := s.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analysis jobs")
	}
	defer rows.Close()

	var out []model.AnalysisJob
	for rows.Next() {
		var text string
		r, err := scanRestaurant(withExtra{row: rows, extra: []any{&text}})
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis job")
		}
		out = append(out, model.AnalysisJob{Restaurant: *r, RawText: text})
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate analysis jobs")
}

var menuItemColumns = []string{
	"id", "restaurant_id", "name", "description", "is_vegan", "is_vegetarian", "is_gluten_free",
	"confidence", "modifications", "ask_server", "created_at",
}

// ReplaceMenuItems swaps the restaurant's items and marks it analyzed in one
// transaction. Any error rolls back, leaving the previous items in place.
func (s *PostgresStore) ReplaceMenuItems(ctx context.Context, restaurantID string, items []model.MenuItem, analyzedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin menu items tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM menu_items WHERE restaurant_id = $1`, restaurantID); err != nil {
		return eris.Wrapf(err, "postgres: delete menu items %s", restaurantID)
	}

	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{
			uuid.New().String(), restaurantID, it.Name, it.Description, it.IsVegan, it.IsVegetarian, it.IsGlutenFree,
			string(it.Confidence), it.Modifications, it.AskServer, analyzedAt,
		}
	}
	if _, err := db.CopyFrom(ctx, tx, "menu_items", menuItemColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert menu items %s", restaurantID)
	}

	tag, err := tx.Exec(ctx, rebind(markAnalyzedQuery),
		string(model.StatusAnalyzed), analyzedAt, analyzedAt, restaurantID, string(model.StatusAnalyzing))
	if err != nil {
		return eris.Wrapf(err, "postgres: mark analyzed %s", restaurantID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleStatus, "postgres: restaurant %s not analyzing", restaurantID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit menu items tx")
}

func (s *PostgresStore) ListMenuItems(ctx context.Context, restaurantID string) ([]model.MenuItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, restaurant_id, name, description, is_vegan, is_vegetarian, is_gluten_free,
			confidence, modifications, ask_server, created_at
		FROM menu_items WHERE restaurant_id = $1 ORDER BY created_at, name`, restaurantID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list menu items %s", restaurantID)
	}
	defer rows.Close()

	var out []model.MenuItem
	for rows.Next() {
		var it model.MenuItem
		if err := rows.Scan(&it.ID, &it.RestaurantID, &it.Name, &it.Description, &it.IsVegan, &it.IsVegetarian,
			&it.IsGlutenFree, &it.Confidence, &it.Modifications, &it.AskServer, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan menu item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate menu items")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, stages, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), []byte("[]"), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.Run) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stages")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, stages = $2, finished_at = $3 WHERE id = $4`,
		string(run.Status), stagesJSON, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", run.ID)
	}
	return nil
}
