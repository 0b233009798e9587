package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sitecheck/internal/model"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS businesses (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	phone             TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	country           TEXT NOT NULL DEFAULT '',
	url               TEXT NOT NULL DEFAULT '',
	url_source        TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	last_validated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS validation_results (
	run_id      TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_results_business ON validation_results (business_id, created_at DESC);

CREATE TABLE IF NOT EXISTS discovery_attempts (
	id            BIGSERIAL PRIMARY KEY,
	business_id   TEXT NOT NULL REFERENCES businesses(id),
	method        TEXT NOT NULL,
	found         BOOLEAN NOT NULL,
	candidate_url TEXT NOT NULL DEFAULT '',
	attempted_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_business ON discovery_attempts (business_id);
`

// pgxPool is the subset of *pgxpool.Pool the store uses; pgxmock implements it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Postgres implements Store on PostgreSQL via pgx.
type Postgres struct {
	pool pgxPool
}

// NewPostgres connects to databaseURL and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse database url")
	}
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect")
	}

	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// newPostgresWithPool wires an existing pool (tests).
func newPostgresWithPool(pool pgxPool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

const pgSelectBusiness = `
SELECT id, name, phone, address, city, state, country, url, url_source, status, last_validated_at
FROM businesses WHERE id = $1`

func (s *Postgres) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx, pgSelectBusiness, id)
	b, err := scanBusiness(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: get business")
	}
	return b, nil
}

const pgListByStatus = `
SELECT id, name, phone, address, city, state, country, url, url_source, status, last_validated_at
FROM businesses WHERE status = ANY($1)
ORDER BY last_validated_at NULLS FIRST
LIMIT $2`

func (s *Postgres) ListByStatus(ctx context.Context, statuses []model.ValidationState, limit int) ([]model.Business, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, pgListByStatus, vals, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list by status")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan business")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "store: list by status")
}

const pgUpsertBusiness = `
INSERT INTO businesses (id, name, phone, address, city, state, country, url, url_source, status, last_validated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	phone = EXCLUDED.phone,
	address = EXCLUDED.address,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	country = EXCLUDED.country,
	url = EXCLUDED.url,
	url_source = EXCLUDED.url_source,
	status = EXCLUDED.status`

func (s *Postgres) UpsertBusiness(ctx context.Context, b model.Business) error {
	if b.Status == "" {
		b.Status = model.StatePending
	}
	_, err := s.pool.Exec(ctx, pgUpsertBusiness,
		b.ID, b.Name, b.Phone, b.Address, b.City, b.State, b.Country,
		b.URL, string(b.URLSource), string(b.Status), b.LastValidatedAt)
	return eris.Wrap(err, "store: upsert business")
}

const pgSelectAttempts = `
SELECT business_id, method, found, candidate_url, attempted_at
FROM discovery_attempts WHERE business_id = $1
ORDER BY attempted_at`

func (s *Postgres) GetAttemptLog(ctx context.Context, businessID string) (model.AttemptLog, error) {
	rows, err := s.pool.Query(ctx, pgSelectAttempts, businessID)
	if err != nil {
		return nil, eris.Wrap(err, "store: get attempt log")
	}
	defer rows.Close()

	var log model.AttemptLog
	for rows.Next() {
		var a model.DiscoveryAttempt
		if err := rows.Scan(&a.BusinessID, &a.Method, &a.Found, &a.CandidateURL, &a.AttemptedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan attempt")
		}
		log = append(log, a)
	}
	return log, eris.Wrap(rows.Err(), "store: get attempt log")
}

const pgInsertResult = `
INSERT INTO validation_results (run_id, business_id, result) VALUES ($1, $2, $3)`

const pgInsertAttempt = `
INSERT INTO discovery_attempts (business_id, method, found, candidate_url, attempted_at)
VALUES ($1, $2, $3, $4, $5)`

const pgApplyTransition = `
UPDATE businesses SET
	status = $2,
	last_validated_at = $3,
	url = CASE WHEN $4 THEN '' WHEN $5 <> '' THEN $5 ELSE url END,
	url_source = CASE WHEN $4 THEN '' WHEN $5 <> '' THEN 'discovered' ELSE url_source END
WHERE id = $1`

func (s *Postgres) ApplyResult(ctx context.Context, res *model.CompleteValidationResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "store: marshal result")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, pgInsertResult, res.RunID, res.BusinessID, doc); err != nil {
		return eris.Wrap(err, "store: insert result")
	}

	for _, a := range res.NewAttempts {
		if _, err := tx.Exec(ctx, pgInsertAttempt,
			a.BusinessID, string(a.Method), a.Found, a.CandidateURL, a.AttemptedAt); err != nil {
			return eris.Wrap(err, "store: insert attempt")
		}
	}

	if !res.Skipped {
		if _, err := tx.Exec(ctx, pgApplyTransition,
			res.BusinessID, string(res.NextState), time.Now().UTC(), res.ClearURL, res.NewURL); err != nil {
			return eris.Wrap(err, "store: apply transition")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "store: commit")
}

const pgListResults = `
SELECT result FROM validation_results
WHERE business_id = $1
ORDER BY created_at DESC
LIMIT $2`

func (s *Postgres) ListResults(ctx context.Context, businessID string, limit int) ([]model.CompleteValidationResult, error) {
	rows, err := s.pool.Query(ctx, pgListResults, businessID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list results")
	}
	defer rows.Close()

	var out []model.CompleteValidationResult
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "store: scan result")
		}
		var res model.CompleteValidationResult
		if err := json.Unmarshal(doc, &res); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal result")
		}
		out = append(out, res)
	}
	return out, eris.Wrap(rows.Err(), "store: list results")
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// scanBusiness reads one business row; works for both Row and Rows.
func scanBusiness(row pgx.Row) (*model.Business, error) {
	var b model.Business
	var source, status string
	if err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Address, &b.City, &b.State,
		&b.Country, &b.URL, &source, &status, &b.LastValidatedAt); err != nil {
		return nil, err
	}
	b.URLSource = model.URLSource(source)
	b.Status = model.ValidationState(status)
	return &b, nil
}
