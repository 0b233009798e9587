package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sitecheck/internal/model"
)

const sqliteSchema = `
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
	last_validated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS validation_results (
	run_id      TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	result      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_business ON validation_results (business_id, created_at DESC);

CREATE TABLE IF NOT EXISTS discovery_attempts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	business_id   TEXT NOT NULL REFERENCES businesses(id),
	method        TEXT NOT NULL,
	found         INTEGER NOT NULL,
	candidate_url TEXT NOT NULL DEFAULT '',
	attempted_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_business ON discovery_attempts (business_id);
`

// SQLite implements Store on an embedded database, for local runs and tests.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	// The sqlite driver serializes writes; one connection avoids lock errors.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "store: migrate sqlite")
	}
	return &SQLite{db: db}, nil
}

const sqliteSelectBusiness = `
SELECT id, name, phone, address, city, state, country, url, url_source, status, last_validated_at
FROM businesses WHERE id = ?`

func (s *SQLite) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	b, err := scanBusinessSQL(s.db.QueryRowContext(ctx, sqliteSelectBusiness, id))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: get business")
	}
	return b, nil
}

func (s *SQLite) ListByStatus(ctx context.Context, statuses []model.ValidationState, limit int) ([]model.Business, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := `
SELECT id, name, phone, address, city, state, country, url, url_source, status, last_validated_at
FROM businesses WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)
ORDER BY last_validated_at IS NOT NULL, last_validated_at
LIMIT ?`

	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list by status")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		b, err := scanBusinessSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan business")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "store: list by status")
}

const sqliteUpsertBusiness = `
INSERT INTO businesses (id, name, phone, address, city, state, country, url, url_source, status, last_validated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	phone = excluded.phone,
	address = excluded.address,
	city = excluded.city,
	state = excluded.state,
	country = excluded.country,
	url = excluded.url,
	url_source = excluded.url_source,
	status = excluded.status`

func (s *SQLite) UpsertBusiness(ctx context.Context, b model.Business) error {
	if b.Status == "" {
		b.Status = model.StatePending
	}
	_, err := s.db.ExecContext(ctx, sqliteUpsertBusiness,
		b.ID, b.Name, b.Phone, b.Address, b.City, b.State, b.Country,
		b.URL, string(b.URLSource), string(b.Status), b.LastValidatedAt)
	return eris.Wrap(err, "store: upsert business")
}

const sqliteSelectAttempts = `
SELECT business_id, method, found, candidate_url, attempted_at
FROM discovery_attempts WHERE business_id = ?
ORDER BY attempted_at`

func (s *SQLite) GetAttemptLog(ctx context.Context, businessID string) (model.AttemptLog, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectAttempts, businessID)
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

func (s *SQLite) ApplyResult(ctx context.Context, res *model.CompleteValidationResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "store: marshal result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO validation_results (run_id, business_id, result) VALUES (?, ?, ?)`,
		res.RunID, res.BusinessID, string(doc)); err != nil {
		return eris.Wrap(err, "store: insert result")
	}

	for _, a := range res.NewAttempts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO discovery_attempts (business_id, method, found, candidate_url, attempted_at) VALUES (?, ?, ?, ?, ?)`,
			a.BusinessID, string(a.Method), a.Found, a.CandidateURL, a.AttemptedAt); err != nil {
			return eris.Wrap(err, "store: insert attempt")
		}
	}

	if !res.Skipped {
		b, err := scanBusinessSQL(tx.QueryRowContext(ctx, sqliteSelectBusiness, res.BusinessID))
		if err != nil {
			return eris.Wrap(err, "store: load business for transition")
		}
		applyBusinessUpdate(b, res)
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE businesses SET status = ?, url = ?, url_source = ?, last_validated_at = ? WHERE id = ?`,
			string(b.Status), b.URL, string(b.URLSource), now, b.ID); err != nil {
			return eris.Wrap(err, "store: apply transition")
		}
	}

	return eris.Wrap(tx.Commit(), "store: commit")
}

func (s *SQLite) ListResults(ctx context.Context, businessID string, limit int) ([]model.CompleteValidationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM validation_results WHERE business_id = ? ORDER BY created_at DESC LIMIT ?`,
		businessID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list results")
	}
	defer rows.Close()

	var out []model.CompleteValidationResult
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "store: scan result")
		}
		var res model.CompleteValidationResult
		if err := json.Unmarshal([]byte(doc), &res); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal result")
		}
		out = append(out, res)
	}
	return out, eris.Wrap(rows.Err(), "store: list results")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// sqlRow covers both *sql.Row and *sql.Rows.
type sqlRow interface {
	Scan(dest ...any) error
}

func scanBusinessSQL(row sqlRow) (*model.Business, error) {
	var b model.Business
	var source, status string
	var validated sql.NullTime
	if err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Address, &b.City, &b.State,
		&b.Country, &b.URL, &source, &status, &validated); err != nil {
		return nil, err
	}
	b.URLSource = model.URLSource(source)
	b.Status = model.ValidationState(status)
	if validated.Valid {
		t := validated.Time
		b.LastValidatedAt = &t
	}
	return &b, nil
}
