// Package store persists scoring results so earlier assessments of a
// submission can be listed later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/ppiankov/omecscore/internal/model"
)

// ErrNotFound is returned when no stored result matches
var ErrNotFound = errors.New("result not found")

// Driver names a supported database backend
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store is a SQL-backed result history
type Store struct {
	db     *sql.DB
	driver Driver
}

// Open opens the database and ensures the schema exists
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch Driver(strings.ToLower(string(driver))) {
	case DriverSQLite:
		driver = DriverSQLite
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:omecscore.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres, "pgx":
		driver = DriverPostgres
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/omecscore?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Driver returns the backend in use
func (s *Store) Driver() Driver {
	return s.driver
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores an assessment, assigning an ID if it has none
func (s *Store) Save(ctx context.Context, a *model.Assessment) error {
	if a == nil || a.Result == nil {
		return fmt.Errorf("save result: empty assessment")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ScoredAt.IsZero() {
		a.ScoredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO results
		(id, submission_id, scored_at, total_score, max_score, percentage, assessment_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.SubmissionID, a.ScoredAt.UnixMilli(),
		a.Result.TotalScore, a.Result.MaxPossibleScore, a.Result.Percentage, string(payload))
	if err != nil {
		return fmt.Errorf("insert result %s: %w", a.ID, err)
	}
	return nil
}

// ListBySubmission returns stored results for a submission, newest first.
// limit <= 0 returns all of them.
func (s *Store) ListBySubmission(ctx context.Context, submissionID string, limit int) ([]*model.Assessment, error) {
	query := `SELECT assessment_json FROM results WHERE submission_id=$1 ORDER BY scored_at DESC, id DESC`
	args := []any{submissionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*model.Assessment{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var a model.Assessment
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Latest returns the most recent result for a submission
func (s *Store) Latest(ctx context.Context, submissionID string) (*model.Assessment, error) {
	list, err := s.ListBySubmission(ctx, submissionID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: submission %s", ErrNotFound, submissionID)
	}
	return list[0], nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// schema is portable across SQLite and Postgres
var schema = []string{
	`CREATE TABLE IF NOT EXISTS results (
  id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL,
  scored_at BIGINT NOT NULL,
  total_score DOUBLE PRECISION NOT NULL,
  max_score DOUBLE PRECISION NOT NULL,
  percentage DOUBLE PRECISION NOT NULL,
  assessment_json TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS results_submission_idx ON results (submission_id, scored_at)`,
}
