// Package store keeps the history of published GC summaries in SQLite or
// PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/gc-sentinel/gc-sentinel/internal/config"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// MaxRecentRows limits the rows returned by Recent.
const MaxRecentRows = 1000

// Record is one stored summary.
type Record struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Resource   string    `json:"resource"`
	Dialect    string    `json:"dialect"`
	ParsedAt   time.Time `json:"parsed_at"`
	Events     int       `json:"events"`
	FullCount  int       `json:"full_count"`
	Throughput *float64  `json:"throughput,omitempty"`
	MaxPause   float64   `json:"max_pause"`
	TotalPause float64   `json:"total_pause"`
	Footprint  int64     `json:"footprint_kb"`
	Score      int       `json:"score"`
	Status     string    `json:"status"`
	Failures   int       `json:"failures"`
}

// Store handles the summary history database.
type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open opens the history database selected by cfg. An empty driver
// disables history and returns nil.
func Open(cfg *config.StoreConfig, logger *slog.Logger) (*Store, error) {
	if cfg.Driver == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}

	switch cfg.Driver {
	case "sqlite":
		// a single writer avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &Store{db: db, driver: cfg.Driver, logger: logger}, nil
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the history table when it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	ddl := `CREATE TABLE IF NOT EXISTS gc_summaries (
		` + id + `,
		run_id      TEXT NOT NULL,
		resource    TEXT NOT NULL,
		dialect     TEXT NOT NULL,
		parsed_at   TIMESTAMP NOT NULL,
		events      INTEGER NOT NULL,
		full_count  INTEGER NOT NULL,
		throughput  DOUBLE PRECISION,
		max_pause   DOUBLE PRECISION NOT NULL,
		total_pause DOUBLE PRECISION NOT NULL,
		footprint   BIGINT NOT NULL,
		score       INTEGER NOT NULL,
		status      TEXT NOT NULL,
		failures    INTEGER NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating gc_summaries: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS gc_summaries_resource ON gc_summaries (resource, parsed_at)`); err != nil {
		return fmt.Errorf("creating gc_summaries index: %w", err)
	}
	return nil
}

// Save appends the summary of report. A missing table is created once.
func (s *Store) Save(ctx context.Context, report *model.Report) error {
	err := s.insert(ctx, report)
	if err != nil && isUndefinedTableError(err) {
		s.logger.Info("gc_summaries table missing, creating it")
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		err = s.insert(ctx, report)
	}
	if err != nil {
		return fmt.Errorf("saving summary of %s: %w", report.Resource, err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, report *model.Report) error {
	sum := report.Summary
	var throughput sql.NullFloat64
	if sum.HasThroughput {
		throughput = sql.NullFloat64{Float64: sum.Throughput, Valid: true}
	}

	query := s.rebind(`INSERT INTO gc_summaries
		(run_id, resource, dialect, parsed_at, events, full_count, throughput,
		 max_pause, total_pause, footprint, score, status, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		report.RunID,
		report.Resource,
		report.Dialect,
		report.ParsedAt.UTC(),
		sum.Events,
		sum.FullCount,
		throughput,
		sum.Pause.Max,
		sum.TotalPause,
		sum.Footprint,
		report.Health.Score,
		report.Health.Status,
		report.Failures.Total,
	)
	return err
}

// Recent returns up to limit summaries of resource, newest first. A missing
// table yields no rows.
func (s *Store) Recent(ctx context.Context, resource string, limit int) ([]Record, error) {
	if limit <= 0 || limit > MaxRecentRows {
		limit = MaxRecentRows
	}

	query := s.rebind(`SELECT id, run_id, resource, dialect, parsed_at, events, full_count,
		throughput, max_pause, total_pause, footprint, score, status, failures
		FROM gc_summaries
		WHERE resource = ?
		ORDER BY id DESC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, resource, limit)
	if err != nil {
		if isUndefinedTableError(err) {
			s.logger.Warn("gc_summaries table does not exist, no history")
			return nil, nil
		}
		return nil, fmt.Errorf("querying gc_summaries: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var throughput sql.NullFloat64
		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.Resource,
			&r.Dialect,
			&r.ParsedAt,
			&r.Events,
			&r.FullCount,
			&throughput,
			&r.MaxPause,
			&r.TotalPause,
			&r.Footprint,
			&r.Score,
			&r.Status,
			&r.Failures,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning gc_summaries row: %w", err)
		}
		if throughput.Valid {
			r.Throughput = &throughput.Float64
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading gc_summaries: %w", err)
	}

	return records, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// isUndefinedTableError checks if the error is due to a missing table.
func isUndefinedTableError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 42P01 = undefined_table
		return pqErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "no such table")
}
