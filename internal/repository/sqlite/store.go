package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/repository"
)

const (
	defaultListLimit = 100

	// fixed width so received_at sorts as text
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store keeps collected check results in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens the database file and runs migrations.
func New(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS check_results (
	id                  TEXT PRIMARY KEY,
	kind                TEXT NOT NULL,
	host_name           TEXT NOT NULL,
	service_description TEXT NOT NULL DEFAULT '',
	check_options       INTEGER NOT NULL DEFAULT 0,
	scheduled_check     INTEGER NOT NULL DEFAULT 0,
	reschedule_check    INTEGER NOT NULL DEFAULT 0,
	latency             REAL NOT NULL DEFAULT 0,
	start_sec           INTEGER NOT NULL,
	start_usec          INTEGER NOT NULL,
	finish_sec          INTEGER NOT NULL,
	finish_usec         INTEGER NOT NULL,
	return_code         INTEGER NOT NULL,
	exited_ok           INTEGER NOT NULL,
	output              TEXT NOT NULL,
	received_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_results_object ON check_results (host_name, service_description, received_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_results_received_at ON check_results (received_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveResult inserts result, filling in ID and ReceivedAt when unset.
func (s *Store) SaveResult(ctx context.Context, result *domain.CheckResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.ReceivedAt.IsZero() {
		result.ReceivedAt = time.Now().UTC()
	}

	query := `
INSERT INTO check_results (
	id, kind, host_name, service_description, check_options, scheduled_check, reschedule_check,
	latency, start_sec, start_usec, finish_sec, finish_usec, return_code, exited_ok, output, received_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		result.ID, string(result.Kind), result.HostName, result.ServiceDescription,
		result.CheckOptions, result.ScheduledCheck, result.RescheduleCheck, result.Latency,
		result.StartTime.Sec, result.StartTime.Usec, result.FinishTime.Sec, result.FinishTime.Usec,
		result.ReturnCode, result.ExitedOK, result.Output, result.ReceivedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert check result: %w", err)
	}
	return nil
}

// ListResults returns results newest first.
func (s *Store) ListResults(ctx context.Context, filter repository.ResultFilter) ([]domain.CheckResult, error) {
	var (
		where []string
		args  []any
	)
	if filter.HostName != "" {
		where = append(where, "host_name = ?")
		args = append(args, filter.HostName)
	}
	if filter.ServiceDescription != "" {
		where = append(where, "service_description = ?")
		args = append(args, filter.ServiceDescription)
	}
	if filter.Since != nil {
		where = append(where, "received_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var b strings.Builder
	b.WriteString(selectColumns)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY received_at DESC, id DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query check results: %w", err)
	}
	defer rows.Close()

	var results []domain.CheckResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// LatestResult returns the newest result for one host or service.
func (s *Store) LatestResult(ctx context.Context, host, service string) (*domain.CheckResult, error) {
	query := selectColumns + ` WHERE host_name = ? AND service_description = ? ORDER BY received_at DESC, id DESC LIMIT 1`
	r, err := scanResult(s.db.QueryRowContext(ctx, query, host, service))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return r, err
}

const selectColumns = `
SELECT id, kind, host_name, service_description, check_options, scheduled_check, reschedule_check,
	latency, start_sec, start_usec, finish_sec, finish_usec, return_code, exited_ok, output, received_at
FROM check_results`

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (*domain.CheckResult, error) {
	var (
		r          domain.CheckResult
		kind       string
		receivedAt string
	)
	err := row.Scan(
		&r.ID, &kind, &r.HostName, &r.ServiceDescription,
		&r.CheckOptions, &r.ScheduledCheck, &r.RescheduleCheck, &r.Latency,
		&r.StartTime.Sec, &r.StartTime.Usec, &r.FinishTime.Sec, &r.FinishTime.Usec,
		&r.ReturnCode, &r.ExitedOK, &r.Output, &receivedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan check result: %w", err)
	}
	r.Kind = domain.CheckKind(kind)
	r.ReceivedAt, _ = time.Parse(timeLayout, receivedAt)
	return &r, nil
}
