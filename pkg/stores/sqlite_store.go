package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/skilldag/skilldag/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// An in-memory database lives and dies with its connection.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	} else {
		if cfg.MaxOpenConns == 0 {
			cfg.MaxOpenConns = 10
		}
		if cfg.MaxIdleConns == 0 {
			cfg.MaxIdleConns = 2
		}
		if cfg.ConnMaxLifetime == 0 {
			cfg.ConnMaxLifetime = 5 * time.Minute
		}
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection. File databases use WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if s.cfg.Path != memoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// SaveResult persists a finished run with its node results and audit events in one
// transaction and returns the stored run summary.
func (s *SQLiteStore) SaveResult(ctx context.Context, workflow, source string, result *engine.DAGExecutionResult, metadata map[string]string) (*Run, error) {
	if result == nil {
		return nil, fmt.Errorf("result is required")
	}
	if result.RunID == "" {
		return nil, fmt.Errorf("result has no run ID")
	}

	run := &Run{
		ID:          result.RunID,
		Workflow:    workflow,
		Source:      source,
		Status:      result.Status,
		Order:       append([]string{}, result.Order...),
		Summary:     result.Summary(),
		Duration:    result.Duration,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}

	order, err := json.Marshal(run.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, workflow, source, status, node_order,
			total, completed, failed, skipped, cancelled, retries,
			duration_ms, started_at, completed_at, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Workflow, run.Source, string(run.Status), string(order),
		run.Summary.Total, run.Summary.Completed, run.Summary.Failed,
		run.Summary.Skipped, run.Summary.Cancelled, run.Summary.Retries,
		run.Duration.Milliseconds(), run.StartedAt, run.CompletedAt, meta, run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	for i, res := range result.Results {
		if err := insertSkillResult(ctx, tx, run.ID, i, res); err != nil {
			return nil, err
		}
		if res.Audit == nil {
			continue
		}
		for seq, ev := range res.Audit.Events() {
			if err := insertAuditEvent(ctx, tx, run.ID, res.SkillName, seq, ev); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	return run, nil
}

func insertSkillResult(ctx context.Context, tx *sql.Tx, runID string, position int, res *engine.SkillResult) error {
	output, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Errorf("failed to encode output of %s: %w", res.SkillName, err)
	}
	if res.Output == nil {
		output = []byte("{}")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO skill_results (
			id, run_id, position, node, skill_version, status, output,
			error, error_code, retry_count, duration_ms, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(), runID, position, res.SkillName, res.SkillVersion, string(res.Status), string(output),
		nullString(res.Error), nullString(res.ErrorCode), res.RetryCount, res.Duration.Milliseconds(),
		nullTime(res.StartedAt), nullTime(res.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create result for %s: %w", res.SkillName, err)
	}
	return nil
}

func insertAuditEvent(ctx context.Context, tx *sql.Tx, runID, node string, seq int, ev engine.AuditEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (run_id, node, seq, type, attempt, message, key, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, node, seq, string(ev.Type), ev.Attempt, ev.Message, ev.Key, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit event for %s: %w", node, err)
	}
	return nil
}

const runColumns = `id, workflow, source, status, node_order,
	total, completed, failed, skipped, cancelled, retries,
	duration_ms, started_at, completed_at, metadata, created_at`

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run and, by cascade, its results and audit events.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// PruneRuns keeps the newest keep runs of a workflow and deletes the rest.
func (s *SQLiteStore) PruneRuns(ctx context.Context, workflow string, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE workflow = ? AND id NOT IN (
			SELECT id FROM runs WHERE workflow = ? ORDER BY started_at DESC, id LIMIT ?
		)
	`, workflow, workflow, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	return result.RowsAffected()
}

// ListSkillResults returns the node results of a run in execution order.
func (s *SQLiteStore) ListSkillResults(ctx context.Context, runID string) ([]*SkillResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, position, node, skill_version, status, output,
			error, error_code, retry_count, duration_ms, started_at, completed_at
		FROM skill_results
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skill results: %w", err)
	}
	defer rows.Close()

	records := []*SkillResultRecord{}
	for rows.Next() {
		var (
			rec        SkillResultRecord
			status     string
			output     string
			durationMs int64
		)
		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Position,
			&rec.Node,
			&rec.SkillVersion,
			&status,
			&output,
			&rec.Error,
			&rec.ErrorCode,
			&rec.RetryCount,
			&durationMs,
			&rec.StartedAt,
			&rec.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan skill result: %w", err)
		}
		rec.Status = engine.ExecutionStatus(status)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(output), &rec.Output); err != nil {
			return nil, fmt.Errorf("failed to decode output of %s: %w", rec.Node, err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating skill results: %w", err)
	}

	return records, nil
}

// ListAuditEvents returns the audit events of a run in recording order. An empty node
// returns the events of every node.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, runID, node string) ([]*AuditEventRecord, error) {
	query := `
		SELECT e.id, e.run_id, e.node, e.seq, e.type, e.attempt, e.message, e.key, e.timestamp
		FROM audit_events e
		JOIN skill_results r ON r.run_id = e.run_id AND r.node = e.node
		WHERE e.run_id = ?`
	args := []interface{}{runID}
	if node != "" {
		query += " AND e.node = ?"
		args = append(args, node)
	}
	query += " ORDER BY r.position, e.seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := []*AuditEventRecord{}
	for rows.Next() {
		var (
			ev        AuditEventRecord
			eventType string
		)
		err := rows.Scan(
			&ev.ID,
			&ev.RunID,
			&ev.Node,
			&ev.Seq,
			&eventType,
			&ev.Attempt,
			&ev.Message,
			&ev.Key,
			&ev.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Type = engine.AuditEventType(eventType)
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		status     string
		order      string
		meta       string
		durationMs int64
	)
	err := row.Scan(
		&run.ID,
		&run.Workflow,
		&run.Source,
		&status,
		&order,
		&run.Summary.Total,
		&run.Summary.Completed,
		&run.Summary.Failed,
		&run.Summary.Skipped,
		&run.Summary.Cancelled,
		&run.Summary.Retries,
		&durationMs,
		&run.StartedAt,
		&run.CompletedAt,
		&meta,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = engine.ExecutionStatus(status)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(order), &run.Order); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &run.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if len(run.Metadata) == 0 {
		run.Metadata = nil
	}

	return &run, nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
