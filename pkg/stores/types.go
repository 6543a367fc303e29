package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/skilldag/skilldag/pkg/engine"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run is the persisted summary of one workflow execution.
type Run struct {
	ID          string                 `json:"id"`
	Workflow    string                 `json:"workflow"`
	Source      string                 `json:"source"` // workflow file path
	Status      engine.ExecutionStatus `json:"status"`
	Order       []string               `json:"order"`
	Summary     engine.RunSummary      `json:"summary"`
	Duration    time.Duration          `json:"duration"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// SkillResultRecord is the persisted result of one node of a run.
type SkillResultRecord struct {
	ID           string                 `json:"id"`
	RunID        string                 `json:"run_id"`
	Position     int                    `json:"position"` // index in the run's topological order
	Node         string                 `json:"node"`
	SkillVersion string                 `json:"skill_version,omitempty"`
	Status       engine.ExecutionStatus `json:"status"`
	Output       map[string]interface{} `json:"output,omitempty"`
	Error        *string                `json:"error,omitempty"`
	ErrorCode    *string                `json:"error_code,omitempty"`
	RetryCount   int                    `json:"retry_count"`
	Duration     time.Duration          `json:"duration"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// AuditEventRecord is one persisted audit trail event.
type AuditEventRecord struct {
	ID        int64                 `json:"id"`
	RunID     string                `json:"run_id"`
	Node      string                `json:"node"`
	Seq       int                   `json:"seq"`
	Type      engine.AuditEventType `json:"type"`
	Attempt   int                   `json:"attempt"`
	Message   string                `json:"message,omitempty"`
	Key       string                `json:"key,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Workflow string
	Status   engine.ExecutionStatus
	Limit    int
	Offset   int
}

// Store defines the interface for run history persistence.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Run operations
	SaveResult(ctx context.Context, workflow, source string, result *engine.DAGExecutionResult, metadata map[string]string) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, workflow string, keep int) (int64, error)

	// Node results and audit events
	ListSkillResults(ctx context.Context, runID string) ([]*SkillResultRecord, error)
	ListAuditEvents(ctx context.Context, runID, node string) ([]*AuditEventRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

var _ Store = (*SQLiteStore)(nil)
