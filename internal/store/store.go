package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// ErrTaskNotFound is returned by GetTask when no archived task has the id.
var ErrTaskNotFound = errors.New("task not found in archive")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store archives finished tasks in PostgreSQL. The task row carries the
// outcome; each step is stored as a JSON payload, brotli-compressed once it
// crosses the configured size threshold.
type Store struct {
	pool             DBPool
	log              *zap.Logger
	compressMinBytes int
}

var _ schemas.Archive = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id           TEXT PRIMARY KEY,
    goal         TEXT NOT NULL,
    status       TEXT NOT NULL,
    summary      TEXT NOT NULL DEFAULT '',
    reason       TEXT NOT NULL DEFAULT '',
    detail       TEXT NOT NULL DEFAULT '',
    step_count   INT  NOT NULL DEFAULT 0,
    submitted_at TIMESTAMPTZ NOT NULL,
    started_at   TIMESTAMPTZ,
    ended_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS task_steps (
    task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    step_index INT  NOT NULL,
    payload    BYTEA NOT NULL,
    compressed BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (task_id, step_index)
);
`

// Connect opens a pgx pool for the given database URL.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	return pool, nil
}

// New creates a store instance, verifies the connection, and ensures the
// schema exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger, compressMinBytes int) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		pool:             pool,
		log:              logger.Named("store"),
		compressMinBytes: compressMinBytes,
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveTask writes the task and its full history in one transaction. Saving
// the same task again replaces its steps, so a retried save stays correct.
func (s *Store) SaveTask(ctx context.Context, task *schemas.Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.upsertTask(ctx, tx, task); err != nil {
		return err
	}
	if err := s.replaceSteps(ctx, tx, task); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Archived task",
		zap.String("task_id", task.ID),
		zap.String("status", string(task.Status)),
		zap.Int("steps", len(task.Steps)))
	return nil
}

func (s *Store) upsertTask(ctx context.Context, tx pgx.Tx, task *schemas.Task) error {
	const sql = `
        INSERT INTO tasks (id, goal, status, summary, reason, detail, step_count, submitted_at, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            status     = EXCLUDED.status,
            summary    = EXCLUDED.summary,
            reason     = EXCLUDED.reason,
            detail     = EXCLUDED.detail,
            step_count = EXCLUDED.step_count,
            started_at = EXCLUDED.started_at,
            ended_at   = EXCLUDED.ended_at;
    `
	_, err := tx.Exec(ctx, sql,
		task.ID, task.Goal.Text, string(task.Status),
		task.Summary, task.Reason, task.Detail,
		len(task.Steps),
		task.SubmittedAt.UTC(), nullableTime(task.StartedAt), nullableTime(task.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
	}
	return nil
}

// replaceSteps deletes any previously saved steps and bulk-inserts the
// current history with CopyFrom.
func (s *Store) replaceSteps(ctx context.Context, tx pgx.Tx, task *schemas.Task) error {
	if _, err := tx.Exec(ctx, `DELETE FROM task_steps WHERE task_id = $1;`, task.ID); err != nil {
		return fmt.Errorf("failed to clear steps for task %s: %w", task.ID, err)
	}
	if len(task.Steps) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]interface{}, len(task.Steps))
	for i, step := range task.Steps {
		payload, err := json.Marshal(step)
		if err != nil {
			return fmt.Errorf("failed to marshal step %d of task %s: %w", step.Index, task.ID, err)
		}

		compressed := false
		if s.compressMinBytes > 0 && len(payload) >= s.compressMinBytes {
			packed, err := compress(payload)
			if err != nil {
				return fmt.Errorf("failed to compress step %d of task %s: %w", step.Index, task.ID, err)
			}
			payload = packed
			compressed = true
		}

		rows[i] = []interface{}{task.ID, step.Index, payload, compressed, now}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"task_steps"},
		[]string{"task_id", "step_index", "payload", "compressed", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy steps: %w", err)
	}
	if int(copyCount) != len(task.Steps) {
		return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(task.Steps), copyCount)
	}
	return nil
}

// GetTask loads a task and its full history.
func (s *Store) GetTask(ctx context.Context, id string) (*schemas.Task, error) {
	const taskSQL = `
        SELECT id, goal, status, summary, reason, detail, submitted_at, started_at, ended_at
        FROM tasks
        WHERE id = $1;
    `
	var (
		task      schemas.Task
		statusStr string
		startedAt *time.Time
		endedAt   *time.Time
	)
	err := s.pool.QueryRow(ctx, taskSQL, id).Scan(
		&task.ID, &task.Goal.Text, &statusStr,
		&task.Summary, &task.Reason, &task.Detail,
		&task.SubmittedAt, &startedAt, &endedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to query task %s: %w", id, err)
	}
	task.Status = schemas.TaskStatus(statusStr)
	if startedAt != nil {
		task.StartedAt = *startedAt
	}
	if endedAt != nil {
		task.EndedAt = *endedAt
	}

	steps, err := s.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Steps = steps
	return &task, nil
}

func (s *Store) loadSteps(ctx context.Context, taskID string) ([]schemas.Step, error) {
	const stepsSQL = `
        SELECT payload, compressed
        FROM task_steps
        WHERE task_id = $1
        ORDER BY step_index ASC;
    `
	rows, err := s.pool.Query(ctx, stepsSQL, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var steps []schemas.Step
	for rows.Next() {
		var (
			payload    []byte
			compressed bool
		)
		if err := rows.Scan(&payload, &compressed); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if compressed {
			payload, err = decompress(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress step payload: %w", err)
			}
		}

		var step schemas.Step
		if err := json.Unmarshal(payload, &step); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step payload: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during step row iteration: %w", err)
	}
	return steps, nil
}

// nullableTime maps the zero time onto SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
