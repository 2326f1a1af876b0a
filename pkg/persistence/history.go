package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"feedbackloop/pkg/feedback"
)

// ErrNotFound is returned when a requested history entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// Entry is one stored invocation.
type Entry struct {
	ID               string            `json:"id"`
	ProjectDirectory string            `json:"projectDirectory"`
	Prompt           string            `json:"prompt"`
	Outcome          feedback.Outcome  `json:"outcome"`
	Strategy         feedback.Strategy `json:"strategy,omitempty"`
	Feedback         string            `json:"feedback,omitempty"`
	Message          string            `json:"message,omitempty"`
	ExitCode         *int              `json:"exitCode,omitempty"`
	Duration         time.Duration     `json:"duration"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// OutcomeCount is a row of Stats.
type OutcomeCount struct {
	Outcome feedback.Outcome
	Count   int
}

const entryColumns = `id, project_directory, prompt, outcome, strategy, feedback, message, exit_code, duration_ms, created_at`

// Observe stores rec, implementing feedback.Observer. Records rejected before
// an ID was assigned get a fresh one.
func (s *Store) Observe(ctx context.Context, rec feedback.Record) error {
	id := rec.InvocationID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := rec.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO feedback_history (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.ProjectDirectory, rec.Prompt, string(rec.Outcome), string(rec.Strategy),
		rec.Feedback, rec.Message, exitCode, rec.Duration.Milliseconds(), createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry %s: %w", id, err)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM feedback_history ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

// Get returns one entry by invocation ID.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM feedback_history WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// Stats counts stored entries per outcome, ordered by outcome.
func (s *Store) Stats(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM feedback_history GROUP BY outcome ORDER BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history stats: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var counts []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		var outcome string
		if err := rows.Scan(&outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan history stats: %w", err)
		}
		c.Outcome = feedback.Outcome(outcome)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Prune deletes entries created before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback_history WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	if n > 0 {
		s.logger.Info("Pruned %d history entries older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry             Entry
		outcome, strategy string
		exitCode          sql.NullInt64
		durationMs        int64
	)
	err := row.Scan(&entry.ID, &entry.ProjectDirectory, &entry.Prompt, &outcome, &strategy,
		&entry.Feedback, &entry.Message, &exitCode, &durationMs, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan history entry: %w", err)
	}

	entry.Outcome = feedback.Outcome(outcome)
	entry.Strategy = feedback.Strategy(strategy)
	entry.Duration = time.Duration(durationMs) * time.Millisecond
	if exitCode.Valid {
		code := int(exitCode.Int64)
		entry.ExitCode = &code
	}
	return &entry, nil
}
