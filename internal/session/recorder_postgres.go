package session

import (
	"context"
	"fmt"

	"github.com/webpdtool/testcore/internal/storage"
)

// PostgresRecorder implements Recorder against the test_sessions table,
// the FK target test_results.session_id references (spec §9 domain stack).
type PostgresRecorder struct {
	conn *storage.Connection
}

// NewPostgresRecorder wraps an already-established connection.
func NewPostgresRecorder(conn *storage.Connection) *PostgresRecorder {
	return &PostgresRecorder{conn: conn}
}

// Create implements Recorder.
func (r *PostgresRecorder) Create(ctx context.Context, id, project, station, planName string) error {
	const query = `
		INSERT INTO test_sessions (id, project, station, plan_name, state)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.conn.DB.ExecContext(ctx, query, id, project, station, planName, string(StatePending)); err != nil {
		return fmt.Errorf("create session record %s: %w", id, err)
	}

	return nil
}

// Transition implements Recorder. finished_at is set only when state is
// terminal; report_path, when non-empty, overwrites the prior value.
func (r *PostgresRecorder) Transition(ctx context.Context, id string, state State, reportPath string) error {
	const query = `
		UPDATE test_sessions
		SET state = $2,
			finished_at = CASE WHEN $3 THEN now() ELSE finished_at END,
			report_path = CASE WHEN $4 <> '' THEN $4 ELSE report_path END
		WHERE id = $1
	`

	if _, err := r.conn.DB.ExecContext(ctx, query, id, string(state), state.IsTerminal(), reportPath); err != nil {
		return fmt.Errorf("update session record %s: %w", id, err)
	}

	return nil
}
