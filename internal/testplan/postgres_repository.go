package testplan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webpdtool/testcore/internal/storage"
)

// PostgresRepository implements Repository against the test_plans table,
// storing each plan's items as a single JSONB document (the items are read
// wholesale per load, never queried per-field from SQL).
type PostgresRepository struct {
	conn *storage.Connection
}

// NewPostgresRepository wraps an already-established connection.
func NewPostgresRepository(conn *storage.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// GetPlan implements Repository.
func (r *PostgresRepository) GetPlan(ctx context.Context, project, station, name string) (*Plan, error) {
	const query = `SELECT items FROM test_plans WHERE project = $1 AND station = $2 AND name = $3`

	var raw []byte

	err := r.conn.DB.QueryRowContext(ctx, query, project, station, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrPlanNotFound, project, station, name)
	}

	if err != nil {
		return nil, fmt.Errorf("load test plan %s/%s/%s: %w", project, station, name, err)
	}

	var items []TestItem

	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode stored test plan %s/%s/%s: %w", project, station, name, err)
	}

	return &Plan{Project: project, Station: station, Name: name, Items: items}, nil
}

// PutPlan upserts a plan's items as a JSONB document, keyed by
// (project, station, name). Used by plan-authoring tooling outside the
// execution path; the Session Engine only ever reads.
func (r *PostgresRepository) PutPlan(ctx context.Context, plan Plan) error {
	raw, err := json.Marshal(plan.Items)
	if err != nil {
		return fmt.Errorf("encode test plan: %w", err)
	}

	const query = `
		INSERT INTO test_plans (project, station, name, items, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (project, station, name)
		DO UPDATE SET items = EXCLUDED.items, updated_at = now()
	`

	if _, err := r.conn.DB.ExecContext(ctx, query, plan.Project, plan.Station, plan.Name, raw); err != nil {
		return fmt.Errorf("store test plan %s/%s/%s: %w", plan.Project, plan.Station, plan.Name, err)
	}

	return nil
}
