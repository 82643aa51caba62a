package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/webpdtool/testcore/internal/storage"
	"github.com/webpdtool/testcore/internal/testplan"
)

// Sentinel errors for the durable store, mirroring the in-memory store's
// contract plus storage-specific failure modes.
var (
	// ErrStoreFailed wraps any unclassified PostgreSQL failure.
	ErrStoreFailed = errors.New("result store operation failed")
	// ErrFKViolation is returned when session_id references a session row
	// that does not exist (spec §9 domain stack: sessions table FK).
	ErrFKViolation = errors.New("foreign key violation: session_id does not exist")
)

// PostgresStore is the durable Store (C8), grounded on the same
// UPSERT-with-xmax pattern the lineage store uses for test_results: one row
// per (session_id, item_no), RETURNING (xmax = 0) to distinguish insert
// from update without a separate SELECT.
type PostgresStore struct {
	conn   *storage.Connection
	logger *slog.Logger
}

// NewPostgresStore wraps an already-established connection.
func NewPostgresStore(conn *storage.Connection) *PostgresStore {
	return &PostgresStore{conn: conn, logger: slog.New(slog.NewJSONHandler(os.Stdout, nil))}
}

// Append implements Store with UPSERT-on-conflict semantics: re-appending
// the same (session_id, item_no) updates the row rather than erroring,
// which keeps Append idempotent across a retried session step.
func (s *PostgresStore) Append(ctx context.Context, sessionID string, result testplan.MeasurementResult) error {
	start := time.Now()

	const query = `
		INSERT INTO test_results (
			session_id, item_no, item_name, outcome,
			measured_value, measured_text, is_null,
			error_message, execution_ms, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, item_no)
		DO UPDATE SET
			item_name = EXCLUDED.item_name,
			outcome = EXCLUDED.outcome,
			measured_value = EXCLUDED.measured_value,
			measured_text = EXCLUDED.measured_text,
			is_null = EXCLUDED.is_null,
			error_message = EXCLUDED.error_message,
			execution_ms = EXCLUDED.execution_ms,
			recorded_at = EXCLUDED.recorded_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool

	err := s.conn.DB.QueryRowContext(ctx, query,
		sessionID, result.ItemNo, result.ItemName, string(result.Outcome),
		nullableFloat(result.MeasuredValue), result.MeasuredText, result.IsNull,
		result.ErrorMessage, result.ExecutionMs, result.Timestamp,
	).Scan(&inserted)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			s.logger.Warn("result store FK violation",
				"session_id", sessionID, "item_no", result.ItemNo, "constraint", pqErr.Constraint)

			return fmt.Errorf("%w: %s", ErrFKViolation, pqErr.Message)
		}

		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	s.logger.Info("result recorded",
		"session_id", sessionID, "item_no", result.ItemNo, "outcome", result.Outcome,
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// GetByName implements Store.
func (s *PostgresStore) GetByName(ctx context.Context, sessionID, itemName string) (testplan.MeasurementResult, error) {
	const query = `
		SELECT item_no, item_name, outcome, measured_value, measured_text, is_null, error_message, execution_ms, recorded_at
		FROM test_results WHERE session_id = $1 AND item_name = $2
	`

	return s.scanOne(ctx, query, sessionID, itemName)
}

// GetByOrdinal implements Store.
func (s *PostgresStore) GetByOrdinal(ctx context.Context, sessionID string, itemNo int) (testplan.MeasurementResult, error) {
	const query = `
		SELECT item_no, item_name, outcome, measured_value, measured_text, is_null, error_message, execution_ms, recorded_at
		FROM test_results WHERE session_id = $1 AND item_no = $2
	`

	return s.scanOne(ctx, query, sessionID, itemNo)
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, args ...interface{}) (testplan.MeasurementResult, error) {
	row := s.conn.DB.QueryRowContext(ctx, query, args...)

	var (
		result  testplan.MeasurementResult
		measVal sql.NullFloat64
	)

	err := row.Scan(&result.ItemNo, &result.ItemName, &result.Outcome,
		&measVal, &result.MeasuredText, &result.IsNull, &result.ErrorMessage,
		&result.ExecutionMs, &result.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return testplan.MeasurementResult{}, fmt.Errorf("%w", ErrNotFound)
	}

	if err != nil {
		return testplan.MeasurementResult{}, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	if measVal.Valid {
		result.MeasuredValue = &measVal.Float64
	}

	return result, nil
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context, sessionID string) ([]testplan.MeasurementResult, error) {
	const query = `
		SELECT item_no, item_name, outcome, measured_value, measured_text, is_null, error_message, execution_ms, recorded_at
		FROM test_results WHERE session_id = $1 ORDER BY item_no ASC
	`

	rows, err := s.conn.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []testplan.MeasurementResult

	for rows.Next() {
		var (
			result  testplan.MeasurementResult
			measVal sql.NullFloat64
		)

		if err := rows.Scan(&result.ItemNo, &result.ItemName, &result.Outcome,
			&measVal, &result.MeasuredText, &result.IsNull, &result.ErrorMessage,
			&result.ExecutionMs, &result.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
		}

		if measVal.Valid {
			result.MeasuredValue = &measVal.Float64
		}

		out = append(out, result)
	}

	return out, rows.Err()
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{Valid: false}
	}

	return sql.NullFloat64{Float64: *v, Valid: true}
}
