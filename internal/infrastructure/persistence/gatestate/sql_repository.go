// Package gatestate provides the durable gate.Store implementations: SQL
// (SQLite or Turso) and Redis.
package gatestate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/persistence/database"
)

// SQLRepository stores one row per identity key in gate_sessions.
type SQLRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
	now    func() time.Time
}

// NewSQLRepository creates a new instance of the repository.
func NewSQLRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

const (
	selectStateQuery = `SELECT payload FROM gate_sessions WHERE identity_key = ?`
	upsertStateQuery = `INSERT INTO gate_sessions (identity_key, payload, stage, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity_key) DO UPDATE SET
			payload = excluded.payload,
			stage = excluded.stage,
			updated_at = excluded.updated_at`
	deleteStateQuery = `DELETE FROM gate_sessions WHERE identity_key = ?`
	purgeIdleQuery   = `DELETE FROM gate_sessions WHERE updated_at < ?`
	countStagesQuery = `SELECT stage, COUNT(*) FROM gate_sessions GROUP BY stage`
)

// Load retrieves the record for key. A missing row returns (nil, nil).
func (r *SQLRepository) Load(ctx context.Context, key string) (*gate.SessionState, error) {
	start := time.Now()
	r.logger.Database().Debug("Loading gate state", "identity", logging.MaskIdentity(key))

	var payload string
	err := r.db.QueryRowContext(ctx, selectStateQuery, key).Scan(&payload)
	database.CheckAndLogSlowQuery(r.logger, selectStateQuery, time.Since(start), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Database().Debug("Gate state not found", "identity", logging.MaskIdentity(key))
			return nil, nil
		}
		r.logger.Database().Error("Failed to load gate state", "error", err.Error(), "identity", logging.MaskIdentity(key))
		return nil, fmt.Errorf("load gate state: %w", err)
	}

	return gate.DecodeState([]byte(payload))
}

// Save upserts the record for key.
func (r *SQLRepository) Save(ctx context.Context, key string, state *gate.SessionState) error {
	payload, err := gate.EncodeState(state)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = r.db.ExecContext(ctx, upsertStateQuery,
		key,
		string(payload),
		string(gate.CurrentStage(state)),
		r.now().UTC().Format(database.TimestampLayout),
	)
	database.CheckAndLogSlowQuery(r.logger, upsertStateQuery, time.Since(start), key)
	if err != nil {
		r.logger.Database().Error("Failed to save gate state", "error", err.Error(), "identity", logging.MaskIdentity(key))
		return fmt.Errorf("save gate state: %w", err)
	}

	r.logger.Database().Debug("Gate state saved", "identity", logging.MaskIdentity(key), "duration", time.Since(start))
	return nil
}

// Clear deletes the record for key. Deleting a missing row is not an error.
func (r *SQLRepository) Clear(ctx context.Context, key string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, deleteStateQuery, key)
	database.CheckAndLogSlowQuery(r.logger, deleteStateQuery, time.Since(start), key)
	if err != nil {
		r.logger.Database().Error("Failed to clear gate state", "error", err.Error(), "identity", logging.MaskIdentity(key))
		return fmt.Errorf("clear gate state: %w", err)
	}
	return nil
}

// PurgeIdle deletes rows not updated within olderThan.
func (r *SQLRepository) PurgeIdle(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.now().UTC().Add(-olderThan).Format(database.TimestampLayout)

	start := time.Now()
	res, err := r.db.ExecContext(ctx, purgeIdleQuery, cutoff)
	database.CheckAndLogSlowQuery(r.logger, purgeIdleQuery, time.Since(start), "")
	if err != nil {
		r.logger.Database().Error("Failed to purge idle gate states", "error", err.Error())
		return 0, fmt.Errorf("purge gate states: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge gate states: %w", err)
	}
	return int(n), nil
}

// CountByStage returns row counts grouped by funnel stage.
func (r *SQLRepository) CountByStage(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, countStagesQuery)
	if err != nil {
		return nil, fmt.Errorf("count gate states: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("count gate states: %w", err)
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
