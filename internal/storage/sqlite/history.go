package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resolvebot/internal/domain"
)

const historyColumns = `id, ticket_id, action_type, action_params, confidence, reasoning, executed_by, executed_at,
	before_state, after_state, rollback_possible, rolled_back, rolled_back_at, rolled_back_by, rollback_reason`

// InsertActionHistory appends an entry. Entries are never deleted; the only
// later write is MarkRolledBack.
func InsertActionHistory(ctx context.Context, q DBTX, e domain.ActionHistoryEntry) error {
	if e.ID == "" {
		return fmt.Errorf("%w: action history entry has no id", domain.ErrInvalidInput)
	}
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now().UTC()
	}
	if e.ExecutedBy == "" {
		e.ExecutedBy = domain.DefaultExecutor
	}
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("%w: encode action params: %v", domain.ErrInvalidInput, err)
	}
	before, err := json.Marshal(e.BeforeState)
	if err != nil {
		return fmt.Errorf("encode before state: %w", err)
	}
	after, err := json.Marshal(e.AfterState)
	if err != nil {
		return fmt.Errorf("encode after state: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO action_history (id, ticket_id, action_type, action_params, confidence, reasoning, executed_by, executed_at,
		                             before_state, after_state, rollback_possible)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TicketID, string(e.ActionType), string(params), e.Confidence, e.Reasoning, e.ExecutedBy,
		e.ExecutedAt.UTC(), string(before), string(after), boolInt(e.RollbackPossible),
	)
	if err != nil {
		return domain.StorageError("insert action history", err)
	}
	return nil
}

// GetActionHistory returns a ticket's entries newest first.
func GetActionHistory(ctx context.Context, q DBTX, ticketID int64) ([]domain.ActionHistoryEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM action_history WHERE ticket_id = ? ORDER BY executed_at DESC, rowid DESC`,
		ticketID,
	)
	if err != nil {
		return nil, domain.StorageError("list action history", err)
	}
	defer rows.Close()

	var out []domain.ActionHistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, domain.StorageError("scan action history", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list action history", err)
	}
	return out, nil
}

func GetActionHistoryByID(ctx context.Context, q DBTX, id string) (domain.ActionHistoryEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM action_history WHERE id = ?`, id)
	e, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ActionHistoryEntry{}, notFound("action history entry", id)
	}
	if err != nil {
		return domain.ActionHistoryEntry{}, domain.StorageError("get action history", err)
	}
	return e, nil
}

// MarkRolledBack flips rolled_back from false to true exactly once.
func MarkRolledBack(ctx context.Context, q DBTX, id, actor, reason string, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE action_history
		 SET rolled_back = 1, rolled_back_at = ?, rolled_back_by = ?, rollback_reason = ?
		 WHERE id = ? AND rolled_back = 0`,
		at.UTC(), actor, reason, id,
	)
	if err != nil {
		return domain.StorageError("mark rolled back", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.StorageError("mark rolled back", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := GetActionHistoryByID(ctx, q, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrAlreadyRolledBack, id)
}

func GetConfidenceStats(ctx context.Context, q DBTX, since time.Time) (domain.ConfidenceStats, error) {
	var s domain.ConfidenceStats
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0),
		        COALESCE(SUM(CASE WHEN confidence < 0.30 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.30 AND confidence < 0.60 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.60 AND confidence < 0.80 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.80 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(rolled_back), 0)
		 FROM action_history WHERE executed_at >= ?`,
		since.UTC(),
	).Scan(&s.TotalActions, &s.AvgConfidence,
		&s.BucketBelow30, &s.Bucket30to60, &s.Bucket60to80, &s.Bucket80Plus, &s.TotalRollback)
	if err != nil {
		return s, domain.StorageError("confidence stats", err)
	}
	return s, nil
}

func scanHistory(r rowScanner) (domain.ActionHistoryEntry, error) {
	var e domain.ActionHistoryEntry
	var actionType, params, before, after string
	var rollbackPossible, rolledBack int
	var rolledBackAt sql.NullTime
	err := r.Scan(
		&e.ID, &e.TicketID, &actionType, &params, &e.Confidence, &e.Reasoning, &e.ExecutedBy, &e.ExecutedAt,
		&before, &after, &rollbackPossible, &rolledBack, &rolledBackAt, &e.RolledBackBy, &e.RollbackReason,
	)
	if err != nil {
		return e, err
	}
	e.ActionType = domain.ActionType(actionType)
	e.RollbackPossible = rollbackPossible == 1
	e.RolledBack = rolledBack == 1
	e.RolledBackAt = fromNullTime(rolledBackAt)
	if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
		return e, fmt.Errorf("decode action params: %w", err)
	}
	if err := json.Unmarshal([]byte(before), &e.BeforeState); err != nil {
		return e, fmt.Errorf("decode before state: %w", err)
	}
	if err := json.Unmarshal([]byte(after), &e.AfterState); err != nil {
		return e, fmt.Errorf("decode after state: %w", err)
	}
	return e, nil
}
