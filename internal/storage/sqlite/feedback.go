package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"resolvebot/internal/domain"
)

const feedbackColumns = `ticket_id, autonomous_action, action_entry_id, followup_state, confirmation, satisfaction_score, feedback_text,
	followup_due_at, followup_sent_at, response_received_at, reopened, reopened_at, reopened_reason, created_at, updated_at`

// ArmFeedback starts a new follow-up cycle for the ticket, owned by the
// history entry entryID. Arming an existing row resets it rather than adding
// a second one.
func ArmFeedback(ctx context.Context, q DBTX, ticketID int64, entryID string, action domain.ActionType, dueAt time.Time) error {
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx,
		`INSERT INTO ticket_resolution (ticket_id, autonomous_action, action_entry_id, followup_state, confirmation, followup_due_at, created_at, updated_at)
		 VALUES (?, ?, ?, 'armed', 'unknown', ?, ?, ?)
		 ON CONFLICT(ticket_id) DO UPDATE SET
		   autonomous_action = excluded.autonomous_action,
		   action_entry_id = excluded.action_entry_id,
		   followup_state = 'armed',
		   confirmation = 'unknown',
		   satisfaction_score = 0,
		   feedback_text = '',
		   followup_due_at = excluded.followup_due_at,
		   followup_sent_at = NULL,
		   response_received_at = NULL,
		   reopened = 0,
		   reopened_at = NULL,
		   reopened_reason = '',
		   updated_at = excluded.updated_at`,
		ticketID, string(action), entryID, dueAt.UTC(), now, now,
	)
	if err != nil {
		return domain.StorageError("arm feedback", err)
	}
	return nil
}

func GetFeedback(ctx context.Context, q DBTX, ticketID int64) (domain.ResolutionFeedback, error) {
	row := q.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM ticket_resolution WHERE ticket_id = ?`, ticketID)
	f, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResolutionFeedback{}, notFound("resolution feedback for ticket", ticketID)
	}
	if err != nil {
		return domain.ResolutionFeedback{}, domain.StorageError("get feedback", err)
	}
	return f, nil
}

// SaveFeedback writes the response-side fields of a feedback row.
func SaveFeedback(ctx context.Context, q DBTX, f domain.ResolutionFeedback) error {
	res, err := q.ExecContext(ctx,
		`UPDATE ticket_resolution
		 SET followup_state = ?, confirmation = ?, satisfaction_score = ?, feedback_text = ?,
		     response_received_at = ?, reopened = ?, reopened_at = ?, reopened_reason = ?, updated_at = ?
		 WHERE ticket_id = ?`,
		string(f.State), string(f.Confirmation), f.SatisfactionScore, f.FeedbackText,
		toNullTime(f.ResponseReceivedAt), boolInt(f.Reopened), toNullTime(f.ReopenedAt), f.ReopenedReason,
		time.Now().UTC(), f.TicketID,
	)
	if err != nil {
		return domain.StorageError("save feedback", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("resolution feedback for ticket", f.TicketID)
	}
	return nil
}

// MarkFollowupSent records the prompt as sent. It reports false when the
// prompt had already been sent or the follow-up is no longer armed.
func MarkFollowupSent(ctx context.Context, q DBTX, ticketID int64, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE ticket_resolution
		 SET followup_state = 'fired', followup_sent_at = ?, updated_at = ?
		 WHERE ticket_id = ? AND followup_sent_at IS NULL AND followup_state = 'armed'`,
		at.UTC(), at.UTC(), ticketID,
	)
	if err != nil {
		return false, domain.StorageError("mark followup sent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.StorageError("mark followup sent", err)
	}
	return n == 1, nil
}

// CancelFeedback closes an open follow-up cycle, armed or already prompted,
// so a late answer can no longer act on the ticket.
func CancelFeedback(ctx context.Context, q DBTX, ticketID int64) (bool, error) {
	return cancelFeedback(ctx, q,
		`UPDATE ticket_resolution SET followup_state = 'cancelled', updated_at = ?
		 WHERE ticket_id = ? AND followup_state IN ('armed', 'fired')`,
		time.Now().UTC(), ticketID)
}

// CancelFeedbackForEntry is CancelFeedback limited to the cycle armed by the
// given history entry. A cycle re-armed by a later action is left alone;
// rows written before entries were recorded match any entry.
func CancelFeedbackForEntry(ctx context.Context, q DBTX, ticketID int64, entryID string) (bool, error) {
	return cancelFeedback(ctx, q,
		`UPDATE ticket_resolution SET followup_state = 'cancelled', updated_at = ?
		 WHERE ticket_id = ? AND action_entry_id IN (?, '') AND followup_state IN ('armed', 'fired')`,
		time.Now().UTC(), ticketID, entryID)
}

func cancelFeedback(ctx context.Context, q DBTX, query string, args ...any) (bool, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, domain.StorageError("cancel feedback", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.StorageError("cancel feedback", err)
	}
	return n > 0, nil
}

func ListArmedFeedback(ctx context.Context, q DBTX) ([]domain.ResolutionFeedback, error) {
	return listFeedback(ctx, q,
		`SELECT `+feedbackColumns+` FROM ticket_resolution WHERE followup_state = 'armed' ORDER BY followup_due_at`)
}

// ListFeedback exposes every feedback row to reporting consumers.
func ListFeedback(ctx context.Context, q DBTX) ([]domain.ResolutionFeedback, error) {
	return listFeedback(ctx, q,
		`SELECT `+feedbackColumns+` FROM ticket_resolution ORDER BY created_at DESC, ticket_id DESC`)
}

// ExpireFeedback marks fired follow-ups sent before cutoff with no response
// as expired and returns the affected ticket IDs.
func ExpireFeedback(ctx context.Context, q DBTX, cutoff time.Time) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT ticket_id FROM ticket_resolution
		 WHERE followup_state = 'fired' AND response_received_at IS NULL AND followup_sent_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, domain.StorageError("find stale feedback", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, domain.StorageError("scan stale feedback", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("find stale feedback", err)
	}

	now := time.Now().UTC()
	var expired []int64
	for _, id := range ids {
		res, err := q.ExecContext(ctx,
			`UPDATE ticket_resolution SET followup_state = 'expired', updated_at = ?
			 WHERE ticket_id = ? AND followup_state = 'fired' AND response_received_at IS NULL`,
			now, id,
		)
		if err != nil {
			return expired, domain.StorageError("expire feedback", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func GetResolutionStats(ctx context.Context, q DBTX) (domain.ResolutionStats, error) {
	var s domain.ResolutionStats
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN confirmation = 'confirmed' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confirmation = 'denied' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(reopened), 0),
		        COALESCE(SUM(CASE WHEN followup_state = 'expired' THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(CASE WHEN satisfaction_score > 0 THEN satisfaction_score END), 0),
		        COALESCE(SUM(CASE WHEN satisfaction_score > 0 THEN 1 ELSE 0 END), 0)
		 FROM ticket_resolution`,
	).Scan(&s.TotalResolutions, &s.ConfirmedSuccessful, &s.ConfirmedFailed, &s.Reopened,
		&s.Expired, &s.AvgSatisfaction, &s.RatedCount)
	if err != nil {
		return s, domain.StorageError("resolution stats", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT autonomous_action, COUNT(*),
		        COALESCE(SUM(CASE WHEN confirmation = 'confirmed' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confirmation = 'denied' THEN 1 ELSE 0 END), 0)
		 FROM ticket_resolution
		 GROUP BY autonomous_action
		 ORDER BY autonomous_action`,
	)
	if err != nil {
		return s, domain.StorageError("resolution breakdown", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b domain.ActionTypeBreakdown
		var action string
		if err := rows.Scan(&action, &b.Total, &b.Confirmed, &b.Failed); err != nil {
			return s, domain.StorageError("scan resolution breakdown", err)
		}
		b.ActionType = domain.ActionType(action)
		s.Breakdown = append(s.Breakdown, b)
	}
	if err := rows.Err(); err != nil {
		return s, domain.StorageError("resolution breakdown", err)
	}
	return s, nil
}

func listFeedback(ctx context.Context, q DBTX, query string, args ...any) ([]domain.ResolutionFeedback, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("list feedback", err)
	}
	defer rows.Close()

	var out []domain.ResolutionFeedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, domain.StorageError("scan feedback", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list feedback", err)
	}
	return out, nil
}

func scanFeedback(r rowScanner) (domain.ResolutionFeedback, error) {
	var f domain.ResolutionFeedback
	var action, entryID, state, confirmation string
	var reopened int
	var dueAt, sentAt, receivedAt, reopenedAt sql.NullTime
	err := r.Scan(
		&f.TicketID, &action, &entryID, &state, &confirmation, &f.SatisfactionScore, &f.FeedbackText,
		&dueAt, &sentAt, &receivedAt, &reopened, &reopenedAt, &f.ReopenedReason, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return f, err
	}
	f.AutonomousAction = domain.ActionType(action)
	f.ActionEntryID = entryID
	f.State = domain.FollowupState(state)
	f.Confirmation = domain.Confirmation(confirmation)
	f.Reopened = reopened == 1
	f.FollowupDueAt = fromNullTime(dueAt)
	f.FollowupSentAt = fromNullTime(sentAt)
	f.ResponseReceivedAt = fromNullTime(receivedAt)
	f.ReopenedAt = fromNullTime(reopenedAt)
	return f, nil
}
