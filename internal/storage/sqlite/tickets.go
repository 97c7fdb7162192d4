package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"resolvebot/internal/domain"
)

const ticketColumns = `id, requester_id, requester_name, category, description, status, assigned_team, confidence, created_at, updated_at`

func InsertTicket(ctx context.Context, q DBTX, t domain.Ticket) (int64, error) {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = domain.StatusOpen
	}
	if t.Category == "" {
		t.Category = domain.CategoryOther
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO tickets (requester_id, requester_name, category, description, status, assigned_team, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RequesterID, t.RequesterName, string(t.Category), t.Description, string(t.Status),
		t.AssignedTeam, t.Confidence, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, domain.StorageError("insert ticket", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.StorageError("insert ticket id", err)
	}
	return id, nil
}

func GetTicket(ctx context.Context, q DBTX, id int64) (domain.Ticket, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, notFound("ticket", id)
	}
	if err != nil {
		return domain.Ticket{}, domain.StorageError("get ticket", err)
	}
	return t, nil
}

// UpdateTicketState writes the fields an action or rollback may change.
func UpdateTicketState(ctx context.Context, q DBTX, t domain.Ticket) error {
	res, err := q.ExecContext(ctx,
		`UPDATE tickets SET status = ?, assigned_team = ?, category = ?, confidence = ?, updated_at = ? WHERE id = ?`,
		string(t.Status), t.AssignedTeam, string(t.Category), t.Confidence, time.Now().UTC(), t.ID,
	)
	if err != nil {
		return domain.StorageError("update ticket", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("ticket", t.ID)
	}
	return nil
}

func DeleteTicket(ctx context.Context, q DBTX, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return domain.StorageError("delete ticket", err)
	}
	return nil
}

func GetTicketsByRequester(ctx context.Context, q DBTX, requesterID string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE requester_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		requesterID, limit,
	)
	if err != nil {
		return nil, domain.StorageError("list tickets", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, domain.StorageError("scan ticket", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list tickets", err)
	}
	return tickets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(r rowScanner) (domain.Ticket, error) {
	var t domain.Ticket
	var category, status string
	err := r.Scan(
		&t.ID, &t.RequesterID, &t.RequesterName, &category, &t.Description,
		&status, &t.AssignedTeam, &t.Confidence, &t.CreatedAt, &t.UpdatedAt,
	)
	t.Category = domain.Category(category)
	t.Status = domain.Status(status)
	return t, err
}
