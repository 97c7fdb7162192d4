package sqlite

import (
	"context"
	"time"

	"resolvebot/internal/domain"
)

func InsertInteraction(ctx context.Context, q DBTX, in domain.Interaction) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO ticket_interactions (ticket_id, actor, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		in.TicketID, in.Actor, in.Kind, in.Content, in.CreatedAt.UTC(),
	)
	if err != nil {
		return domain.StorageError("insert interaction", err)
	}
	return nil
}

// GetInteractions returns a ticket's notes oldest first.
func GetInteractions(ctx context.Context, q DBTX, ticketID int64) ([]domain.Interaction, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, ticket_id, actor, kind, content, created_at
		 FROM ticket_interactions WHERE ticket_id = ? ORDER BY created_at, id`,
		ticketID,
	)
	if err != nil {
		return nil, domain.StorageError("list interactions", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var in domain.Interaction
		if err := rows.Scan(&in.ID, &in.TicketID, &in.Actor, &in.Kind, &in.Content, &in.CreatedAt); err != nil {
			return nil, domain.StorageError("scan interaction", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list interactions", err)
	}
	return out, nil
}
