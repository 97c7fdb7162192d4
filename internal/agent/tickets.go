package agent

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"resolvebot/internal/domain"
	"resolvebot/internal/storage/sqlite"
)

// OpenTicket stores a new ticket reported by a requester.
func (e *Executor) OpenTicket(ctx context.Context, t domain.Ticket) (domain.Ticket, error) {
	t.Description = strings.TrimSpace(t.Description)
	if t.Description == "" {
		return domain.Ticket{}, fmt.Errorf("%w: ticket description is required", domain.ErrInvalidInput)
	}
	if t.Category == "" {
		t.Category = domain.CategoryOther
	}
	if !t.Category.Valid() {
		return domain.Ticket{}, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, t.Category)
	}
	t.Status = domain.StatusOpen

	id, err := sqlite.InsertTicket(ctx, e.store.DB, t)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := sqlite.InsertInteraction(ctx, e.store.DB, domain.Interaction{
		TicketID: id,
		Actor:    t.RequesterID,
		Kind:     domain.InteractionUserMessage,
		Content:  t.Description,
	}); err != nil {
		return domain.Ticket{}, err
	}
	log.Printf("ticket opened id=%d requester=%s category=%s", id, t.RequesterID, t.Category)
	return sqlite.GetTicket(ctx, e.store.DB, id)
}

// CloseTicket closes a ticket by hand and drops any pending follow-up.
func (e *Executor) CloseTicket(ctx context.Context, ticketID int64, actor string) (domain.Ticket, error) {
	var closed domain.Ticket
	err := e.store.WithTicket(ctx, ticketID, func(tx *sql.Tx, t *domain.Ticket) error {
		if t.Status == domain.StatusClosed {
			return fmt.Errorf("%w: ticket %d is already closed", domain.ErrInvalidInput, ticketID)
		}
		from := t.Status
		t.Status = domain.StatusClosed
		if err := sqlite.UpdateTicketState(ctx, tx, *t); err != nil {
			return err
		}
		if err := sqlite.InsertInteraction(ctx, tx, domain.Interaction{
			TicketID: t.ID,
			Actor:    actor,
			Kind:     domain.InteractionUserMessage,
			Content:  fmt.Sprintf("Ticket closed manually (was %s)", from),
		}); err != nil {
			return err
		}
		if _, err := sqlite.CancelFeedback(ctx, tx, t.ID); err != nil {
			return err
		}
		closed = *t
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	log.Printf("ticket closed id=%d by=%s", ticketID, actor)
	if e.followups != nil {
		if err := e.followups.Cancel(ctx, ticketID); err != nil {
			log.Printf("WARNING: could not cancel follow-up for closed ticket=%d: %v", ticketID, err)
		}
	}
	return closed, nil
}
