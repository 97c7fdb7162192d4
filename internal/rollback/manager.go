package rollback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"resolvebot/internal/domain"
	"resolvebot/internal/metrics"
	"resolvebot/internal/storage/sqlite"
)

// InverseFunc undoes one executed action on the locked ticket. It runs inside
// the ticket transaction and returns the note appended to the audit trail.
type InverseFunc func(ctx context.Context, tx *sql.Tx, t *domain.Ticket, entry domain.ActionHistoryEntry) (string, error)

var registry = map[domain.ActionType]InverseFunc{
	domain.ActionAutoResolve:      restoreBeforeState,
	domain.ActionAssignToTeam:     restoreBeforeState,
	domain.ActionScheduleFollowup: restoreBeforeState,
}

// Eligible reports whether entries of this action type can be rolled back.
func Eligible(action domain.ActionType) bool {
	_, ok := registry[action]
	return ok
}

func restoreBeforeState(ctx context.Context, tx *sql.Tx, t *domain.Ticket, entry domain.ActionHistoryEntry) (string, error) {
	from := t.Status
	t.Restore(entry.BeforeState)
	if err := sqlite.UpdateTicketState(ctx, tx, *t); err != nil {
		return "", err
	}
	note := fmt.Sprintf("Rolled back %s: status %s -> %s", entry.ActionType, from, t.Status)
	if entry.BeforeState.AssignedTeam != entry.AfterState.AssignedTeam {
		team := entry.BeforeState.AssignedTeam
		if team == "" {
			team = "unassigned"
		}
		note += fmt.Sprintf(", team restored to %s", team)
	}
	return note, nil
}

// FollowupCanceller drops the pending follow-up trigger of a rolled back
// action.
type FollowupCanceller interface {
	Cancel(ctx context.Context, ticketID int64) error
}

type Manager struct {
	store    *sqlite.Store
	followup FollowupCanceller
	metrics  *metrics.Agent
	now      func() time.Time
}

func NewManager(store *sqlite.Store, followup FollowupCanceller, m *metrics.Agent) *Manager {
	return &Manager{
		store:    store,
		followup: followup,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Rollback reverses a history entry on behalf of an administrator. Callers
// are responsible for checking that actor is allowed to do so.
func (m *Manager) Rollback(ctx context.Context, entryID, actor, reason string) (domain.ActionHistoryEntry, error) {
	entryID = strings.TrimSpace(entryID)
	reason = strings.TrimSpace(reason)
	if entryID == "" {
		return domain.ActionHistoryEntry{}, fmt.Errorf("%w: entry id is required", domain.ErrInvalidInput)
	}

	entry, err := sqlite.GetActionHistoryByID(ctx, m.store.DB, entryID)
	if err != nil {
		return domain.ActionHistoryEntry{}, err
	}
	if err := checkRollback(entry); err != nil {
		m.metrics.TrackRollback(string(entry.ActionType), resultLabel(err))
		return domain.ActionHistoryEntry{}, err
	}

	var out domain.ActionHistoryEntry
	cancelled := false
	err = m.store.WithTicket(ctx, entry.TicketID, func(tx *sql.Tx, t *domain.Ticket) error {
		// Re-read under the ticket lock; a concurrent rollback may have won.
		current, err := sqlite.GetActionHistoryByID(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if err := checkRollback(current); err != nil {
			return err
		}

		note, err := registry[current.ActionType](ctx, tx, t, current)
		if err != nil {
			return err
		}
		if reason != "" {
			note += ". Reason: " + reason
		}
		if err := sqlite.InsertInteraction(ctx, tx, domain.Interaction{
			TicketID: t.ID,
			Actor:    actor,
			Kind:     domain.InteractionRollback,
			Content:  note,
		}); err != nil {
			return err
		}

		at := m.now()
		if err := sqlite.MarkRolledBack(ctx, tx, current.ID, actor, reason, at); err != nil {
			return err
		}
		if current.ActionType.ArmsFollowup() {
			// Only the cycle this entry armed; a later action may own the row.
			cancelled, err = sqlite.CancelFeedbackForEntry(ctx, tx, t.ID, current.ID)
			if err != nil {
				return err
			}
		}
		current.RolledBack = true
		current.RolledBackAt = at
		current.RolledBackBy = actor
		current.RollbackReason = reason
		out = current
		return nil
	})
	if err != nil {
		m.metrics.TrackRollback(string(entry.ActionType), resultLabel(err))
		return domain.ActionHistoryEntry{}, err
	}

	m.metrics.TrackRollback(string(out.ActionType), "ok")
	log.Printf("rollback entry=%s ticket=%d action=%s by=%s", out.ID, out.TicketID, out.ActionType, actor)

	if cancelled && m.followup != nil {
		if err := m.followup.Cancel(ctx, out.TicketID); err != nil {
			log.Printf("WARNING: could not cancel follow-up after rollback ticket=%d: %v", out.TicketID, err)
		}
	}
	return out, nil
}

func checkRollback(e domain.ActionHistoryEntry) error {
	if e.RolledBack {
		return fmt.Errorf("%w: entry %s was rolled back at %s by %s",
			domain.ErrAlreadyRolledBack, e.ID, e.RolledBackAt.Format(time.RFC3339), e.RolledBackBy)
	}
	if !e.RollbackPossible || !Eligible(e.ActionType) {
		return fmt.Errorf("%w: %s actions cannot be rolled back", domain.ErrUnsupportedRollback, e.ActionType)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrAlreadyRolledBack):
		return "already_rolled_back"
	case errors.Is(err, domain.ErrUnsupportedRollback):
		return "unsupported"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
