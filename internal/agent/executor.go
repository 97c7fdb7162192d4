package agent

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"resolvebot/internal/decision"
	"resolvebot/internal/domain"
	"resolvebot/internal/metrics"
	"resolvebot/internal/rollback"
	"resolvebot/internal/storage/sqlite"

	"github.com/google/uuid"
)

// Notifier tells people what the agent did. Delivery is best effort.
type Notifier interface {
	NotifyAutoResolved(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error
	NotifyEscalated(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error
	RequestClarification(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error
	SendTentativeSolution(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error
	NotifyTeamAssigned(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error
}

// Followups arms the deferred confirmation check. Prepare runs inside the
// ticket transaction, Schedule after it commits.
type Followups interface {
	Prepare(ctx context.Context, q sqlite.DBTX, ticketID int64, entryID string, action domain.ActionType) (time.Time, error)
	Schedule(ticketID int64, dueAt time.Time)
	Cancel(ctx context.Context, ticketID int64) error
}

type Executor struct {
	store     *sqlite.Store
	policy    decision.Policy
	followups Followups
	notifier  Notifier
	metrics   *metrics.Agent
	now       func() time.Time
}

func NewExecutor(store *sqlite.Store, policy decision.Policy, followups Followups, notifier Notifier, m *metrics.Agent) *Executor {
	return &Executor{
		store:     store,
		policy:    policy,
		followups: followups,
		notifier:  notifier,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Executor) Policy() decision.Policy {
	return e.policy
}

// Process classifies an analysis with the configured policy and executes the
// resulting action. The analysed category is written onto the ticket.
func (e *Executor) Process(ctx context.Context, ticketID int64, a decision.Analysis) (domain.ActionHistoryEntry, error) {
	d, err := decision.Classify(e.policy, a)
	if err != nil {
		return domain.ActionHistoryEntry{}, err
	}
	e.metrics.TrackConfidence(string(a.Category), a.Confidence)
	log.Printf("decision ticket=%d category=%s confidence=%.2f action=%s", ticketID, a.Category, a.Confidence, d.Action)
	return e.execute(ctx, ticketID, d, a.Confidence, a.Category)
}

// Execute applies a decided action to the ticket. The state change, history
// entry, audit note and follow-up row commit together or not at all.
func (e *Executor) Execute(ctx context.Context, ticketID int64, d decision.Decision, confidence float64) (domain.ActionHistoryEntry, error) {
	return e.execute(ctx, ticketID, d, confidence, "")
}

func (e *Executor) execute(ctx context.Context, ticketID int64, d decision.Decision, confidence float64, category domain.Category) (domain.ActionHistoryEntry, error) {
	if !d.Action.Valid() {
		return domain.ActionHistoryEntry{}, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, d.Action)
	}
	if err := domain.ValidateConfidence(confidence); err != nil {
		return domain.ActionHistoryEntry{}, err
	}

	var (
		entry  domain.ActionHistoryEntry
		ticket domain.Ticket
		dueAt  time.Time
	)
	err := e.store.WithTicket(ctx, ticketID, func(tx *sql.Tx, t *domain.Ticket) error {
		before := t.Snapshot()
		if err := apply(t, d); err != nil {
			return err
		}
		if category != "" {
			t.Category = category
		}
		t.Confidence = confidence
		if err := sqlite.UpdateTicketState(ctx, tx, *t); err != nil {
			return err
		}

		entry = domain.ActionHistoryEntry{
			ID:               uuid.NewString(),
			TicketID:         t.ID,
			ActionType:       d.Action,
			Params:           d.Params,
			Confidence:       confidence,
			Reasoning:        d.Reasoning,
			ExecutedBy:       domain.DefaultExecutor,
			ExecutedAt:       e.now(),
			BeforeState:      before,
			AfterState:       t.Snapshot(),
			RollbackPossible: rollback.Eligible(d.Action),
		}
		if err := sqlite.InsertActionHistory(ctx, tx, entry); err != nil {
			return err
		}
		if err := sqlite.InsertInteraction(ctx, tx, domain.Interaction{
			TicketID: t.ID,
			Actor:    domain.DefaultExecutor,
			Kind:     domain.InteractionAgentResponse,
			Content:  agentNote(entry),
		}); err != nil {
			return err
		}

		if d.Action.ArmsFollowup() && e.followups != nil {
			due, err := e.followups.Prepare(ctx, tx, t.ID, entry.ID, d.Action)
			if err != nil {
				return err
			}
			dueAt = due
		}
		ticket = *t
		return nil
	})
	if err != nil {
		e.metrics.TrackAction(string(d.Action), confidence, false)
		return domain.ActionHistoryEntry{}, err
	}

	e.metrics.TrackAction(string(d.Action), confidence, true)
	log.Printf("executed action=%s ticket=%d entry=%s status %s -> %s",
		entry.ActionType, ticket.ID, entry.ID, entry.BeforeState.Status, entry.AfterState.Status)

	if !dueAt.IsZero() {
		e.followups.Schedule(ticket.ID, dueAt)
	}
	e.notify(ctx, ticket, entry)
	return entry, nil
}

func apply(t *domain.Ticket, d decision.Decision) error {
	switch d.Action {
	case domain.ActionAutoResolve:
		t.Status = domain.StatusResolved
	case domain.ActionEscalate:
		t.Status = domain.StatusEscalated
	case domain.ActionRequestClarification:
		t.Status = domain.StatusPendingClarification
	case domain.ActionAssignToTeam:
		team := strings.TrimSpace(d.Params.String(domain.ParamAssignedTeam))
		if team == "" {
			return fmt.Errorf("%w: %s requires %s", domain.ErrInvalidInput, d.Action, domain.ParamAssignedTeam)
		}
		t.AssignedTeam = team
		t.Status = domain.StatusInProgress
	case domain.ActionScheduleFollowup:
		t.Status = domain.StatusInProgress
	}
	return nil
}

func agentNote(e domain.ActionHistoryEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (confidence %.2f)", e.ActionType, e.Confidence)
	switch e.ActionType {
	case domain.ActionAutoResolve, domain.ActionScheduleFollowup:
		for i, step := range e.Params.Steps() {
			fmt.Fprintf(&b, "\n%d. %s", i+1, step)
		}
	case domain.ActionEscalate:
		b.WriteString(": " + e.Params.String(domain.ParamEscalationReason))
	case domain.ActionRequestClarification:
		b.WriteString(": " + e.Params.String(domain.ParamReason))
	case domain.ActionAssignToTeam:
		b.WriteString(": assigned to " + e.Params.String(domain.ParamAssignedTeam))
	}
	if e.Reasoning != "" {
		b.WriteString("\nReasoning: " + e.Reasoning)
	}
	return b.String()
}

func (e *Executor) notify(ctx context.Context, t domain.Ticket, entry domain.ActionHistoryEntry) {
	if e.notifier == nil {
		return
	}
	var (
		kind string
		err  error
	)
	switch entry.ActionType {
	case domain.ActionAutoResolve:
		kind, err = "auto_resolved", e.notifier.NotifyAutoResolved(ctx, t, entry)
	case domain.ActionEscalate:
		kind, err = "escalated", e.notifier.NotifyEscalated(ctx, t, entry)
	case domain.ActionRequestClarification:
		kind, err = "clarification", e.notifier.RequestClarification(ctx, t, entry)
	case domain.ActionScheduleFollowup:
		kind, err = "tentative_solution", e.notifier.SendTentativeSolution(ctx, t, entry)
	case domain.ActionAssignToTeam:
		kind, err = "team_assigned", e.notifier.NotifyTeamAssigned(ctx, t, entry)
	}
	if err != nil {
		e.metrics.TrackNotifyFailure(kind)
		log.Printf("WARNING: %s notification failed ticket=%d entry=%s: %v", kind, t.ID, entry.ID, err)
	}
}

// History returns the ticket's action history, newest first.
func (e *Executor) History(ctx context.Context, ticketID int64) ([]domain.ActionHistoryEntry, error) {
	if _, err := sqlite.GetTicket(ctx, e.store.DB, ticketID); err != nil {
		return nil, err
	}
	return sqlite.GetActionHistory(ctx, e.store.DB, ticketID)
}
