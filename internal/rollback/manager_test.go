package rollback

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"resolvebot/internal/domain"
	"resolvebot/internal/storage/sqlite"
)

type fakeCanceller struct {
	cancelled []int64
	err       error
}

func (f *fakeCanceller) Cancel(_ context.Context, ticketID int64) error {
	f.cancelled = append(f.cancelled, ticketID)
	return f.err
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "rollback-test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewStore(db)
}

// seedAction stores a ticket already in the after state of action plus its
// history entry.
func seedAction(t *testing.T, store *sqlite.Store, id string, action domain.ActionType, before, after domain.StateSnapshot) int64 {
	t.Helper()
	ctx := context.Background()
	ticketID, err := sqlite.InsertTicket(ctx, store.DB, domain.Ticket{
		RequesterID:  "U1",
		Category:     domain.CategoryEmail,
		Description:  "Mailbox full",
		Status:       after.Status,
		AssignedTeam: after.AssignedTeam,
	})
	if err != nil {
		t.Fatalf("InsertTicket failed: %v", err)
	}
	err = sqlite.InsertActionHistory(ctx, store.DB, domain.ActionHistoryEntry{
		ID:               id,
		TicketID:         ticketID,
		ActionType:       action,
		Confidence:       0.9,
		ExecutedBy:       domain.DefaultExecutor,
		ExecutedAt:       time.Now().UTC(),
		BeforeState:      before,
		AfterState:       after,
		RollbackPossible: Eligible(action),
	})
	if err != nil {
		t.Fatalf("InsertActionHistory failed: %v", err)
	}
	return ticketID
}

func TestEligible(t *testing.T) {
	tests := map[domain.ActionType]bool{
		domain.ActionAutoResolve:          true,
		domain.ActionAssignToTeam:         true,
		domain.ActionScheduleFollowup:     true,
		domain.ActionEscalate:             false,
		domain.ActionRequestClarification: false,
	}
	for action, want := range tests {
		if got := Eligible(action); got != want {
			t.Fatalf("Eligible(%s) = %v, want %v", action, got, want)
		}
	}
}

func TestRollbackRestoresAndCancelsFollowup(t *testing.T) {
	store := newTestStore(t)
	canceller := &fakeCanceller{err: errors.New("timer gone")}
	m := NewManager(store, canceller, nil)
	ctx := context.Background()

	ticketID := seedAction(t, store, "entry-1", domain.ActionAutoResolve,
		domain.StateSnapshot{Status: domain.StatusOpen},
		domain.StateSnapshot{Status: domain.StatusResolved})
	if err := sqlite.ArmFeedback(ctx, store.DB, ticketID, "entry-1", domain.ActionAutoResolve, time.Now().UTC()); err != nil {
		t.Fatalf("ArmFeedback failed: %v", err)
	}

	entry, err := m.Rollback(ctx, " entry-1 ", "UADMIN", " wrong fix ")
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !entry.RolledBack || entry.RolledBackBy != "UADMIN" || entry.RollbackReason != "wrong fix" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	ticket, _ := sqlite.GetTicket(ctx, store.DB, ticketID)
	if ticket.Status != domain.StatusOpen {
		t.Fatalf("expected open after rollback, got %s", ticket.Status)
	}
	if len(canceller.cancelled) != 1 || canceller.cancelled[0] != ticketID {
		t.Fatalf("expected follow-up cancel for ticket %d, got %v", ticketID, canceller.cancelled)
	}

	interactions, err := sqlite.GetInteractions(ctx, store.DB, ticketID)
	if err != nil || len(interactions) != 1 {
		t.Fatalf("expected one rollback note, got %d err=%v", len(interactions), err)
	}
	note := interactions[0]
	if note.Kind != domain.InteractionRollback || !strings.Contains(note.Content, "resolved -> open") || !strings.HasSuffix(note.Content, "Reason: wrong fix") {
		t.Fatalf("unexpected rollback note: %+v", note)
	}

	stored, _ := sqlite.GetActionHistoryByID(ctx, store.DB, "entry-1")
	if !stored.RolledBack || stored.RolledBackAt.IsZero() {
		t.Fatalf("entry not persisted as rolled back: %+v", stored)
	}
	f, _ := sqlite.GetFeedback(ctx, store.DB, ticketID)
	if f.State != domain.FollowupCancelled {
		t.Fatalf("expected follow-up row cancelled, got %s", f.State)
	}
}

func TestRollbackOlderEntryKeepsNewerFollowup(t *testing.T) {
	store := newTestStore(t)
	canceller := &fakeCanceller{}
	m := NewManager(store, canceller, nil)
	ctx := context.Background()

	ticketID := seedAction(t, store, "entry-old", domain.ActionScheduleFollowup,
		domain.StateSnapshot{Status: domain.StatusOpen},
		domain.StateSnapshot{Status: domain.StatusInProgress})
	// A later auto-resolve re-armed the ticket's follow-up.
	if err := sqlite.InsertActionHistory(ctx, store.DB, domain.ActionHistoryEntry{
		ID:               "entry-new",
		TicketID:         ticketID,
		ActionType:       domain.ActionAutoResolve,
		Confidence:       0.9,
		BeforeState:      domain.StateSnapshot{Status: domain.StatusInProgress},
		AfterState:       domain.StateSnapshot{Status: domain.StatusResolved},
		RollbackPossible: true,
	}); err != nil {
		t.Fatalf("InsertActionHistory failed: %v", err)
	}
	if err := sqlite.ArmFeedback(ctx, store.DB, ticketID, "entry-new", domain.ActionAutoResolve, time.Now().UTC()); err != nil {
		t.Fatalf("ArmFeedback failed: %v", err)
	}

	if _, err := m.Rollback(ctx, "entry-old", "UADMIN", "stale"); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	f, _ := sqlite.GetFeedback(ctx, store.DB, ticketID)
	if f.State != domain.FollowupArmed || f.ActionEntryID != "entry-new" {
		t.Fatalf("newer follow-up should stay armed: %+v", f)
	}
	if len(canceller.cancelled) != 0 {
		t.Fatalf("expected no trigger cancel, got %v", canceller.cancelled)
	}
}

func TestRollbackTeamAssignmentNote(t *testing.T) {
	store := newTestStore(t)
	canceller := &fakeCanceller{}
	m := NewManager(store, canceller, nil)
	ctx := context.Background()

	ticketID := seedAction(t, store, "entry-team", domain.ActionAssignToTeam,
		domain.StateSnapshot{Status: domain.StatusOpen},
		domain.StateSnapshot{Status: domain.StatusInProgress, AssignedTeam: "Identity & Access"})

	if _, err := m.Rollback(ctx, "entry-team", "UADMIN", ""); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	ticket, _ := sqlite.GetTicket(ctx, store.DB, ticketID)
	if ticket.AssignedTeam != "" || ticket.Status != domain.StatusOpen {
		t.Fatalf("expected unassigned open ticket, got %+v", ticket)
	}
	interactions, _ := sqlite.GetInteractions(ctx, store.DB, ticketID)
	if len(interactions) != 1 || !strings.Contains(interactions[0].Content, "team restored to unassigned") {
		t.Fatalf("unexpected note: %+v", interactions)
	}
	if len(canceller.cancelled) != 0 {
		t.Fatalf("team assignment arms no follow-up, got cancels %v", canceller.cancelled)
	}
}

func TestRollbackErrorOrder(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, nil, nil)
	ctx := context.Background()

	if _, err := m.Rollback(ctx, "  ", "UADMIN", "x"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty id, got %v", err)
	}
	if _, err := m.Rollback(ctx, "missing", "UADMIN", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seedAction(t, store, "entry-esc", domain.ActionEscalate,
		domain.StateSnapshot{Status: domain.StatusOpen},
		domain.StateSnapshot{Status: domain.StatusEscalated})
	if _, err := m.Rollback(ctx, "entry-esc", "UADMIN", "x"); !errors.Is(err, domain.ErrUnsupportedRollback) {
		t.Fatalf("expected ErrUnsupportedRollback, got %v", err)
	}

	seedAction(t, store, "entry-ok", domain.ActionScheduleFollowup,
		domain.StateSnapshot{Status: domain.StatusOpen},
		domain.StateSnapshot{Status: domain.StatusInProgress})
	if _, err := m.Rollback(ctx, "entry-ok", "UADMIN", "x"); err != nil {
		t.Fatalf("first rollback failed: %v", err)
	}
	if _, err := m.Rollback(ctx, "entry-ok", "UADMIN", "x"); !errors.Is(err, domain.ErrAlreadyRolledBack) {
		t.Fatalf("expected ErrAlreadyRolledBack, got %v", err)
	}
}

func TestCheckRollbackPrefersAlreadyRolledBack(t *testing.T) {
	e := domain.ActionHistoryEntry{ID: "e", ActionType: domain.ActionEscalate, RolledBack: true}
	if err := checkRollback(e); !errors.Is(err, domain.ErrAlreadyRolledBack) {
		t.Fatalf("expected ErrAlreadyRolledBack first, got %v", err)
	}
	e = domain.ActionHistoryEntry{ID: "e", ActionType: domain.ActionAutoResolve, RollbackPossible: false}
	if err := checkRollback(e); !errors.Is(err, domain.ErrUnsupportedRollback) {
		t.Fatalf("entry recorded as not rollback-eligible should be refused, got %v", err)
	}
}

func TestResultLabel(t *testing.T) {
	if got := resultLabel(domain.ErrNotFound); got != "not_found" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := resultLabel(domain.StorageError("x", errors.New("y"))); got != "error" {
		t.Fatalf("unexpected label %q", got)
	}
}
