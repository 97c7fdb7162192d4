package followup

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

	"github.com/robfig/cron/v3"
)

const (
	DefaultDelay          = 24 * time.Hour
	DefaultResponseWindow = 72 * time.Hour
)

// Prompter delivers the follow-up conversation to the requester.
type Prompter interface {
	SendFollowupPrompt(ctx context.Context, t domain.Ticket, f domain.ResolutionFeedback) error
	NotifyReopened(ctx context.Context, t domain.Ticket, reason string) error
}

type Manager struct {
	store          *sqlite.Store
	sched          Scheduler
	prompter       Prompter
	metrics        *metrics.Agent
	delay          time.Duration
	responseWindow time.Duration
	now            func() time.Time
}

type Options struct {
	Delay          time.Duration
	ResponseWindow time.Duration
	Metrics        *metrics.Agent
}

func NewManager(store *sqlite.Store, sched Scheduler, prompter Prompter, opts Options) *Manager {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.ResponseWindow <= 0 {
		opts.ResponseWindow = DefaultResponseWindow
	}
	return &Manager{
		store:          store,
		sched:          sched,
		prompter:       prompter,
		metrics:        opts.Metrics,
		delay:          opts.Delay,
		responseWindow: opts.ResponseWindow,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func key(ticketID int64) string {
	return fmt.Sprintf("followup:%d", ticketID)
}

// Prepare writes the armed follow-up row for history entry entryID inside the
// caller's transaction and returns when it is due. Call Schedule once that
// transaction commits.
func (m *Manager) Prepare(ctx context.Context, q sqlite.DBTX, ticketID int64, entryID string, action domain.ActionType) (time.Time, error) {
	due := m.now().Add(m.delay)
	if err := sqlite.ArmFeedback(ctx, q, ticketID, entryID, action, due); err != nil {
		return time.Time{}, err
	}
	return due, nil
}

// Schedule arms the in-process trigger for a prepared follow-up.
func (m *Manager) Schedule(ticketID int64, dueAt time.Time) {
	delay := dueAt.Sub(m.now())
	m.sched.Schedule(key(ticketID), delay, func() {
		if err := m.Fire(context.Background(), ticketID); err != nil {
			log.Printf("followup fire error ticket=%d: %v", ticketID, err)
		}
	})
	m.metrics.TrackFollowup(string(domain.FollowupArmed))
	m.updatePending()
	log.Printf("followup armed ticket=%d due=%s", ticketID, dueAt.Format(time.RFC3339))
}

// Arm prepares and schedules a follow-up outside any caller transaction.
func (m *Manager) Arm(ctx context.Context, ticketID int64, entryID string, action domain.ActionType) error {
	due, err := m.Prepare(ctx, m.store.DB, ticketID, entryID, action)
	if err != nil {
		return err
	}
	m.Schedule(ticketID, due)
	return nil
}

// Fire sends the confirmation prompt once. A second call for the same cycle
// is a no-op, as is firing for a closed or deleted ticket.
func (m *Manager) Fire(ctx context.Context, ticketID int64) error {
	var ticket domain.Ticket
	var feedback domain.ResolutionFeedback
	send := false

	err := m.store.WithTicket(ctx, ticketID, func(tx *sql.Tx, t *domain.Ticket) error {
		if t.Status == domain.StatusClosed {
			if _, err := sqlite.CancelFeedback(ctx, tx, ticketID); err != nil {
				return err
			}
			log.Printf("followup skipped ticket=%d: ticket closed", ticketID)
			return nil
		}
		sent, err := sqlite.MarkFollowupSent(ctx, tx, ticketID, m.now())
		if err != nil {
			return err
		}
		if !sent {
			log.Printf("followup already sent or no longer armed ticket=%d", ticketID)
			return nil
		}
		f, err := sqlite.GetFeedback(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		ticket, feedback, send = *t, f, true
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("followup skipped ticket=%d: ticket no longer exists", ticketID)
		return nil
	}
	if err != nil {
		return err
	}
	if !send {
		return nil
	}

	m.metrics.TrackFollowup(string(domain.FollowupFired))
	if err := m.prompter.SendFollowupPrompt(ctx, ticket, feedback); err != nil {
		m.metrics.TrackNotifyFailure("followup_prompt")
		log.Printf("WARNING: followup prompt delivery failed ticket=%d: %v", ticketID, err)
	}
	return nil
}

type Response struct {
	// Confirmed is nil when the requester only rated the resolution.
	Confirmed    *bool
	Satisfaction int
	Text         string
	Actor        string
}

// Respond records the requester's answer. A denial reopens the ticket by
// escalating it. Yes/no answers are refused once the action that armed the
// follow-up was rolled back, and denials are refused on a closed ticket.
func (m *Manager) Respond(ctx context.Context, ticketID int64, r Response) (domain.ResolutionFeedback, error) {
	if r.Satisfaction != 0 && !domain.ValidSatisfaction(r.Satisfaction) {
		return domain.ResolutionFeedback{}, fmt.Errorf("%w: satisfaction score %d must be 1-5", domain.ErrInvalidInput, r.Satisfaction)
	}

	var out domain.ResolutionFeedback
	var reopenedTicket *domain.Ticket

	err := m.store.WithTicket(ctx, ticketID, func(tx *sql.Tx, t *domain.Ticket) error {
		f, err := sqlite.GetFeedback(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		now := m.now()
		if r.Satisfaction != 0 {
			f.SatisfactionScore = r.Satisfaction
		}
		if text := strings.TrimSpace(r.Text); text != "" {
			f.FeedbackText = text
		}

		if r.Confirmed != nil {
			switch f.State {
			case domain.FollowupConfirmed, domain.FollowupDenied:
				return fmt.Errorf("%w: ticket %d follow-up already answered (%s)", domain.ErrInvalidInput, ticketID, f.State)
			case domain.FollowupCancelled:
				return fmt.Errorf("%w: ticket %d follow-up was cancelled", domain.ErrInvalidInput, ticketID)
			}
			if err := checkArmingEntry(ctx, tx, f); err != nil {
				return err
			}
			if !*r.Confirmed && t.Status == domain.StatusClosed {
				return fmt.Errorf("%w: ticket %d is closed", domain.ErrInvalidInput, ticketID)
			}
			f.ResponseReceivedAt = now
			if *r.Confirmed {
				f.State = domain.FollowupConfirmed
				f.Confirmation = domain.ConfirmationConfirmed
			} else {
				f.State = domain.FollowupDenied
				f.Confirmation = domain.ConfirmationDenied
				f.Reopened = true
				f.ReopenedAt = now
				f.ReopenedReason = f.FeedbackText
				if f.ReopenedReason == "" {
					f.ReopenedReason = "User reported issue not resolved"
				}
				t.Status = domain.StatusEscalated
				if err := sqlite.UpdateTicketState(ctx, tx, *t); err != nil {
					return err
				}
				reopenedTicket = t
			}
		}

		if err := sqlite.SaveFeedback(ctx, tx, f); err != nil {
			return err
		}
		if err := sqlite.InsertInteraction(ctx, tx, domain.Interaction{
			TicketID: ticketID,
			Actor:    r.Actor,
			Kind:     domain.InteractionFeedback,
			Content:  feedbackNote(f, r),
		}); err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return domain.ResolutionFeedback{}, err
	}

	if r.Confirmed != nil {
		m.sched.Cancel(key(ticketID))
		m.updatePending()
		m.metrics.TrackFollowup(string(out.State))
	}
	if reopenedTicket != nil {
		log.Printf("followup denied ticket=%d: reopened and escalated", ticketID)
		if err := m.prompter.NotifyReopened(ctx, *reopenedTicket, out.ReopenedReason); err != nil {
			m.metrics.TrackNotifyFailure("reopened")
			log.Printf("WARNING: reopen notification failed ticket=%d: %v", ticketID, err)
		}
	}
	return out, nil
}

// checkArmingEntry refuses answers for a cycle whose action was undone.
func checkArmingEntry(ctx context.Context, q sqlite.DBTX, f domain.ResolutionFeedback) error {
	if f.ActionEntryID == "" {
		return nil
	}
	e, err := sqlite.GetActionHistoryByID(ctx, q, f.ActionEntryID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if e.RolledBack {
		return fmt.Errorf("%w: ticket %d %s was rolled back", domain.ErrInvalidInput, f.TicketID, e.ActionType)
	}
	return nil
}

func feedbackNote(f domain.ResolutionFeedback, r Response) string {
	var parts []string
	if r.Confirmed != nil {
		if *r.Confirmed {
			parts = append(parts, "User confirmed the resolution worked.")
		} else {
			parts = append(parts, "User reported the issue is not resolved; ticket reopened.")
		}
	}
	if r.Satisfaction != 0 {
		parts = append(parts, fmt.Sprintf("Satisfaction: %d/5.", f.SatisfactionScore))
	}
	if text := strings.TrimSpace(r.Text); text != "" {
		parts = append(parts, "Feedback: "+text)
	}
	return strings.Join(parts, " ")
}

// Cancel drops the ticket's follow-up, armed or already prompted, e.g. after
// a manual close or rollback.
func (m *Manager) Cancel(ctx context.Context, ticketID int64) error {
	pending := m.sched.Cancel(key(ticketID))
	cancelled, err := sqlite.CancelFeedback(ctx, m.store.DB, ticketID)
	if err != nil {
		return err
	}
	if pending || cancelled {
		m.metrics.TrackFollowup(string(domain.FollowupCancelled))
		log.Printf("followup cancelled ticket=%d", ticketID)
	}
	m.updatePending()
	return nil
}

// ExpireStale marks prompts left unanswered past the response window.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.responseWindow)
	expired, err := sqlite.ExpireFeedback(ctx, m.store.DB, cutoff)
	for range expired {
		m.metrics.TrackFollowup(string(domain.FollowupExpired))
	}
	if len(expired) > 0 {
		log.Printf("followup expired tickets=%v", expired)
	}
	return len(expired), err
}

// Recover re-arms follow-ups persisted as armed, e.g. after a restart.
// Overdue ones fire immediately.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	armed, err := sqlite.ListArmedFeedback(ctx, m.store.DB)
	if err != nil {
		return 0, err
	}
	for _, f := range armed {
		due := f.FollowupDueAt
		if due.IsZero() {
			due = m.now()
		}
		m.Schedule(f.TicketID, due)
	}
	if len(armed) > 0 {
		log.Printf("followup recovered %d armed follow-ups", len(armed))
	}
	return len(armed), nil
}

func (m *Manager) updatePending() {
	if ts, ok := m.sched.(*TimerScheduler); ok {
		m.metrics.SetPendingFollowups(ts.Len())
	}
}

// StartSweepScheduler expires stale follow-ups on a 5-field cron schedule
// until ctx is cancelled.
func StartSweepScheduler(ctx context.Context, schedule string, loc *time.Location, m *Manager) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		log.Println("Follow-up sweep disabled (followup_sweep_schedule not set)")
		return
	}
	if loc == nil {
		loc = time.Local
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid followup_sweep_schedule '%s': %v, sweep disabled", schedule, err)
		return
	}
	log.Printf("Follow-up sweep scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			wait := next.Sub(now)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			n, err := m.ExpireStale(ctx)
			if err != nil {
				log.Printf("Follow-up sweep error: %v", err)
				continue
			}
			log.Printf("Follow-up sweep complete: %d expired", n)
		}
	}()
}
