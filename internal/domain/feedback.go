package domain

import "time"

type FollowupState string

const (
	FollowupArmed     FollowupState = "armed"
	FollowupFired     FollowupState = "fired"
	FollowupConfirmed FollowupState = "confirmed"
	FollowupDenied    FollowupState = "denied"
	FollowupExpired   FollowupState = "expired"
	FollowupCancelled FollowupState = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s FollowupState) Terminal() bool {
	switch s {
	case FollowupConfirmed, FollowupDenied, FollowupExpired, FollowupCancelled:
		return true
	}
	return false
}

type Confirmation string

const (
	ConfirmationUnknown   Confirmation = "unknown"
	ConfirmationConfirmed Confirmation = "confirmed"
	ConfirmationDenied    Confirmation = "denied"
)

type ResolutionFeedback struct {
	TicketID           int64
	AutonomousAction   ActionType
	ActionEntryID      string // history entry that armed this cycle
	State              FollowupState
	Confirmation       Confirmation
	SatisfactionScore  int // 0 when not given, otherwise 1-5
	FeedbackText       string
	FollowupDueAt      time.Time
	FollowupSentAt     time.Time
	ResponseReceivedAt time.Time
	Reopened           bool
	ReopenedAt         time.Time
	ReopenedReason     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WasSuccessful returns (success, known). A reopened ticket is a failure
// regardless of other signals.
func (f ResolutionFeedback) WasSuccessful() (bool, bool) {
	if f.Reopened {
		return false, true
	}
	if f.Confirmation == ConfirmationConfirmed {
		return true, true
	}
	if f.SatisfactionScore >= 4 {
		return true, true
	}
	return false, false
}

func ValidSatisfaction(score int) bool {
	return score >= 1 && score <= 5
}
