package domain

import (
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryWifi         Category = "wifi"
	CategoryLaptop       Category = "laptop"
	CategoryVPN          Category = "vpn"
	CategoryPrinter      Category = "printer"
	CategoryEmail        Category = "email"
	CategorySoftware     Category = "software"
	CategoryHardware     Category = "hardware"
	CategoryNetwork      Category = "network"
	CategoryAccount      Category = "account"
	CategoryAccess       Category = "access"
	CategoryPhone        Category = "phone"
	CategoryServer       Category = "server"
	CategorySecurity     Category = "security"
	CategoryCloud        Category = "cloud"
	CategoryStorage      Category = "storage"
	CategoryOther        Category = "other"
	CategoryServerOutage Category = "server-outage"
	CategoryDataLoss     Category = "data-loss"
)

var knownCategories = map[Category]bool{
	CategoryWifi:         true,
	CategoryLaptop:       true,
	CategoryVPN:          true,
	CategoryPrinter:      true,
	CategoryEmail:        true,
	CategorySoftware:     true,
	CategoryHardware:     true,
	CategoryNetwork:      true,
	CategoryAccount:      true,
	CategoryAccess:       true,
	CategoryPhone:        true,
	CategoryServer:       true,
	CategorySecurity:     true,
	CategoryCloud:        true,
	CategoryStorage:      true,
	CategoryOther:        true,
	CategoryServerOutage: true,
	CategoryDataLoss:     true,
}

// ParseCategory accepts case and spacing variants ("Server Outage",
// "server_outage") of the known categories.
func ParseCategory(raw string) (Category, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	c := Category(s)
	if !knownCategories[c] {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, raw)
	}
	return c, nil
}

func (c Category) Valid() bool {
	return knownCategories[c]
}

func Categories() []Category {
	return []Category{
		CategoryWifi, CategoryLaptop, CategoryVPN, CategoryPrinter, CategoryEmail,
		CategorySoftware, CategoryHardware, CategoryNetwork, CategoryAccount,
		CategoryAccess, CategoryPhone, CategoryServer, CategorySecurity,
		CategoryCloud, CategoryStorage, CategoryOther, CategoryServerOutage,
		CategoryDataLoss,
	}
}

type Status string

const (
	StatusOpen                 Status = "open"
	StatusInProgress           Status = "in-progress"
	StatusPendingClarification Status = "pending_clarification"
	StatusResolved             Status = "resolved"
	StatusEscalated            Status = "escalated"
	StatusClosed               Status = "closed"
)

type Ticket struct {
	ID            int64
	RequesterID   string // Slack user ID
	RequesterName string
	Category      Category
	Description   string
	Status        Status
	AssignedTeam  string
	Confidence    float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Snapshot captures the fields an action may change.
func (t Ticket) Snapshot() StateSnapshot {
	return StateSnapshot{Status: t.Status, AssignedTeam: t.AssignedTeam}
}

// Restore applies a snapshot back onto the ticket.
func (t *Ticket) Restore(s StateSnapshot) {
	t.Status = s.Status
	t.AssignedTeam = s.AssignedTeam
}

// ValidateConfidence rejects scores outside [0,1], including NaN.
func ValidateConfidence(confidence float64) error {
	if !(confidence >= 0 && confidence <= 1) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidInput, confidence)
	}
	return nil
}

type Interaction struct {
	ID        int64
	TicketID  int64
	Actor     string
	Kind      string // "agent_response", "rollback", "feedback", "user_message"
	Content   string
	CreatedAt time.Time
}

const (
	InteractionAgentResponse = "agent_response"
	InteractionRollback      = "rollback"
	InteractionFeedback      = "feedback"
	InteractionUserMessage   = "user_message"
)
