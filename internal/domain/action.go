package domain

import "time"

type ActionType string

const (
	ActionAutoResolve          ActionType = "AUTO_RESOLVE"
	ActionEscalate             ActionType = "ESCALATE"
	ActionRequestClarification ActionType = "REQUEST_CLARIFICATION"
	ActionAssignToTeam         ActionType = "ASSIGN_TO_TEAM"
	ActionScheduleFollowup     ActionType = "SCHEDULE_FOLLOWUP"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionAutoResolve, ActionEscalate, ActionRequestClarification, ActionAssignToTeam, ActionScheduleFollowup:
		return true
	}
	return false
}

// ArmsFollowup reports whether executing the action schedules a follow-up.
func (a ActionType) ArmsFollowup() bool {
	return a == ActionAutoResolve || a == ActionScheduleFollowup
}

// ActionParams is the opaque payload attached to an action.
type ActionParams map[string]any

const (
	ParamResolutionSteps  = "resolution_steps"
	ParamEscalationReason = "escalation_reason"
	ParamPriority         = "priority"
	ParamReason           = "reason"
	ParamAssignedTeam     = "assigned_team"
	ParamSuggestedTeam    = "suggested_team"
	ParamReasoning        = "reasoning"
)

// String returns the value for key if it holds a string.
func (p ActionParams) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Steps returns the resolution steps, accepting both []string and the
// []any shape produced by JSON decoding.
func (p ActionParams) Steps() []string {
	if p == nil {
		return nil
	}
	switch v := p[ParamResolutionSteps].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

type StateSnapshot struct {
	Status       Status `json:"status"`
	AssignedTeam string `json:"assigned_team,omitempty"`
}

type ActionHistoryEntry struct {
	ID               string
	TicketID         int64
	ActionType       ActionType
	Params           ActionParams
	Confidence       float64
	Reasoning        string
	ExecutedBy       string
	ExecutedAt       time.Time
	BeforeState      StateSnapshot
	AfterState       StateSnapshot
	RollbackPossible bool
	RolledBack       bool
	RolledBackAt     time.Time
	RolledBackBy     string
	RollbackReason   string
}

const DefaultExecutor = "autonomous_agent"
