package decision

import (
	"fmt"
	"strings"

	"resolvebot/internal/domain"
)

const (
	DefaultAutoResolveThreshold = 0.8
	DefaultFollowupThreshold    = 0.6
	DefaultClarifyThreshold     = 0.3
	DefaultTeam                 = "IT Support"
)

// Policy holds the thresholds and routing the classifier decides with.
// Swapping a Policy is how alternative threshold sets get tried.
type Policy struct {
	AutoResolve        float64
	Followup           float64
	Clarify            float64
	CriticalCategories map[domain.Category]bool
	TeamRouting        map[domain.Category]string
	DefaultTeam        string
}

func DefaultPolicy() Policy {
	return Policy{
		AutoResolve: DefaultAutoResolveThreshold,
		Followup:    DefaultFollowupThreshold,
		Clarify:     DefaultClarifyThreshold,
		CriticalCategories: map[domain.Category]bool{
			domain.CategorySecurity:     true,
			domain.CategoryServerOutage: true,
			domain.CategoryDataLoss:     true,
		},
		TeamRouting: DefaultTeamRouting(),
		DefaultTeam: DefaultTeam,
	}
}

func DefaultTeamRouting() map[domain.Category]string {
	return map[domain.Category]string{
		domain.CategoryWifi:         "Network Team",
		domain.CategoryVPN:          "Network Team",
		domain.CategoryNetwork:      "Network Team",
		domain.CategoryLaptop:       "Desktop Support",
		domain.CategoryPrinter:      "Desktop Support",
		domain.CategoryHardware:     "Desktop Support",
		domain.CategoryPhone:        "Desktop Support",
		domain.CategoryEmail:        "Identity & Access",
		domain.CategoryAccount:      "Identity & Access",
		domain.CategoryAccess:       "Identity & Access",
		domain.CategorySoftware:     "Application Support",
		domain.CategoryServer:       "Infrastructure",
		domain.CategoryCloud:        "Infrastructure",
		domain.CategoryStorage:      "Infrastructure",
		domain.CategorySecurity:     "Security Team",
		domain.CategoryServerOutage: "Infrastructure",
		domain.CategoryDataLoss:     "Infrastructure",
	}
}

func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"auto_resolve_threshold": p.AutoResolve,
		"followup_threshold":     p.Followup,
		"clarify_threshold":      p.Clarify,
	} {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("%s %v must be between 0 and 1", name, v)
		}
	}
	if !(p.Clarify <= p.Followup && p.Followup <= p.AutoResolve) {
		return fmt.Errorf("thresholds must satisfy clarify (%.2f) <= followup (%.2f) <= auto_resolve (%.2f)",
			p.Clarify, p.Followup, p.AutoResolve)
	}
	for c := range p.CriticalCategories {
		if !c.Valid() {
			return fmt.Errorf("unknown critical category %q", c)
		}
	}
	return nil
}

func (p Policy) IsCritical(c domain.Category) bool {
	return p.CriticalCategories[c]
}

// TeamFor picks the human queue for a category.
func (p Policy) TeamFor(c domain.Category) string {
	if team := strings.TrimSpace(p.TeamRouting[c]); team != "" {
		return team
	}
	if p.DefaultTeam != "" {
		return p.DefaultTeam
	}
	return DefaultTeam
}

// Analysis is what the external ticket-analysis service hands over.
type Analysis struct {
	Category        domain.Category
	Confidence      float64
	ResolutionSteps []string
	Reasoning       string
}

type Decision struct {
	Action    domain.ActionType
	Params    domain.ActionParams
	Reasoning string
}

// Validate rejects input the classifier is not defined over.
func (a Analysis) Validate() error {
	if !a.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, a.Category)
	}
	return domain.ValidateConfidence(a.Confidence)
}

// Classify maps an analysis to an action. Critical categories always
// escalate; otherwise the confidence bands decide.
func Classify(p Policy, a Analysis) (Decision, error) {
	if err := a.Validate(); err != nil {
		return Decision{}, err
	}

	steps := append([]string(nil), a.ResolutionSteps...)
	switch {
	case p.IsCritical(a.Category):
		return Decision{
			Action: domain.ActionEscalate,
			Params: domain.ActionParams{
				domain.ParamEscalationReason: fmt.Sprintf("Critical category %s requires human review", a.Category),
				domain.ParamPriority:         "high",
				domain.ParamSuggestedTeam:    p.TeamFor(a.Category),
			},
			Reasoning: fmt.Sprintf("category %s is critical; escalating regardless of confidence %.2f", a.Category, a.Confidence),
		}, nil
	case a.Confidence >= p.AutoResolve:
		return Decision{
			Action: domain.ActionAutoResolve,
			Params: domain.ActionParams{
				domain.ParamResolutionSteps: steps,
				domain.ParamReasoning:       a.Reasoning,
			},
			Reasoning: withReasoning(fmt.Sprintf("confidence %.2f >= %.2f", a.Confidence, p.AutoResolve), a.Reasoning),
		}, nil
	case a.Confidence >= p.Followup:
		return Decision{
			Action: domain.ActionScheduleFollowup,
			Params: domain.ActionParams{
				domain.ParamResolutionSteps: steps,
				domain.ParamReasoning:       a.Reasoning,
			},
			Reasoning: withReasoning(fmt.Sprintf("confidence %.2f >= %.2f; tentative solution with follow-up", a.Confidence, p.Followup), a.Reasoning),
		}, nil
	case a.Confidence >= p.Clarify:
		return Decision{
			Action: domain.ActionRequestClarification,
			Params: domain.ActionParams{
				domain.ParamReason: "Need more information to suggest a fix",
			},
			Reasoning: fmt.Sprintf("confidence %.2f >= %.2f; asking requester for details", a.Confidence, p.Clarify),
		}, nil
	default:
		team := p.TeamFor(a.Category)
		return Decision{
			Action: domain.ActionAssignToTeam,
			Params: domain.ActionParams{
				domain.ParamAssignedTeam: team,
			},
			Reasoning: fmt.Sprintf("confidence %.2f below %.2f; assigned to %s", a.Confidence, p.Clarify, team),
		}, nil
	}
}

func withReasoning(base, extra string) string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return base
	}
	return base + ": " + extra
}
