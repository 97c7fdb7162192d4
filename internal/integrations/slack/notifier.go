package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"resolvebot/internal/domain"

	"github.com/slack-go/slack"
)

const (
	actionConfirmResolution = "confirm_resolution"
	actionReopenTicket      = "reopen_ticket"
	actionRateResolution    = "rate_resolution"
)

// Notifier delivers agent decisions and follow-up prompts over Slack.
type Notifier struct {
	api                 *slack.Client
	escalationChannelID string
}

func NewNotifier(api *slack.Client, escalationChannelID string) *Notifier {
	return &Notifier{api: api, escalationChannelID: escalationChannelID}
}

func (n *Notifier) NotifyAutoResolved(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error {
	header := fmt.Sprintf("*Ticket #%d resolved automatically*\nHere is how to fix it:", t.ID)
	blocks := []slack.Block{
		markdownSection(header),
		markdownSection(formatSteps(e.Params.Steps())),
		feedbackButtons(t.ID),
	}
	return n.dm(ctx, t.RequesterID, fmt.Sprintf("Ticket #%d resolved automatically", t.ID), blocks...)
}

func (n *Notifier) SendTentativeSolution(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error {
	header := fmt.Sprintf("*Ticket #%d: here is a suggested fix*\nPlease try these steps. I'll check back with you later.", t.ID)
	blocks := []slack.Block{
		markdownSection(header),
		markdownSection(formatSteps(e.Params.Steps())),
		feedbackButtons(t.ID),
	}
	return n.dm(ctx, t.RequesterID, fmt.Sprintf("Ticket #%d: suggested fix", t.ID), blocks...)
}

// NotifyEscalated tells the requester and posts to the escalation channel.
// Both are attempted; the first failure is returned.
func (n *Notifier) NotifyEscalated(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error {
	reason := e.Params.String(domain.ParamEscalationReason)
	if reason == "" {
		reason = e.Reasoning
	}
	userText := fmt.Sprintf("Ticket #%d has been escalated to a human specialist. Someone will reach out to you shortly.", t.ID)
	firstErr := n.dm(ctx, t.RequesterID, userText, markdownSection(userText))

	if n.escalationChannelID != "" {
		team := e.Params.String(domain.ParamSuggestedTeam)
		priority := e.Params.String(domain.ParamPriority)
		text := fmt.Sprintf("*Escalated ticket #%d* (%s)\n*Requester:* <@%s>\n*Priority:* %s\n*Suggested team:* %s\n*Reason:* %s\n>%s",
			t.ID, t.Category, t.RequesterID, orDash(priority), orDash(team), orDash(reason), truncate(t.Description, 500))
		_, _, err := n.api.PostMessageContext(ctx, n.escalationChannelID,
			slack.MsgOptionText(fmt.Sprintf("Escalated ticket #%d", t.ID), false),
			slack.MsgOptionBlocks(markdownSection(text)),
		)
		if err != nil {
			log.Printf("escalation channel post error ticket=%d channel=%s: %v", t.ID, n.escalationChannelID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (n *Notifier) RequestClarification(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error {
	text := fmt.Sprintf("*Ticket #%d needs a few more details*\n%s\nPlease reply with what you were doing, any error messages, and when it started.",
		t.ID, e.Params.String(domain.ParamReason))
	return n.dm(ctx, t.RequesterID, fmt.Sprintf("Ticket #%d needs more details", t.ID), markdownSection(text))
}

func (n *Notifier) NotifyTeamAssigned(ctx context.Context, t domain.Ticket, e domain.ActionHistoryEntry) error {
	team := e.Params.String(domain.ParamAssignedTeam)
	text := fmt.Sprintf("Ticket #%d has been assigned to *%s*. They will follow up with you.", t.ID, team)
	return n.dm(ctx, t.RequesterID, text, markdownSection(text))
}

func (n *Notifier) SendFollowupPrompt(ctx context.Context, t domain.Ticket, f domain.ResolutionFeedback) error {
	text := fmt.Sprintf("*Checking in on ticket #%d*\n>%s\nDid the solution fix your issue?", t.ID, truncate(t.Description, 300))
	blocks := []slack.Block{
		markdownSection(text),
		feedbackButtons(t.ID),
		ratingSelect(t.ID),
	}
	return n.dm(ctx, t.RequesterID, fmt.Sprintf("Did ticket #%d get fixed?", t.ID), blocks...)
}

func (n *Notifier) NotifyReopened(ctx context.Context, t domain.Ticket, reason string) error {
	text := fmt.Sprintf("Sorry it's still not working. Ticket #%d has been reopened and escalated to a specialist.", t.ID)
	firstErr := n.dm(ctx, t.RequesterID, text, markdownSection(text))
	if n.escalationChannelID != "" {
		msg := fmt.Sprintf("*Reopened ticket #%d* (%s) by <@%s>\n*Feedback:* %s\n>%s",
			t.ID, t.Category, t.RequesterID, orDash(reason), truncate(t.Description, 500))
		if _, _, err := n.api.PostMessageContext(ctx, n.escalationChannelID,
			slack.MsgOptionText(fmt.Sprintf("Reopened ticket #%d", t.ID), false),
			slack.MsgOptionBlocks(markdownSection(msg)),
		); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *Notifier) dm(ctx context.Context, userID, fallback string, blocks ...slack.Block) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("ticket has no requester to notify")
	}
	channel, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("opening DM with %s: %w", userID, err)
	}
	_, _, err = n.api.PostMessageContext(ctx, channel.ID,
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("posting DM to %s: %w", userID, err)
	}
	return nil
}

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func feedbackButtons(ticketID int64) *slack.ActionBlock {
	value := fmt.Sprintf("%d", ticketID)
	resolved := slack.NewButtonBlockElement(actionConfirmResolution, value,
		slack.NewTextBlockObject(slack.PlainTextType, "Resolved", false, false))
	resolved.Style = slack.StylePrimary
	reopen := slack.NewButtonBlockElement(actionReopenTicket, value,
		slack.NewTextBlockObject(slack.PlainTextType, "Still having issues", false, false))
	reopen.Style = slack.StyleDanger
	return slack.NewActionBlock(fmt.Sprintf("feedback_%d", ticketID), resolved, reopen)
}

func ratingSelect(ticketID int64) *slack.ActionBlock {
	labels := []string{"1 - Poor", "2", "3", "4", "5 - Excellent"}
	var opts []*slack.OptionBlockObject
	for i, label := range labels {
		opts = append(opts, slack.NewOptionBlockObject(
			fmt.Sprintf("%d:%d", ticketID, i+1),
			slack.NewTextBlockObject(slack.PlainTextType, label, false, false),
			nil,
		))
	}
	sel := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Rate this resolution", false, false),
		actionRateResolution,
		opts...,
	)
	return slack.NewActionBlock(fmt.Sprintf("rating_%d", ticketID), sel)
}

func formatSteps(steps []string) string {
	if len(steps) == 0 {
		return "_No specific steps were provided._"
	}
	var b strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
