package slackbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"resolvebot/internal/agent"
	"resolvebot/internal/config"
	"resolvebot/internal/decision"
	"resolvebot/internal/domain"
	"resolvebot/internal/followup"
	llm "resolvebot/internal/integrations/llm"
	"resolvebot/internal/rollback"
	"resolvebot/internal/storage/sqlite"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const recentTicketsLimit = 5

type Bot struct {
	cfg       config.Config
	api       *slack.Client
	store     *sqlite.Store
	exec      *agent.Executor
	analyzer  llm.Analyzer
	followups *followup.Manager
	rollbacks *rollback.Manager
}

func NewBot(cfg config.Config, api *slack.Client, store *sqlite.Store, exec *agent.Executor,
	analyzer llm.Analyzer, followups *followup.Manager, rollbacks *rollback.Manager) *Bot {
	if analyzer == nil {
		analyzer = llm.StaticAnalyzer{}
	}
	return &Bot{
		cfg:       cfg,
		api:       api,
		store:     store,
		exec:      exec,
		analyzer:  analyzer,
		followups: followups,
		rollbacks: rollbacks,
	}
}

// Run connects over Socket Mode and blocks until the connection ends.
func (b *Bot) Run(ctx context.Context) error {
	client := socketmode.New(b.api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go b.handleSlashCommand(ctx, cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go b.handleEventsAPI(ctx, eventsAPIEvent)
			case socketmode.EventTypeInteractive:
				client.Ack(*evt.Request)
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				go b.handleInteraction(ctx, callback)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.RunContext(ctx)
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/ticket":
		b.handleTicket(ctx, cmd)
	case "/ticket-history":
		b.handleTicketHistory(ctx, cmd)
	case "/ticket-close":
		b.handleTicketClose(ctx, cmd)
	case "/rollback":
		b.handleRollback(ctx, cmd)
	case "/resolution-stats":
		b.handleResolutionStats(ctx, cmd)
	case "/help":
		b.handleHelp(cmd)
	}
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MemberJoinedChannelEvent:
		b.handleMemberJoined(ev)
	case *slackevents.MessageEvent:
		if ev.ChannelType == "im" && ev.BotID == "" && ev.SubType == "" {
			b.handleDirectMessage(ctx, ev)
		}
	}
}

func (b *Bot) handleMemberJoined(ev *slackevents.MemberJoinedChannelEvent) {
	log.Printf("member-joined user=%s channel=%s", ev.User, ev.Channel)
	intro := "Hi! I'm ResolveBot, the IT helpdesk assistant.\n\n" +
		"• `/ticket <what's wrong>` — Open a ticket (e.g. `/ticket category=vpn VPN drops every few minutes`)\n" +
		"• `/ticket-history <id>` — See what happened on a ticket\n" +
		"• `/help` — See all available commands"
	_, _, err := b.api.PostMessage(ev.Channel,
		slack.MsgOptionText(intro, false),
		slack.MsgOptionPostEphemeral(ev.User),
	)
	if err != nil {
		log.Printf("member-joined intro error user=%s channel=%s: %v", ev.User, ev.Channel, err)
	}
}

type ticketRequest struct {
	Category    domain.Category
	Confidence  *float64
	Description string
}

// parseTicketCommand reads leading key=value options followed by the free
// text description.
func parseTicketCommand(text string) (ticketRequest, error) {
	var req ticketRequest
	fields := strings.Fields(text)
	i := 0
options:
	for ; i < len(fields); i++ {
		key, val, ok := strings.Cut(fields[i], "=")
		if !ok {
			break
		}
		switch strings.ToLower(key) {
		case "category":
			cat, err := domain.ParseCategory(val)
			if err != nil {
				return req, err
			}
			req.Category = cat
		case "confidence":
			c, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return req, fmt.Errorf("%w: confidence %q is not a number", domain.ErrInvalidInput, val)
			}
			if err := domain.ValidateConfidence(c); err != nil {
				return req, err
			}
			req.Confidence = &c
		default:
			// Not an option; the description itself contains "=".
			break options
		}
	}
	req.Description = strings.TrimSpace(strings.Join(fields[i:], " "))
	if req.Description == "" {
		return req, fmt.Errorf("%w: describe the problem after the options", domain.ErrInvalidInput)
	}
	return req, nil
}

func (b *Bot) handleTicket(ctx context.Context, cmd slack.SlashCommand) {
	if strings.TrimSpace(cmd.Text) == "" {
		postEphemeral(b.api, cmd, "Usage: /ticket [category=<category>] <description>\nExample: /ticket category=vpn VPN disconnects every few minutes since this morning")
		return
	}
	req, err := parseTicketCommand(cmd.Text)
	if err != nil {
		postEphemeral(b.api, cmd, userMessage(err))
		log.Printf("ticket parse error user=%s: %v", cmd.UserID, err)
		return
	}
	if req.Confidence != nil && !b.cfg.IsAdminID(cmd.UserID) {
		postEphemeral(b.api, cmd, "Sorry, only admins can set `confidence=`.")
		return
	}

	ticket, err := b.exec.OpenTicket(ctx, domain.Ticket{
		RequesterID:   cmd.UserID,
		RequesterName: displayName(b.api, cmd.UserID, cmd.UserName),
		Category:      req.Category,
		Description:   req.Description,
	})
	if err != nil {
		postEphemeral(b.api, cmd, fmt.Sprintf("Error saving ticket: %s", userMessage(err)))
		log.Printf("ticket insert error user=%s: %v", cmd.UserID, err)
		return
	}

	analysis := b.analyze(ctx, ticket)
	if req.Category != "" {
		analysis.Category = req.Category
	}
	if req.Confidence != nil {
		analysis.Confidence = *req.Confidence
	}

	entry, err := b.exec.Process(ctx, ticket.ID, analysis)
	if err != nil {
		postEphemeral(b.api, cmd, fmt.Sprintf("Ticket #%d was saved but could not be processed: %s", ticket.ID, userMessage(err)))
		log.Printf("ticket process error ticket=%d: %v", ticket.ID, err)
		return
	}
	postEphemeral(b.api, cmd, fmt.Sprintf("Ticket #%d created (%s). %s", ticket.ID, analysis.Category, actionSummary(entry)))
	log.Printf("ticket handled id=%d user=%s action=%s", ticket.ID, cmd.UserID, entry.ActionType)
}

// analyze asks the analysis service and falls back to routing the ticket
// to humans when it fails.
func (b *Bot) analyze(ctx context.Context, t domain.Ticket) decision.Analysis {
	a, err := b.analyzer.Analyze(ctx, t)
	if err != nil {
		log.Printf("analysis error ticket=%d (falling back to static): %v", t.ID, err)
		a, _ = llm.StaticAnalyzer{}.Analyze(ctx, t)
	}
	return a
}

func actionSummary(e domain.ActionHistoryEntry) string {
	switch e.ActionType {
	case domain.ActionAutoResolve:
		return "I found a fix and sent you the steps."
	case domain.ActionScheduleFollowup:
		return "I sent you a suggested fix and will check back later."
	case domain.ActionRequestClarification:
		return "I need a few more details; check your DMs."
	case domain.ActionEscalate:
		return "It has been escalated to a specialist."
	case domain.ActionAssignToTeam:
		return fmt.Sprintf("It has been assigned to %s.", e.Params.String(domain.ParamAssignedTeam))
	}
	return ""
}

// handleDirectMessage treats a DM from a requester with a ticket awaiting
// clarification as the extra detail and re-runs the analysis.
func (b *Bot) handleDirectMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	tickets, err := sqlite.GetTicketsByRequester(ctx, b.store.DB, ev.User, recentTicketsLimit)
	if err != nil {
		log.Printf("dm lookup error user=%s: %v", ev.User, err)
		return
	}
	var pending *domain.Ticket
	for i := range tickets {
		if tickets[i].Status == domain.StatusPendingClarification {
			pending = &tickets[i]
			break
		}
	}
	if pending == nil {
		return
	}

	if err := sqlite.InsertInteraction(ctx, b.store.DB, domain.Interaction{
		TicketID: pending.ID,
		Actor:    ev.User,
		Kind:     domain.InteractionUserMessage,
		Content:  text,
	}); err != nil {
		log.Printf("dm interaction error ticket=%d: %v", pending.ID, err)
		return
	}

	clarified := *pending
	clarified.Description = pending.Description + "\n\nAdditional details from requester:\n" + text
	entry, err := b.exec.Process(ctx, pending.ID, b.analyze(ctx, clarified))
	if err != nil {
		log.Printf("clarification process error ticket=%d: %v", pending.ID, err)
		return
	}
	log.Printf("clarification handled ticket=%d action=%s", pending.ID, entry.ActionType)
}

func parseTicketID(raw string) (int64, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a ticket id", domain.ErrInvalidInput, raw)
	}
	return id, nil
}

// loadOwnTicket returns the ticket when userID is its requester or an admin.
func (b *Bot) loadOwnTicket(ctx context.Context, userID string, ticketID int64) (domain.Ticket, bool, error) {
	t, err := sqlite.GetTicket(ctx, b.store.DB, ticketID)
	if err != nil {
		return domain.Ticket{}, false, err
	}
	return t, t.RequesterID == userID || b.cfg.IsAdminID(userID), nil
}

func (b *Bot) handleTicketHistory(ctx context.Context, cmd slack.SlashCommand) {
	id, err := parseTicketID(cmd.Text)
	if err != nil {
		postEphemeral(b.api, cmd, "Usage: /ticket-history <ticket id>")
		return
	}
	t, allowed, err := b.loadOwnTicket(ctx, cmd.UserID, id)
	if err != nil {
		postEphemeral(b.api, cmd, userMessage(err))
		return
	}
	if !allowed {
		postEphemeral(b.api, cmd, "Sorry, you can only view your own tickets.")
		return
	}

	history, err := b.exec.History(ctx, id)
	if err != nil {
		postEphemeral(b.api, cmd, fmt.Sprintf("Error loading history: %s", userMessage(err)))
		log.Printf("ticket-history error ticket=%d: %v", id, err)
		return
	}
	feedback, ferr := sqlite.GetFeedback(ctx, b.store.DB, id)
	postEphemeral(b.api, cmd, formatHistory(t, history, feedback, ferr == nil, b.cfg.IsAdminID(cmd.UserID), b.cfg.Location))
}

func formatHistory(t domain.Ticket, history []domain.ActionHistoryEntry, f domain.ResolutionFeedback, hasFeedback, admin bool, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Ticket #%d* (%s) - status: *%s*", t.ID, t.Category, t.Status)
	if t.AssignedTeam != "" {
		fmt.Fprintf(&sb, ", team: %s", t.AssignedTeam)
	}
	sb.WriteString("\n")
	if len(history) == 0 {
		sb.WriteString("_No actions taken yet._\n")
	}
	for _, e := range history {
		fmt.Fprintf(&sb, "- %s `%s` %s (confidence %.0f%%) %s -> %s",
			e.ExecutedAt.In(loc).Format("Jan 2 15:04"), e.ActionType, shortID(e.ID, admin),
			e.Confidence*100, e.BeforeState.Status, e.AfterState.Status)
		if e.RolledBack {
			fmt.Fprintf(&sb, " _rolled back by <@%s>: %s_", e.RolledBackBy, orDash(e.RollbackReason))
		}
		sb.WriteString("\n")
	}
	if hasFeedback {
		fmt.Fprintf(&sb, "Follow-up: %s", f.State)
		if f.Confirmation != domain.ConfirmationUnknown {
			fmt.Fprintf(&sb, ", requester %s", f.Confirmation)
		}
		if f.SatisfactionScore > 0 {
			fmt.Fprintf(&sb, ", rated %d/5", f.SatisfactionScore)
		}
		if f.State == domain.FollowupArmed && !f.FollowupDueAt.IsZero() {
			fmt.Fprintf(&sb, ", due %s", f.FollowupDueAt.In(loc).Format("Jan 2 15:04"))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// shortID shows the full entry id to admins, who need it for /rollback.
func shortID(id string, admin bool) string {
	if admin || len(id) <= 8 {
		return id
	}
	return id[:8]
}

func (b *Bot) handleTicketClose(ctx context.Context, cmd slack.SlashCommand) {
	id, err := parseTicketID(cmd.Text)
	if err != nil {
		postEphemeral(b.api, cmd, "Usage: /ticket-close <ticket id>")
		return
	}
	_, allowed, err := b.loadOwnTicket(ctx, cmd.UserID, id)
	if err != nil {
		postEphemeral(b.api, cmd, userMessage(err))
		return
	}
	if !allowed {
		postEphemeral(b.api, cmd, "Sorry, you can only close your own tickets.")
		return
	}
	if _, err := b.exec.CloseTicket(ctx, id, cmd.UserID); err != nil {
		postEphemeral(b.api, cmd, fmt.Sprintf("Could not close ticket #%d: %s", id, userMessage(err)))
		log.Printf("ticket-close error ticket=%d: %v", id, err)
		return
	}
	postEphemeral(b.api, cmd, fmt.Sprintf("Ticket #%d closed.", id))
}

func (b *Bot) handleRollback(ctx context.Context, cmd slack.SlashCommand) {
	if !b.cfg.IsAdminID(cmd.UserID) {
		postEphemeral(b.api, cmd, "Sorry, only admins can use this command.")
		log.Printf("rollback denied user=%s", cmd.UserID)
		return
	}
	entryID, reason, _ := strings.Cut(strings.TrimSpace(cmd.Text), " ")
	reason = strings.TrimSpace(reason)
	if entryID == "" || reason == "" {
		postEphemeral(b.api, cmd, "Usage: /rollback <entry id> <reason>\nFind entry ids with /ticket-history <ticket id>.")
		return
	}

	entry, err := b.rollbacks.Rollback(ctx, entryID, cmd.UserID, reason)
	if err != nil {
		postEphemeral(b.api, cmd, fmt.Sprintf("Rollback failed: %s", userMessage(err)))
		log.Printf("rollback error entry=%s user=%s: %v", entryID, cmd.UserID, err)
		return
	}
	postEphemeral(b.api, cmd, fmt.Sprintf("Rolled back %s on ticket #%d. Status restored to *%s*.",
		entry.ActionType, entry.TicketID, entry.BeforeState.Status))
}

func (b *Bot) handleResolutionStats(ctx context.Context, cmd slack.SlashCommand) {
	if !b.cfg.IsAdminID(cmd.UserID) {
		postEphemeral(b.api, cmd, "Sorry, only admins can use this command.")
		log.Printf("resolution-stats denied user=%s", cmd.UserID)
		return
	}

	stats, err := sqlite.GetResolutionStats(ctx, b.store.DB)
	if err != nil {
		postEphemeral(b.api, cmd, fmt.Sprintf("Error loading stats: %v", err))
		log.Printf("resolution-stats error: %v", err)
		return
	}
	loc := b.cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	fourWeeksAgo := time.Now().In(loc).AddDate(0, 0, -28)
	recent, err := sqlite.GetConfidenceStats(ctx, b.store.DB, fourWeeksAgo)
	if err != nil {
		log.Printf("resolution-stats confidence error (non-fatal): %v", err)
		recent = domain.ConfidenceStats{}
	}

	postEphemeral(b.api, cmd, formatStats(stats, recent, "last 4 weeks"))
	log.Printf("resolution-stats sent user=%s", cmd.UserID)
}

// formatStats renders the dashboard; window labels the period c covers.
func formatStats(s domain.ResolutionStats, c domain.ConfidenceStats, window string) string {
	var sb strings.Builder
	sb.WriteString("*Autonomous Resolution Dashboard*\n\n")
	sb.WriteString("*Follow-up Outcomes*\n")
	fmt.Fprintf(&sb, "- Resolutions followed up: %d\n", s.TotalResolutions)
	fmt.Fprintf(&sb, "- Confirmed fixed: %d\n", s.ConfirmedSuccessful)
	fmt.Fprintf(&sb, "- Confirmed not fixed: %d\n", s.ConfirmedFailed)
	fmt.Fprintf(&sb, "- Reopened: %d\n", s.Reopened)
	fmt.Fprintf(&sb, "- No response: %d\n", s.Expired)
	if s.RatedCount > 0 {
		fmt.Fprintf(&sb, "- Avg satisfaction: %.1f/5 (%d ratings)\n", s.AvgSatisfaction, s.RatedCount)
	}
	if s.ConfirmedSuccessful+s.ConfirmedFailed > 0 {
		fmt.Fprintf(&sb, "- Success rate: %.1f%%\n", s.SuccessRate())
	}
	if len(s.Breakdown) > 0 {
		sb.WriteString("\n*By Action*\n")
		for _, b := range s.Breakdown {
			fmt.Fprintf(&sb, "- %s: %d total, %d confirmed, %d failed\n", b.ActionType, b.Total, b.Confirmed, b.Failed)
		}
	}

	fmt.Fprintf(&sb, "\n*Actions (%s)*\n", window)
	fmt.Fprintf(&sb, "- Actions taken: %d\n", c.TotalActions)
	fmt.Fprintf(&sb, "- Rolled back: %d\n", c.TotalRollback)
	if c.TotalActions > 0 {
		fmt.Fprintf(&sb, "- Avg confidence: %.2f\n", c.AvgConfidence)
	}
	fmt.Fprintf(&sb, "\n*Confidence Distribution (%s)*\n", window)
	fmt.Fprintf(&sb, "- <30%%: %d\n", c.BucketBelow30)
	fmt.Fprintf(&sb, "- 30-60%%: %d\n", c.Bucket30to60)
	fmt.Fprintf(&sb, "- 60-80%%: %d\n", c.Bucket60to80)
	fmt.Fprintf(&sb, "- 80%%+: %d", c.Bucket80Plus)
	return sb.String()
}

func (b *Bot) handleHelp(cmd slack.SlashCommand) {
	var cats []string
	for _, c := range domain.Categories() {
		cats = append(cats, string(c))
	}
	lines := []string{
		"*ResolveBot Commands*",
		"",
		"`/ticket [category=<category>] <description>` — Open a ticket.",
		">*Example:* `/ticket category=printer Printer on floor 3 shows paper jam but is empty`",
		">*Categories:* " + strings.Join(cats, ", "),
		"`/ticket-history <id>` — Show actions taken on your ticket.",
		"`/ticket-close <id>` — Close your ticket.",
		"`/help` — Show this help.",
	}
	if b.cfg.IsAdminID(cmd.UserID) {
		p := b.exec.Policy()
		lines = append(lines,
			"",
			"*Admin Commands*",
			fmt.Sprintf("_Thresholds: auto-resolve %.2f, follow-up %.2f, clarify %.2f_", p.AutoResolve, p.Followup, p.Clarify),
			"",
			"`/ticket confidence=<0-1> ...` — Open a ticket with a fixed confidence.",
			"`/rollback <entry id> <reason>` — Undo an autonomous action.",
			"`/resolution-stats` — Show resolution and confidence dashboard.",
		)
	}
	postEphemeral(b.api, cmd, strings.Join(lines, "\n"))
}

func (b *Bot) handleInteraction(ctx context.Context, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	userID := cb.User.ID

	var (
		ticketID int64
		resp     = followup.Response{Actor: userID}
		err      error
	)
	switch act.ActionID {
	case actionConfirmResolution, actionReopenTicket:
		ticketID, err = parseTicketID(act.Value)
		confirmed := act.ActionID == actionConfirmResolution
		resp.Confirmed = &confirmed
	case actionRateResolution:
		ticketID, resp.Satisfaction, err = parseRating(act.SelectedOption.Value)
	default:
		return
	}
	if err != nil {
		postEphemeralTo(b.api, channelID, userID, "Invalid selection.")
		return
	}

	t, err := sqlite.GetTicket(ctx, b.store.DB, ticketID)
	if err != nil {
		postEphemeralTo(b.api, channelID, userID, userMessage(err))
		return
	}
	if t.RequesterID != userID {
		postEphemeralTo(b.api, channelID, userID, "Only the person who opened this ticket can respond.")
		return
	}

	f, err := b.followups.Respond(ctx, ticketID, resp)
	if err != nil {
		postEphemeralTo(b.api, channelID, userID, userMessage(err))
		log.Printf("interaction %s error ticket=%d user=%s: %v", act.ActionID, ticketID, userID, err)
		return
	}

	var reply string
	switch {
	case act.ActionID == actionRateResolution:
		reply = fmt.Sprintf("Thanks for rating ticket #%d %d/5.", ticketID, f.SatisfactionScore)
	case f.Confirmation == domain.ConfirmationConfirmed:
		reply = fmt.Sprintf("Great, glad ticket #%d is fixed!", ticketID)
	default:
		reply = fmt.Sprintf("Thanks for letting me know. Ticket #%d has been reopened and a specialist will follow up.", ticketID)
	}
	postEphemeralTo(b.api, channelID, userID, reply)
	log.Printf("interaction %s ticket=%d user=%s state=%s", act.ActionID, ticketID, userID, f.State)
}

// parseRating reads the "ticketID:score" value of the rating select.
func parseRating(value string) (int64, int, error) {
	rawID, rawScore, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: malformed rating %q", domain.ErrInvalidInput, value)
	}
	id, err := parseTicketID(rawID)
	if err != nil {
		return 0, 0, err
	}
	score, err := strconv.Atoi(rawScore)
	if err != nil || !domain.ValidSatisfaction(score) {
		return 0, 0, fmt.Errorf("%w: rating %q must be 1-5", domain.ErrInvalidInput, rawScore)
	}
	return id, score, nil
}

// userMessage turns domain errors into text fit for Slack.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "Not found: " + trimKind(err, domain.ErrNotFound)
	case errors.Is(err, domain.ErrAlreadyRolledBack):
		return "That action was already rolled back."
	case errors.Is(err, domain.ErrUnsupportedRollback):
		return "That action type cannot be rolled back."
	case errors.Is(err, domain.ErrInvalidInput):
		return trimKind(err, domain.ErrInvalidInput)
	case errors.Is(err, domain.ErrStorage):
		return "Something went wrong saving your request. Please try again."
	default:
		return err.Error()
	}
}

func trimKind(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	postEphemeralTo(api, cmd.ChannelID, cmd.UserID, text)
}

func postEphemeralTo(api *slack.Client, channelID, userID, text string) {
	_, err := api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}
