package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"resolvebot/internal/config"
	"resolvebot/internal/domain"
	"resolvebot/internal/storage/sqlite"

	"github.com/slack-go/slack"
)

var dayMap = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// StartDigestScheduler DMs the resolution dashboard to every admin once a
// week. An empty digest_day disables it.
func StartDigestScheduler(ctx context.Context, cfg config.Config, api *slack.Client, store *sqlite.Store) {
	if strings.TrimSpace(cfg.DigestDay) == "" {
		log.Println("Resolution digest disabled (digest_day not set)")
		return
	}
	if len(cfg.AdminSlackIDs) == 0 {
		log.Println("No admin_slack_ids configured, resolution digest disabled")
		return
	}

	weekday, ok := dayMap[strings.ToLower(strings.TrimSpace(cfg.DigestDay))]
	if !ok {
		log.Printf("Invalid digest_day '%s', using Monday", cfg.DigestDay)
		weekday = time.Monday
	}
	hour, min, err := parseTime(cfg.DigestTime)
	if err != nil {
		log.Printf("Invalid digest_time '%s': %v, using 09:00", cfg.DigestTime, err)
		hour, min = 9, 0
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	log.Printf("Resolution digest scheduled every %s at %02d:%02d for %d admins", weekday, hour, min, len(cfg.AdminSlackIDs))

	go func() {
		for {
			now := time.Now().In(loc)
			next := nextWeekday(now, weekday, hour, min)
			wait := next.Sub(now)
			log.Printf("Next resolution digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			sendDigest(ctx, api, store, cfg.AdminSlackIDs, time.Now().In(loc))
		}
	}()
}

func nextWeekday(now time.Time, day time.Weekday, hour, min int) time.Time {
	daysUntil := (day - now.Weekday() + 7) % 7
	if daysUntil == 0 {
		target := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
		if now.Before(target) {
			return target
		}
		daysUntil = 7
	}
	return time.Date(now.Year(), now.Month(), now.Day()+int(daysUntil), hour, min, 0, 0, now.Location())
}

// sendDigest posts all-time outcomes plus the last week's action stats.
// Returns the number of admins reached.
func sendDigest(ctx context.Context, api *slack.Client, store *sqlite.Store, adminIDs []string, now time.Time) int {
	stats, err := sqlite.GetResolutionStats(ctx, store.DB)
	if err != nil {
		log.Printf("digest resolution stats error: %v", err)
		return 0
	}
	weekAgo := now.AddDate(0, 0, -7)
	recent, err := sqlite.GetConfidenceStats(ctx, store.DB, weekAgo)
	if err != nil {
		log.Printf("digest confidence stats error (non-fatal): %v", err)
		recent = domain.ConfidenceStats{}
	}
	msg := fmt.Sprintf("*Weekly resolution digest* (%s - %s)\n\n%s",
		weekAgo.Format("Jan 2"), now.Format("Jan 2"),
		formatStats(stats, recent, "last 7 days"))
	if rows, err := sqlite.ListFeedback(ctx, store.DB); err != nil {
		log.Printf("digest feedback list error (non-fatal): %v", err)
	} else {
		msg += formatFollowupSummary(rows, weekAgo)
	}

	sent := 0
	for _, raw := range adminIDs {
		userID := strings.TrimSpace(raw)
		if userID == "" {
			continue
		}
		channel, _, _, err := api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{userID},
		})
		if err != nil {
			log.Printf("Error opening DM with %s: %v", userID, err)
			continue
		}
		if _, _, err := api.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(msg, false)); err != nil {
			log.Printf("Error sending digest to %s: %v", userID, err)
			continue
		}
		sent++
		log.Printf("Sent resolution digest to %s", userID)
	}
	return sent
}

// formatFollowupSummary lists follow-ups still open and tickets reopened
// since the given time.
func formatFollowupSummary(rows []domain.ResolutionFeedback, since time.Time) string {
	var open int
	var reopened []string
	for _, f := range rows {
		if !f.State.Terminal() {
			open++
		}
		if f.Reopened && !f.ReopenedAt.Before(since) {
			reopened = append(reopened, fmt.Sprintf("#%d", f.TicketID))
		}
	}
	var sb strings.Builder
	sb.WriteString("\n\n*Follow-ups*\n")
	fmt.Fprintf(&sb, "- Still open: %d\n", open)
	if len(reopened) == 0 {
		sb.WriteString("- Reopened this week: none")
	} else {
		fmt.Fprintf(&sb, "- Reopened this week: %s", strings.Join(reopened, ", "))
	}
	return sb.String()
}

func parseTime(s string) (int, int, error) {
	var hour, min int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &min)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %02d:%02d", hour, min)
	}
	return hour, min, nil
}
