package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"resolvebot/internal/agent"
	"resolvebot/internal/config"
	"resolvebot/internal/followup"
	"resolvebot/internal/httpx"
	llm "resolvebot/internal/integrations/llm"
	slackbot "resolvebot/internal/integrations/slack"
	"resolvebot/internal/metrics"
	"resolvebot/internal/rollback"
	"resolvebot/internal/storage/sqlite"

	"github.com/slack-go/slack"
)

func Main(configPath string) {
	cfg := config.LoadConfigFrom(configPath)
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Admins=%d Timezone=%s AutoResolve=%.2f Followup=%.2f Clarify=%.2f FollowupDelay=%s ResponseWindow=%s ExternalHTTPTimeout=%s",
		len(cfg.AdminSlackIDs),
		cfg.Timezone,
		cfg.Policy.AutoResolve,
		cfg.Policy.Followup,
		cfg.Policy.Clarify,
		cfg.FollowupDelay(),
		cfg.FollowupResponseWindow(),
		appliedHTTPTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()
	store := sqlite.NewStore(db)

	m := metrics.New()
	m.Serve(ctx, cfg.MetricsAddr)

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
		slack.OptionHTTPClient(httpx.ExternalHTTPClient()),
	)
	notifier := slackbot.NewNotifier(api, cfg.EscalationChannelID)

	sched := followup.NewTimerScheduler()
	defer sched.Stop()
	followups := followup.NewManager(store, sched, notifier, followup.Options{
		Delay:          cfg.FollowupDelay(),
		ResponseWindow: cfg.FollowupResponseWindow(),
		Metrics:        m,
	})
	if n, err := followups.Recover(ctx); err != nil {
		log.Printf("WARNING: follow-up recovery failed: %v", err)
	} else {
		log.Printf("Recovered %d pending follow-ups", n)
	}
	followup.StartSweepScheduler(ctx, cfg.FollowupSweepSchedule, cfg.Location, followups)

	exec := agent.NewExecutor(store, cfg.Policy, followups, notifier, m)
	rollbacks := rollback.NewManager(store, followups, m)

	var analyzer llm.Analyzer = llm.StaticAnalyzer{}
	if cfg.AnthropicAPIKey != "" {
		analyzer = llm.NewAnthropicAnalyzer(cfg.AnthropicAPIKey, cfg.LLMModel)
	}

	slackbot.StartDigestScheduler(ctx, cfg, api, store)

	log.Println("Starting ResolveBot...")
	bot := slackbot.NewBot(cfg, api, store, exec, analyzer, followups, rollbacks)
	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Slack bot error: %v", err)
	}
	log.Println("ResolveBot stopped")
}
