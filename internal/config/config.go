package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"resolvebot/internal/decision"
	"resolvebot/internal/domain"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 30 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`

	DBPath                     string `yaml:"db_path"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	AdminSlackIDs       []string `yaml:"admin_slack_ids"`
	EscalationChannelID string   `yaml:"escalation_channel_id"`

	AutoResolveThreshold float64           `yaml:"auto_resolve_threshold"`
	FollowupThreshold    float64           `yaml:"followup_threshold"`
	ClarifyThreshold     float64           `yaml:"clarify_threshold"`
	CriticalCategories   []string          `yaml:"critical_categories"`
	TeamRouting          map[string]string `yaml:"team_routing"`
	DefaultTeam          string            `yaml:"default_team"`

	FollowupDelayHours          int    `yaml:"followup_delay_hours"`
	FollowupResponseWindowHours int    `yaml:"followup_response_window_hours"`
	FollowupSweepSchedule       string `yaml:"followup_sweep_schedule"`

	DigestDay  string `yaml:"digest_day"`
	DigestTime string `yaml:"digest_time"`

	MetricsAddr string `yaml:"metrics_addr"`
	Timezone    string `yaml:"timezone"`

	Location *time.Location  `yaml:"-"` // computed from Timezone, not from YAML
	Policy   decision.Policy `yaml:"-"` // computed from thresholds and routing
}

// LoadConfig reads config.yaml (or CONFIG_PATH), applies env overrides and
// defaults, and exits on invalid settings.
func LoadConfig() Config {
	return LoadConfigFrom("")
}

func LoadConfigFrom(configPath string) Config {
	var cfg Config

	if configPath == "" {
		configPath = "config.yaml"
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		}
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.EscalationChannelID, "ESCALATION_CHANNEL_ID")
	envOverrideFloat(&cfg.AutoResolveThreshold, "AUTO_RESOLVE_THRESHOLD")
	envOverrideFloat(&cfg.FollowupThreshold, "FOLLOWUP_THRESHOLD")
	envOverrideFloat(&cfg.ClarifyThreshold, "CLARIFY_THRESHOLD")
	envOverride(&cfg.DefaultTeam, "DEFAULT_TEAM")
	envOverrideInt(&cfg.FollowupDelayHours, "FOLLOWUP_DELAY_HOURS")
	envOverrideInt(&cfg.FollowupResponseWindowHours, "FOLLOWUP_RESPONSE_WINDOW_HOURS")
	envOverrideAllowEmpty(&cfg.FollowupSweepSchedule, "FOLLOWUP_SWEEP_SCHEDULE")
	envOverrideAllowEmpty(&cfg.DigestDay, "DIGEST_DAY")
	envOverride(&cfg.DigestTime, "DIGEST_TIME")
	envOverrideAllowEmpty(&cfg.MetricsAddr, "METRICS_ADDR")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverrideList(&cfg.AdminSlackIDs, "ADMIN_SLACK_IDS")
	envOverrideList(&cfg.CriticalCategories, "CRITICAL_CATEGORIES")

	if cfg.DBPath == "" {
		cfg.DBPath = "./resolvebot.db"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.AutoResolveThreshold == 0 {
		cfg.AutoResolveThreshold = decision.DefaultAutoResolveThreshold
	}
	if cfg.FollowupThreshold == 0 {
		cfg.FollowupThreshold = decision.DefaultFollowupThreshold
	}
	if cfg.ClarifyThreshold == 0 {
		cfg.ClarifyThreshold = decision.DefaultClarifyThreshold
	}
	if cfg.DefaultTeam == "" {
		cfg.DefaultTeam = decision.DefaultTeam
	}
	if cfg.FollowupDelayHours == 0 {
		cfg.FollowupDelayHours = 24
	}
	if cfg.FollowupResponseWindowHours == 0 {
		cfg.FollowupResponseWindowHours = 72
	}
	if cfg.DigestTime == "" {
		cfg.DigestTime = "09:00"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}
	if cfg.AnthropicAPIKey == "" {
		log.Printf("WARNING: anthropic_api_key is not set. Tickets will be routed to human teams without analysis.")
	}
	if len(cfg.AdminSlackIDs) == 0 {
		log.Printf("WARNING: admin_slack_ids is empty. Nobody can use /rollback or /resolution-stats.")
	}
	if cfg.EscalationChannelID == "" {
		log.Printf("WARNING: escalation_channel_id is not set. Escalations will only be sent to requesters.")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.FollowupDelayHours < 1 {
		log.Fatalf("invalid followup_delay_hours '%d': must be >= 1", cfg.FollowupDelayHours)
	}
	if cfg.FollowupResponseWindowHours < 1 {
		log.Fatalf("invalid followup_response_window_hours '%d': must be >= 1", cfg.FollowupResponseWindowHours)
	}
	if s := strings.TrimSpace(cfg.FollowupSweepSchedule); s != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(s); err != nil {
			log.Fatalf("invalid followup_sweep_schedule '%s': %v", s, err)
		}
	}

	policy, err := cfg.DecisionPolicy()
	if err != nil {
		log.Fatalf("invalid decision policy: %v", err)
	}
	cfg.Policy = policy

	return cfg
}

// DecisionPolicy builds the classifier policy from thresholds and routing.
// Routing entries extend the built-in table; unset critical categories keep
// the defaults.
func (c Config) DecisionPolicy() (decision.Policy, error) {
	p := decision.DefaultPolicy()
	p.AutoResolve = c.AutoResolveThreshold
	p.Followup = c.FollowupThreshold
	p.Clarify = c.ClarifyThreshold
	if c.DefaultTeam != "" {
		p.DefaultTeam = c.DefaultTeam
	}

	if len(c.CriticalCategories) > 0 {
		p.CriticalCategories = make(map[domain.Category]bool, len(c.CriticalCategories))
		for _, raw := range c.CriticalCategories {
			cat, err := domain.ParseCategory(raw)
			if err != nil {
				return decision.Policy{}, err
			}
			p.CriticalCategories[cat] = true
		}
	}
	for raw, team := range c.TeamRouting {
		cat, err := domain.ParseCategory(raw)
		if err != nil {
			return decision.Policy{}, err
		}
		if team = strings.TrimSpace(team); team != "" {
			p.TeamRouting[cat] = team
		}
	}

	if err := p.Validate(); err != nil {
		return decision.Policy{}, err
	}
	return p, nil
}

func (c Config) FollowupDelay() time.Duration {
	return time.Duration(c.FollowupDelayHours) * time.Hour
}

func (c Config) FollowupResponseWindow() time.Duration {
	return time.Duration(c.FollowupResponseWindowHours) * time.Hour
}

func (c Config) IsAdminID(userID string) bool {
	for _, id := range c.AdminSlackIDs {
		if strings.TrimSpace(id) == userID {
			return true
		}
	}
	return false
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			*field = append(*field, item)
		}
	}
}
