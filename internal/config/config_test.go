package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"resolvebot/internal/domain"
)

var configEnvKeys = []string{
	"SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "ANTHROPIC_API_KEY", "LLM_MODEL", "DB_PATH",
	"EXTERNAL_HTTP_TIMEOUT_SECONDS", "ESCALATION_CHANNEL_ID", "AUTO_RESOLVE_THRESHOLD",
	"FOLLOWUP_THRESHOLD", "CLARIFY_THRESHOLD", "DEFAULT_TEAM", "FOLLOWUP_DELAY_HOURS",
	"FOLLOWUP_RESPONSE_WINDOW_HOURS", "FOLLOWUP_SWEEP_SCHEDULE", "DIGEST_DAY", "DIGEST_TIME",
	"METRICS_ADDR", "TIMEZONE", "ADMIN_SLACK_IDS", "CRITICAL_CATEGORIES",
}

// clearConfigEnv unsets every config variable for the test so values from
// the developer's shell cannot override the yaml under test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	clearConfigEnv(t)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_APP_TOKEN", "xapp-test")
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	setMinimalValidConfigEnv(t)
	t.Setenv("ADMIN_SLACK_IDS", "U12345, U67890")

	cfg := LoadConfig()

	if cfg.SlackBotToken != "xoxb-test" || cfg.SlackAppToken != "xapp-test" {
		t.Fatalf("unexpected slack tokens: %q %q", cfg.SlackBotToken, cfg.SlackAppToken)
	}
	if cfg.DBPath != "./resolvebot.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.FollowupDelay() != 24*time.Hour || cfg.FollowupResponseWindow() != 72*time.Hour {
		t.Fatalf("unexpected follow-up defaults: delay=%s window=%s", cfg.FollowupDelay(), cfg.FollowupResponseWindow())
	}
	if cfg.DigestDay != "" || cfg.DigestTime != "09:00" {
		t.Fatalf("unexpected digest defaults: day=%q time=%q", cfg.DigestDay, cfg.DigestTime)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if !cfg.IsAdminID("U67890") || cfg.IsAdminID("U00000") {
		t.Fatalf("unexpected admin ids: %v", cfg.AdminSlackIDs)
	}
	p := cfg.Policy
	if p.AutoResolve != 0.8 || p.Followup != 0.6 || p.Clarify != 0.3 {
		t.Fatalf("unexpected default thresholds: %+v", p)
	}
	if !p.IsCritical(domain.CategorySecurity) || p.DefaultTeam != "IT Support" {
		t.Fatalf("unexpected default policy: %+v", p)
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	clearConfigEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
slack_bot_token: "yaml-bot"
slack_app_token: "yaml-app"
anthropic_api_key: "yaml-anthropic"
timezone: "America/Los_Angeles"
db_path: "/tmp/yaml.db"
auto_resolve_threshold: 0.9
followup_threshold: 0.7
critical_categories: ["security", "Data Loss"]
team_routing:
  vpn: "Remote Access"
default_team: "Service Desk"
followup_sweep_schedule: "0 * * * *"
digest_day: "monday"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "ignored.yaml"))
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "120")
	t.Setenv("FOLLOWUP_DELAY_HOURS", "2")
	t.Setenv("DIGEST_TIME", "08:30")

	cfg := LoadConfigFrom(cfgPath)

	if cfg.AnthropicAPIKey != "yaml-anthropic" {
		t.Fatalf("expected anthropic key from yaml")
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected db path from env override, got %q", cfg.DBPath)
	}
	if cfg.ExternalHTTPTimeoutSeconds != 120 {
		t.Fatalf("expected external HTTP timeout from env override, got %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.FollowupDelay() != 2*time.Hour {
		t.Fatalf("expected follow-up delay from env override, got %s", cfg.FollowupDelay())
	}
	if cfg.DigestDay != "monday" || cfg.DigestTime != "08:30" {
		t.Fatalf("unexpected digest settings: day=%q time=%q", cfg.DigestDay, cfg.DigestTime)
	}
	p := cfg.Policy
	if p.AutoResolve != 0.9 || p.Followup != 0.7 || p.Clarify != 0.3 {
		t.Fatalf("unexpected thresholds: %+v", p)
	}
	if !p.IsCritical(domain.CategoryDataLoss) || p.IsCritical(domain.CategoryServerOutage) {
		t.Fatalf("critical categories not taken from yaml: %v", p.CriticalCategories)
	}
	if p.TeamFor(domain.CategoryVPN) != "Remote Access" || p.TeamFor(domain.CategoryWifi) != "Network Team" {
		t.Fatalf("team routing should extend the defaults: vpn=%q wifi=%q", p.TeamFor(domain.CategoryVPN), p.TeamFor(domain.CategoryWifi))
	}
	if p.TeamFor(domain.CategoryOther) != "Service Desk" {
		t.Fatalf("expected default team override, got %q", p.TeamFor(domain.CategoryOther))
	}
}

func TestDecisionPolicyRejectsBadInput(t *testing.T) {
	base := Config{AutoResolveThreshold: 0.8, FollowupThreshold: 0.6, ClarifyThreshold: 0.3}

	bad := base
	bad.CriticalCategories = []string{"toaster"}
	if _, err := bad.DecisionPolicy(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown critical category, got %v", err)
	}

	bad = base
	bad.TeamRouting = map[string]string{"toaster": "Kitchen"}
	if _, err := bad.DecisionPolicy(); err == nil {
		t.Fatal("expected error for unknown routing category")
	}

	bad = base
	bad.FollowupThreshold = 0.9
	if _, err := bad.DecisionPolicy(); err == nil {
		t.Fatal("expected error when followup threshold exceeds auto-resolve")
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	s := "initial"
	t.Setenv("RB_TEST_STR", "value")
	envOverride(&s, "RB_TEST_STR")
	if s != "value" {
		t.Fatalf("envOverride failed, got %q", s)
	}

	e := "keep"
	t.Setenv("RB_TEST_EMPTY", "")
	envOverrideAllowEmpty(&e, "RB_TEST_EMPTY")
	if e != "" {
		t.Fatalf("envOverrideAllowEmpty should clear the field, got %q", e)
	}

	i := 1
	t.Setenv("RB_TEST_INT", "42")
	envOverrideInt(&i, "RB_TEST_INT")
	if i != 42 {
		t.Fatalf("envOverrideInt failed, got %d", i)
	}

	f := 0.1
	t.Setenv("RB_TEST_FLOAT", "0.75")
	envOverrideFloat(&f, "RB_TEST_FLOAT")
	if f != 0.75 {
		t.Fatalf("envOverrideFloat failed, got %f", f)
	}

	list := []string{"old"}
	t.Setenv("RB_TEST_LIST", " a, ,b ")
	envOverrideList(&list, "RB_TEST_LIST")
	if len(list) != 2 || list[0] != "a" || list[1] != "b" {
		t.Fatalf("envOverrideList failed, got %v", list)
	}
}

func runFatalSubprocess(t *testing.T, testName, marker string) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run="+testName)
	cmd.Env = append(os.Environ(), marker+"=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with failure")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
}

func setMinimalFatalEnv() {
	_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
	_ = os.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	_ = os.Setenv("SLACK_APP_TOKEN", "xapp-test")
	_ = os.Setenv("TIMEZONE", "UTC")
}

func TestLoadConfigInvalidTimezoneFatal(t *testing.T) {
	if os.Getenv("TEST_INVALID_TZ_FATAL") == "1" {
		setMinimalFatalEnv()
		_ = os.Setenv("TIMEZONE", "Mars/Colony")
		LoadConfig()
		return
	}
	runFatalSubprocess(t, "TestLoadConfigInvalidTimezoneFatal", "TEST_INVALID_TZ_FATAL")
}

func TestLoadConfigInvalidThresholdsFatal(t *testing.T) {
	if os.Getenv("TEST_INVALID_THRESHOLDS_FATAL") == "1" {
		setMinimalFatalEnv()
		_ = os.Setenv("CLARIFY_THRESHOLD", "0.95")
		LoadConfig()
		return
	}
	runFatalSubprocess(t, "TestLoadConfigInvalidThresholdsFatal", "TEST_INVALID_THRESHOLDS_FATAL")
}

func TestLoadConfigInvalidSweepScheduleFatal(t *testing.T) {
	if os.Getenv("TEST_INVALID_SWEEP_FATAL") == "1" {
		setMinimalFatalEnv()
		_ = os.Setenv("FOLLOWUP_SWEEP_SCHEDULE", "every hour")
		LoadConfig()
		return
	}
	runFatalSubprocess(t, "TestLoadConfigInvalidSweepScheduleFatal", "TEST_INVALID_SWEEP_FATAL")
}

func TestLoadConfigMissingSlackTokenFatal(t *testing.T) {
	if os.Getenv("TEST_MISSING_TOKEN_FATAL") == "1" {
		setMinimalFatalEnv()
		_ = os.Unsetenv("SLACK_BOT_TOKEN")
		LoadConfig()
		return
	}
	runFatalSubprocess(t, "TestLoadConfigMissingSlackTokenFatal", "TEST_MISSING_TOKEN_FATAL")
}
