package slackbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"resolvebot/internal/agent"
	"resolvebot/internal/config"
	"resolvebot/internal/decision"
	"resolvebot/internal/domain"
	"resolvebot/internal/followup"
	llm "resolvebot/internal/integrations/llm"
	"resolvebot/internal/rollback"
	"resolvebot/internal/storage/sqlite"

	"github.com/slack-go/slack"
)

type postedMessage struct {
	Method  string
	Channel string
	User    string
	Text    string
	Blocks  string
}

// fakeSlack records every message the bot posts.
type fakeSlack struct {
	mu       sync.Mutex
	messages []postedMessage
	failPost bool
}

func (f *fakeSlack) record(m postedMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
}

func (f *fakeSlack) byMethod(method string) []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []postedMessage
	for _, m := range f.messages {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSlack) lastEphemeral(t *testing.T) string {
	t.Helper()
	msgs := f.byMethod("chat.postEphemeral")
	if len(msgs) == 0 {
		t.Fatal("expected an ephemeral message")
	}
	return msgs[len(msgs)-1].Text
}

func newFakeSlackAPI(t *testing.T) (*slack.Client, *fakeSlack) {
	t.Helper()
	fake := &fakeSlack{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = r.ParseForm()
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		switch method {
		case "users.info":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"user": map[string]any{
					"id":        r.Form.Get("user"),
					"real_name": "Real Name",
					"profile":   map[string]any{"display_name": "dana"},
				},
			})
		case "conversations.open":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":      true,
				"channel": map[string]any{"id": "D_" + r.Form.Get("users")},
			})
		case "chat.postMessage", "chat.postEphemeral":
			fake.record(postedMessage{
				Method:  method,
				Channel: r.Form.Get("channel"),
				User:    r.Form.Get("user"),
				Text:    r.Form.Get("text"),
				Blocks:  r.Form.Get("blocks"),
			})
			fake.mu.Lock()
			fail := fake.failPost
			fake.mu.Unlock()
			if fail && method == "chat.postMessage" {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.Form.Get("channel"), "ts": "1.23", "message_ts": "1.23"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)
	return slack.New("xoxb-test", slack.OptionAPIURL(server.URL+"/api/")), fake
}

type stubAnalyzer struct {
	mu       sync.Mutex
	analysis decision.Analysis
	err      error
	seen     []string
}

func (s *stubAnalyzer) Analyze(_ context.Context, t domain.Ticket) (decision.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, t.Description)
	if s.err != nil {
		return decision.Analysis{}, s.err
	}
	a := s.analysis
	if a.Category == "" {
		a.Category = t.Category
	}
	return a, nil
}

type testBot struct {
	*Bot
	fake  *fakeSlack
	store *sqlite.Store
	sched *followup.TimerScheduler
}

const (
	testAdminID     = "UADMIN"
	testRequesterID = "UREQ"
	testEscalation  = "CESC"
)

func newTestBot(t *testing.T, analyzer *stubAnalyzer) *testBot {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	api, fake := newFakeSlackAPI(t)
	store := sqlite.NewStore(db)
	notifier := NewNotifier(api, testEscalation)
	sched := followup.NewTimerScheduler()
	t.Cleanup(sched.Stop)
	followups := followup.NewManager(store, sched, notifier, followup.Options{})
	exec := agent.NewExecutor(store, decision.DefaultPolicy(), followups, notifier, nil)
	rollbacks := rollback.NewManager(store, followups, nil)

	cfg := config.Config{AdminSlackIDs: []string{testAdminID}}
	var a llm.Analyzer
	if analyzer != nil {
		a = analyzer
	}
	b := NewBot(cfg, api, store, exec, a, followups, rollbacks)
	return &testBot{Bot: b, fake: fake, store: store, sched: sched}
}

func slashCommand(command, userID, text string) slack.SlashCommand {
	return slack.SlashCommand{
		Command:   command,
		UserID:    userID,
		UserName:  "handle",
		ChannelID: "CCMD",
		Text:      text,
	}
}
