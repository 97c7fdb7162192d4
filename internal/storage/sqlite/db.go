package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"resolvebot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the query helpers work
// inside and outside a ticket transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		requester_id   TEXT NOT NULL DEFAULT '',
		requester_name TEXT NOT NULL DEFAULT '',
		category       TEXT NOT NULL DEFAULT 'other',
		description    TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'open',
		assigned_team  TEXT NOT NULL DEFAULT '',
		confidence     REAL NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL,
		updated_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	CREATE INDEX IF NOT EXISTS idx_tickets_requester ON tickets(requester_id);

	CREATE TABLE IF NOT EXISTS action_history (
		id               TEXT PRIMARY KEY,
		ticket_id        INTEGER NOT NULL,
		action_type      TEXT NOT NULL,
		action_params    TEXT NOT NULL DEFAULT '{}',
		confidence       REAL NOT NULL DEFAULT 0,
		reasoning        TEXT NOT NULL DEFAULT '',
		executed_by      TEXT NOT NULL DEFAULT 'autonomous_agent',
		executed_at      DATETIME NOT NULL,
		before_state     TEXT NOT NULL DEFAULT '{}',
		after_state      TEXT NOT NULL DEFAULT '{}',
		rollback_possible INTEGER NOT NULL DEFAULT 0,
		rolled_back      INTEGER NOT NULL DEFAULT 0,
		rolled_back_at   DATETIME,
		rolled_back_by   TEXT NOT NULL DEFAULT '',
		rollback_reason  TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_ah_ticket_action ON action_history(ticket_id, action_type);
	CREATE INDEX IF NOT EXISTS idx_ah_executed_at ON action_history(executed_at);
	CREATE INDEX IF NOT EXISTS idx_ah_rolled_back ON action_history(rolled_back);

	CREATE TABLE IF NOT EXISTS ticket_interactions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id  INTEGER NOT NULL,
		actor      TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ti_ticket ON ticket_interactions(ticket_id);

	CREATE TABLE IF NOT EXISTS ticket_resolution (
		ticket_id            INTEGER PRIMARY KEY,
		autonomous_action    TEXT NOT NULL,
		action_entry_id      TEXT NOT NULL DEFAULT '',
		followup_state       TEXT NOT NULL DEFAULT 'armed',
		confirmation         TEXT NOT NULL DEFAULT 'unknown',
		satisfaction_score   INTEGER NOT NULL DEFAULT 0,
		feedback_text        TEXT NOT NULL DEFAULT '',
		followup_due_at      DATETIME,
		followup_sent_at     DATETIME,
		response_received_at DATETIME,
		reopened             INTEGER NOT NULL DEFAULT 0,
		reopened_at          DATETIME,
		reopened_reason      TEXT NOT NULL DEFAULT '',
		created_at           DATETIME NOT NULL,
		updated_at           DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tr_action_confirm ON ticket_resolution(autonomous_action, confirmation);
	CREATE INDEX IF NOT EXISTS idx_tr_state ON ticket_resolution(followup_state);
	`
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Migration: add action_entry_id column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('ticket_resolution') WHERE name = 'action_entry_id'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE ticket_resolution ADD COLUMN action_entry_id TEXT NOT NULL DEFAULT ''`)
	}

	return db, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_txlock=immediate"
}

// Store serializes work per ticket: one goroutine at a time may hold a
// ticket's transaction, and the transaction itself makes the state change
// and its history row commit together.
type Store struct {
	DB    *sql.DB
	locks *ticketLocks
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, locks: newTicketLocks()}
}

// WithTicket loads the ticket inside a transaction under the ticket's lock
// and runs fn. Any error from fn rolls the whole transaction back.
func (s *Store) WithTicket(ctx context.Context, ticketID int64, fn func(tx *sql.Tx, t *domain.Ticket) error) error {
	unlock := s.locks.lock(ticketID)
	defer unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("begin ticket tx", err)
	}
	defer tx.Rollback()

	ticket, err := GetTicket(ctx, tx, ticketID)
	if err != nil {
		return err
	}
	if err := fn(tx, &ticket); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageError("commit ticket tx", err)
	}
	return nil
}

type ticketLocks struct {
	mu    sync.Mutex
	locks map[int64]*ticketLock
}

type ticketLock struct {
	mu   sync.Mutex
	refs int
}

func newTicketLocks() *ticketLocks {
	return &ticketLocks{locks: make(map[int64]*ticketLock)}
}

func (l *ticketLocks) lock(id int64) func() {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &ticketLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func fromNullTime(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}

func toNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", domain.ErrNotFound, what, id)
}
