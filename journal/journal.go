// Package journal records link, circuit and window events into SQLite.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/example/tile_itc/hooks"
	_ "github.com/mattn/go-sqlite3"
)

// PluginName is the registry name of the journal plugin.
const PluginName = "journal"

// DefaultBatch is the number of rows written per transaction.
const DefaultBatch = 512

const schema = `
CREATE TABLE IF NOT EXISTS link_events (
	tick  INTEGER NOT NULL,
	tile  INTEGER NOT NULL,
	dir   TEXT    NOT NULL,
	kind  TEXT    NOT NULL,
	state TEXT    NOT NULL,
	next  TEXT,
	cause TEXT
);
CREATE TABLE IF NOT EXISTS circuit_events (
	tick    INTEGER NOT NULL,
	tile    INTEGER NOT NULL,
	dir     TEXT    NOT NULL,
	number  INTEGER NOT NULL,
	passive INTEGER NOT NULL,
	sent    INTEGER NOT NULL,
	op      TEXT    NOT NULL,
	state   TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS window_events (
	tick     INTEGER NOT NULL,
	tile     INTEGER NOT NULL,
	slot     INTEGER NOT NULL,
	x        INTEGER NOT NULL,
	y        INTEGER NOT NULL,
	radius   INTEGER NOT NULL,
	circuits INTEGER NOT NULL,
	outcome  TEXT    NOT NULL,
	reason   TEXT
);
CREATE INDEX IF NOT EXISTS link_events_tile ON link_events (tile, dir, tick);
`

var pragmas = []string{
	"PRAGMA synchronous = OFF",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA busy_timeout = 5000",
}

var ErrClosed = errors.New("journal closed")

// Journal batches hook events into a SQLite database.
type Journal struct {
	mu      sync.Mutex
	db      *sql.DB
	tx      *sql.Tx
	link    *sql.Stmt
	circuit *sql.Stmt
	window  *sql.Stmt
	batch   int
	pending int
	rows    int64
	err     error
}

// Open creates or appends to the journal at path. ":memory:" is accepted.
func Open(path string, batch int) (*Journal, error) {
	if batch <= 0 {
		batch = DefaultBatch
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared across statements
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	j := &Journal{db: db, batch: batch}
	if err := j.begin(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) begin() error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	prepare := func(query string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = tx.Prepare(query)
		return stmt
	}
	j.link = prepare(`INSERT INTO link_events (tick, tile, dir, kind, state, next, cause) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	j.circuit = prepare(`INSERT INTO circuit_events (tick, tile, dir, number, passive, sent, op, state) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	j.window = prepare(`INSERT INTO window_events (tick, tile, slot, x, y, radius, circuits, outcome, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("journal prepare: %w", err)
	}
	j.tx = tx
	return nil
}

func (j *Journal) commitLocked() error {
	if j.tx == nil {
		return nil
	}
	tx := j.tx
	j.tx = nil
	j.pending = 0
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// insert runs one prepared insert and rolls the transaction every batch rows.
// The first failure is sticky and returned from every later call.
func (j *Journal) insert(stmt func() *sql.Stmt, args ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	if j.tx == nil {
		return ErrClosed
	}
	if _, err := stmt().Exec(args...); err != nil {
		j.err = fmt.Errorf("journal insert: %w", err)
		return j.err
	}
	j.rows++
	j.pending++
	if j.pending < j.batch {
		return nil
	}
	if err := j.commitLocked(); err != nil {
		j.err = err
		return err
	}
	if err := j.begin(); err != nil {
		j.err = err
		return err
	}
	return nil
}

// Rows returns how many rows have been written.
func (j *Journal) Rows() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rows
}

// Flush commits buffered rows so they are visible to queries.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	if j.tx == nil {
		return ErrClosed
	}
	if err := j.commitLocked(); err != nil {
		j.err = err
		return err
	}
	if err := j.begin(); err != nil {
		j.err = err
		return err
	}
	return nil
}

// Count returns the number of rows written to table so far.
func (j *Journal) Count(table string) (int, error) {
	switch table {
	case "link_events", "circuit_events", "window_events":
	default:
		return 0, fmt.Errorf("journal: unknown table %q", table)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.tx == nil {
		return 0, ErrClosed
	}
	var n int
	err := j.tx.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	return n, err
}

// Close commits outstanding rows and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.commitLocked()
	if cerr := j.db.Close(); err == nil {
		err = cerr
	}
	j.db = nil
	if err == nil {
		err = j.err
	}
	return err
}

func errText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

// Bundle returns hooks that write every event to the journal.
func (j *Journal) Bundle() hooks.HookBundle {
	return hooks.HookBundle{
		LinkState: []hooks.LinkStateHook{func(ctx *hooks.LinkStateContext) error {
			return j.insert(func() *sql.Stmt { return j.link },
				ctx.Tick, ctx.Tile, ctx.Dir.String(), "state", ctx.From.String(), ctx.To.String(), nil)
		}},
		LinkReset: []hooks.LinkResetHook{func(ctx *hooks.LinkResetContext) error {
			return j.insert(func() *sql.Stmt { return j.link },
				ctx.Tick, ctx.Tile, ctx.Dir.String(), "reset", ctx.State.String(), nil, errText(ctx.Cause))
		}},
		Circuit: []hooks.CircuitHook{func(ctx *hooks.CircuitContext) error {
			return j.insert(func() *sql.Stmt { return j.circuit },
				ctx.Tick, ctx.Tile, ctx.Dir.String(), ctx.Number, ctx.Passive, ctx.Sent, ctx.Op.String(), ctx.State.String())
		}},
		Window: []hooks.WindowHook{func(ctx *hooks.WindowContext) error {
			return j.insert(func() *sql.Stmt { return j.window },
				ctx.Tick, ctx.Tile, ctx.Slot, ctx.Center.X, ctx.Center.Y, ctx.Radius, ctx.Circuits, string(ctx.Outcome), errText(ctx.Reason))
		}},
	}
}

// Register adds the journal plugin, writing to path, to reg.
func Register(reg *hooks.Registry, path string) error {
	desc := hooks.PluginDescriptor{
		Name:        PluginName,
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "SQLite trace of link, circuit and window events",
	}
	return reg.Register(desc, func(broker *hooks.PluginBroker) (func() error, error) {
		if broker == nil {
			return nil, fmt.Errorf("plugin broker is nil")
		}
		if path == "" {
			return nil, fmt.Errorf("journal path is empty")
		}
		j, err := Open(path, DefaultBatch)
		if err != nil {
			return nil, err
		}
		broker.RegisterBundle(desc, j.Bundle())
		return j.Close, nil
	})
}
