// Package history implements the append-only transaction history store
// referenced throughout spec.md §4.4 (history.end(DONE)/history.end(FAILED),
// pre/post rpmdb version hashes, per-package action classification).
//
// Grounded directly on claircore's rpm/sqlite.RPMDB: open a single on-disk
// SQLite file via database/sql and modernc.org/sqlite, with a
// runtime.SetFinalizer guarding against a forgotten Close, and iter.Seq2
// result streaming for large reads. Per-query timing/counting follows
// claircore's datastore/postgres/store_metrics.go prometheus/promauto
// pattern.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"net/url"
	"runtime"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "modernc.org/sqlite" // register the sqlite driver

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn"
)

// dialect builds every query List issues, following claircore's
// datastore/postgres/querybuilder.go use of a registered goqu dialect.
var dialect = goqu.Dialect("sqlite3")

var (
	queryLabels = []string{"query", "success"}
	queryTimer  = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dnfcore",
		Subsystem: "history",
		Name:      "query_duration_seconds",
		Help:      "Transaction-history store query duration for the named operation.",
	}, queryLabels)
	queryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dnfcore",
		Subsystem: "history",
		Name:      "query_total",
		Help:      "Transaction-history store query count for the named operation.",
	}, queryLabels)
)

// observe times and counts one named store operation, recording success
// based on whether *errp is nil when the returned func runs.
func observe(name string, errp *error) func() {
	start := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		queryTimer.WithLabelValues(name, successLabel(*errp)).Observe(v)
	}))
	return func() {
		start.ObserveDuration()
		queryCounter.WithLabelValues(name, successLabel(*errp)).Inc()
	}
}

func successLabel(err error) string {
	if err != nil {
		return "false"
	}
	return "true"
}

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	pre_version_hash TEXT NOT NULL,
	post_version_hash TEXT,
	status TEXT NOT NULL,
	comment TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS transaction_items (
	transaction_id TEXT NOT NULL REFERENCES transactions(id),
	nevra TEXT NOT NULL,
	action TEXT NOT NULL,
	replaces TEXT NOT NULL DEFAULT '',
	repo TEXT NOT NULL DEFAULT ''
);
`

// Status is a transaction's terminal or in-flight state.
type Status string

// Defined statuses.
const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Action classifies one item within a recorded transaction, per spec.md
// §4.4's action-classification rules.
type Action string

// Defined actions.
const (
	ActionInstall    Action = "install"
	ActionUpgraded   Action = "upgraded"
	ActionDowngraded Action = "downgraded"
	ActionObsoleted  Action = "obsoleted"
	ActionErase      Action = "erase"
	ActionReinstall  Action = "reinstall"
)

// Item is one package's role within a recorded transaction.
type Item struct {
	NEVRA    string
	Action   Action
	Replaces string // nevra this item upgraded/downgraded/obsoleted, if any
	Repo     string
}

// Record is one completed or in-flight transaction as read back from the
// store.
type Record struct {
	ID              string
	StartedAt       int64
	EndedAt         int64
	PreVersionHash  rpmtxn.VersionHash
	PostVersionHash rpmtxn.VersionHash
	Status          Status
	Comment         string
	Items           []Item
}

// Store is a handle to a SQLite-backed transaction history database.
//
// The returned Store must have its Close method called, or the process
// may panic, matching claircore's rpm/sqlite.RPMDB guard.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the named SQLite history database.
func Open(path string) (*Store, error) {
	u := url.URL{Scheme: "file", Opaque: path, RawQuery: url.Values{"_pragma": {"journal_mode(WAL)", "foreign_keys(1)"}}.Encode()}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, &dnfcore.Error{Op: "history.Open", Kind: dnfcore.ErrFileInvalid, Inner: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &dnfcore.Error{Op: "history.Open", Kind: dnfcore.ErrFileInvalid, Inner: err}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, &dnfcore.Error{Op: "history.Open", Kind: dnfcore.ErrFileInvalid, Inner: err}
	}
	s := &Store{db: db}
	_, file, line, _ := runtime.Caller(1)
	runtime.SetFinalizer(s, func(s *Store) {
		panic(fmt.Sprintf("%s:%d: history.Store not closed", file, line))
	})
	return s, nil
}

// Close releases the store's resources.
//
// This must be called when the Store is no longer needed, or the process
// may panic.
func (s *Store) Close() error {
	runtime.SetFinalizer(s, nil)
	return s.db.Close()
}

// Begin records the start of a new transaction, keyed by a fresh UUID, with
// the given pre-transaction rpmdb version hash.
func (s *Store) Begin(ctx context.Context, pre rpmtxn.VersionHash, startedAt int64) (id string, err error) {
	defer observe("begin", &err)()
	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, started_at, pre_version_hash, status) VALUES (?, ?, ?, ?)`,
		id, startedAt, string(pre), string(StatusRunning))
	if err != nil {
		return "", &dnfcore.Error{Op: "history.Store.Begin", Kind: dnfcore.ErrInternal, Inner: err}
	}
	return id, nil
}

// AddItem appends one classified package action to an in-flight
// transaction.
func (s *Store) AddItem(ctx context.Context, txnID string, it Item) (err error) {
	defer observe("add_item", &err)()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transaction_items (transaction_id, nevra, action, replaces, repo) VALUES (?, ?, ?, ?, ?)`,
		txnID, it.NEVRA, string(it.Action), it.Replaces, it.Repo)
	if err != nil {
		return &dnfcore.Error{Op: "history.Store.AddItem", Kind: dnfcore.ErrInternal, Inner: err}
	}
	return nil
}

// End records a transaction's terminal status and post-transaction version
// hash (empty for a failed transaction that never reached the RPM
// callback loop).
func (s *Store) End(ctx context.Context, txnID string, status Status, post rpmtxn.VersionHash, endedAt int64, comment string) (err error) {
	defer observe("end", &err)()
	_, err = s.db.ExecContext(ctx,
		`UPDATE transactions SET ended_at = ?, post_version_hash = ?, status = ?, comment = ? WHERE id = ?`,
		endedAt, string(post), string(status), comment, txnID)
	if err != nil {
		return &dnfcore.Error{Op: "history.Store.End", Kind: dnfcore.ErrInternal, Inner: err}
	}
	return nil
}

// ListFilter narrows [Store.List] to a subset of recorded transactions. The
// zero ListFilter matches everything.
type ListFilter struct {
	// Status, if non-empty, restricts the result to transactions in this
	// terminal or in-flight state.
	Status Status
	// Since, if non-zero, restricts the result to transactions started at
	// or after this Unix timestamp.
	Since int64
}

// List streams recorded transactions matching filter, most recent first,
// with each transaction's items attached.
func (s *Store) List(ctx context.Context, filter ListFilter) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var err error
		defer observe("list", &err)()

		sel := dialect.From("transactions").Select(
			"id", "started_at", goqu.L("IFNULL(ended_at, 0)"), "pre_version_hash",
			goqu.L("IFNULL(post_version_hash, '')"), "status", "comment",
		).Order(goqu.I("started_at").Desc())
		if filter.Status != "" {
			sel = sel.Where(goqu.Ex{"status": string(filter.Status)})
		}
		if filter.Since != 0 {
			sel = sel.Where(goqu.C("started_at").Gte(filter.Since))
		}
		query, args, qerr := sel.Prepared(true).ToSQL()
		if qerr != nil {
			err = &dnfcore.Error{Op: "history.Store.List", Kind: dnfcore.ErrInternal, Inner: qerr}
			yield(Record{}, err)
			return
		}

		var rows *sql.Rows
		rows, err = s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Record{}, &dnfcore.Error{Op: "history.Store.List", Kind: dnfcore.ErrInternal, Inner: err})
			return
		}
		defer rows.Close()
		for rows.Next() {
			var r Record
			var pre, post, status string
			if err := rows.Scan(&r.ID, &r.StartedAt, &r.EndedAt, &pre, &post, &status, &r.Comment); err != nil {
				yield(Record{}, &dnfcore.Error{Op: "history.Store.List", Kind: dnfcore.ErrInternal, Inner: err})
				return
			}
			r.PreVersionHash, r.PostVersionHash, r.Status = rpmtxn.VersionHash(pre), rpmtxn.VersionHash(post), Status(status)
			items, err := s.items(ctx, r.ID)
			if err != nil {
				yield(Record{}, err)
				return
			}
			r.Items = items
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, &dnfcore.Error{Op: "history.Store.List", Kind: dnfcore.ErrInternal, Inner: err})
		}
	}
}

func (s *Store) items(ctx context.Context, txnID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT nevra, action, replaces, repo FROM transaction_items WHERE transaction_id = ?`, txnID)
	if err != nil {
		return nil, &dnfcore.Error{Op: "history.Store.items", Kind: dnfcore.ErrInternal, Inner: err}
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		var action string
		if err := rows.Scan(&it.NEVRA, &action, &it.Replaces, &it.Repo); err != nil {
			return nil, &dnfcore.Error{Op: "history.Store.items", Kind: dnfcore.ErrInternal, Inner: err}
		}
		it.Action = Action(action)
		out = append(out, it)
	}
	return out, rows.Err()
}
