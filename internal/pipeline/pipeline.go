// Package pipeline implements the persistence write pipeline. Every
// mutation in this service is expressed as a Change and saved through a
// Runner, which applies two interceptors before anything reaches the
// database: audit stamping for Auditable entities and the rewrite of
// physical deletes into flag updates for SoftDeletable entities. Both run
// synchronously inside the same transaction as the statements they guard.
package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/windcore/authsvc/internal/model"
)

// SystemActor is the acting-user sentinel recorded for writes performed
// outside an authenticated request (login creating the first token,
// background sweeps).
const SystemActor uint64 = 0

// Op identifies the kind of mutation a Change requests. The soft-delete
// interceptor may downgrade OpDelete to OpUpdate before execution.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

// DBTX is the statement execution surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Change is one pending mutation: the entity being written and the
// statement that writes it. Exec receives the final op so a repository
// provides a single statement function covering insert, update and the
// soft-deleted form of delete.
type Change struct {
	Op     Op
	Entity any
	Exec   func(ctx context.Context, db DBTX, op Op) error
}

// Intercept applies the soft-delete interceptor: a delete of a
// SoftDeletable entity has its flag set and becomes an update, so it also
// passes through audit stamping like any other modification. Deletes of
// entities without the capability stay physical.
func Intercept(changes []Change) []Change {
	out := make([]Change, len(changes))
	copy(out, changes)
	for i := range out {
		if out[i].Op != OpDelete {
			continue
		}
		sd, ok := out[i].Entity.(model.SoftDeletable)
		if !ok {
			continue
		}
		*sd.DeletionFlag() = true
		out[i].Op = OpUpdate
	}
	return out
}

// Stamp applies the audit interceptor: inserts get all four audit fields,
// updates only the modified pair. Created fields are never touched after
// insert.
func Stamp(changes []Change, actorID uint64, now time.Time) {
	for _, c := range changes {
		a, ok := c.Entity.(model.Auditable)
		if !ok {
			continue
		}
		meta := a.AuditMeta()
		switch c.Op {
		case OpInsert:
			meta.CreatedAt = now
			meta.CreatedBy = actorID
			meta.UpdatedAt = now
			meta.UpdatedBy = actorID
		case OpUpdate:
			meta.UpdatedAt = now
			meta.UpdatedBy = actorID
		}
	}
}

// Runner executes changes against the database, one transaction per Save.
type Runner struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunner returns a Runner bound to the given database. The clock is
// overridable for tests via WithClock.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the runner's clock and returns the runner.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Save intercepts, stamps and executes the changes in a single
// transaction on behalf of actorID. Any statement error rolls the whole
// set back.
func (r *Runner) Save(ctx context.Context, actorID uint64, changes ...Change) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.SaveTx(ctx, tx, actorID, changes...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveTx runs the pipeline against an existing transaction. Callers that
// need reads and writes in one isolation scope (token rotation) open the
// transaction themselves and remain responsible for commit/rollback.
func (r *Runner) SaveTx(ctx context.Context, db DBTX, actorID uint64, changes ...Change) error {
	final := Intercept(changes)
	Stamp(final, actorID, r.now())
	for _, c := range final {
		if err := c.Exec(ctx, db, c.Op); err != nil {
			return err
		}
	}
	return nil
}

// Now reports the runner's current clock reading. Repositories use it so
// expiry checks and audit stamps agree on the same instant.
func (r *Runner) Now() time.Time { return r.now() }
