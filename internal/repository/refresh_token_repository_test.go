package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/windcore/authsvc/internal/model"
	"github.com/windcore/authsvc/internal/pipeline"
)

type fakeResult struct {
	lastID uint64
	rows   int64
}

func (r fakeResult) LastInsertId() (int64, error) { return int64(r.lastID), nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

// fakeDB routes every ExecContext to a caller-supplied function so the
// statement functions can be tested without a database.
type fakeDB struct {
	exec func(query string, args ...any) (sql.Result, error)
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	return f.exec(query, args...)
}
func (f *fakeDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) { return nil, nil }
func (f *fakeDB) QueryRowContext(context.Context, string, ...any) *sql.Row        { return nil }

func testRepo() *RefreshTokenRepo {
	return NewRefreshTokenRepo(nil, pipeline.NewRunner(nil), nil, nil, 24*time.Hour)
}

func TestConsumeExecRequiresLiveRow(t *testing.T) {
	t.Parallel()

	r := testRepo()
	rec := &model.RefreshToken{ID: 5, UserID: 1}

	// First consumer wins: the guarded UPDATE touched one row.
	db := &fakeDB{exec: func(string, ...any) (sql.Result, error) { return fakeResult{rows: 1}, nil }}
	if err := r.consumeExec(rec)(context.Background(), db, pipeline.OpUpdate); err != nil {
		t.Fatalf("winning consume: %v", err)
	}

	// A concurrent duplicate sees zero affected rows and must lose.
	db.exec = func(string, ...any) (sql.Result, error) { return fakeResult{rows: 0}, nil }
	err := r.consumeExec(rec)(context.Background(), db, pipeline.OpUpdate)
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("losing consume: got %v, want ErrInvalidOperation", err)
	}
}

func TestInvalidateExecIsIdempotent(t *testing.T) {
	t.Parallel()

	r := testRepo()
	rec := &model.RefreshToken{ID: 5, UserID: 1}

	// Zero affected rows means the token is already gone, which is fine.
	db := &fakeDB{exec: func(string, ...any) (sql.Result, error) { return fakeResult{rows: 0}, nil }}
	if err := r.invalidateExec(rec)(context.Background(), db, pipeline.OpUpdate); err != nil {
		t.Fatalf("invalidate of already-deleted row must not error: %v", err)
	}
}

func TestInsertExecPopulatesID(t *testing.T) {
	t.Parallel()

	r := testRepo()
	rec := &model.RefreshToken{UserID: 1, TokenHash: "h"}
	db := &fakeDB{exec: func(string, ...any) (sql.Result, error) { return fakeResult{lastID: 321, rows: 1}, nil }}

	if err := r.insertExec(rec)(context.Background(), db, pipeline.OpInsert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rec.ID != 321 {
		t.Fatalf("generated ID not captured: got %d", rec.ID)
	}
}

func TestHashTokenValue(t *testing.T) {
	t.Parallel()

	h1 := hashTokenValue("some-raw-value")
	h2 := hashTokenValue("some-raw-value")
	if h1 != h2 {
		t.Fatalf("hash must be deterministic")
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
	if h1 == hashTokenValue("another-value") {
		t.Fatalf("distinct values must not collide")
	}
}

func TestRandomHex(t *testing.T) {
	t.Parallel()

	a, err := randomHex(48)
	if err != nil {
		t.Fatalf("randomHex: %v", err)
	}
	b, err := randomHex(48)
	if err != nil {
		t.Fatalf("randomHex: %v", err)
	}
	if len(a) != 96 || len(b) != 96 {
		t.Fatalf("expected 96 hex chars, got %d and %d", len(a), len(b))
	}
	if a == b {
		t.Fatalf("two random values must differ")
	}
}
