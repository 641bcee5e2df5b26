package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/windcore/authsvc/internal/pipeline"
	"github.com/windcore/authsvc/internal/token"
)

var tokenColumns = []string{
	"id", "user_id", "token_hash", "expires_at", "is_deleted",
	"created_at", "created_by", "updated_at", "updated_by",
}

// rotationRepo builds a repo over a mocked driver with a pinned clock, so
// the rotation transaction can be driven end to end without MySQL.
func rotationRepo(t *testing.T, now time.Time) (*RefreshTokenRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pipe := pipeline.NewRunner(db).WithClock(func() time.Time { return now })
	tokens := token.NewService("rotation-test-secret", 15*time.Minute, token.NewMemoryRegistry())
	return NewRefreshTokenRepo(db, pipe, tokens, nil, 24*time.Hour), mock
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := rotationRepo(t, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, token_hash").
		WithArgs(hashTokenValue("stale-value")).
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow(7, 10, hashTokenValue("stale-value"), now.Add(-time.Minute), false,
				now.Add(-25*time.Hour), 10, now.Add(-25*time.Hour), 10))
	mock.ExpectRollback()

	pair, reused, err := r.Refresh(context.Background(), "stale-value")
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expired token: got %v, want ErrInvalidOperation", err)
	}
	if pair != nil || reused {
		t.Fatalf("expired token must yield no pair and no reuse report: pair=%v reused=%v", pair, reused)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshReportsConsumedValue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := rotationRepo(t, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, token_hash").
		WithArgs(hashTokenValue("rotated-away")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM refresh_tokens").
		WithArgs(hashTokenValue("rotated-away")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	pair, reused, err := r.Refresh(context.Background(), "rotated-away")
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("consumed token: got %v, want ErrInvalidOperation", err)
	}
	if pair != nil {
		t.Fatalf("consumed token must yield no pair: %v", pair)
	}
	if !reused {
		t.Fatal("presenting a consumed value must be reported as reuse")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshRotatesLiveToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := rotationRepo(t, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, token_hash").
		WithArgs(hashTokenValue("live-value")).
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow(7, 10, hashTokenValue("live-value"), now.Add(time.Hour), false,
				now.Add(-time.Hour), 10, now.Add(-time.Hour), 10))
	mock.ExpectExec("UPDATE refresh_tokens SET is_deleted=1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectCommit()

	pair, reused, err := r.Refresh(context.Background(), "live-value")
	if err != nil {
		t.Fatalf("rotation: %v", err)
	}
	if reused {
		t.Fatal("a first presentation must not be reported as reuse")
	}
	if pair.Refresh.ID != 8 || pair.Refresh.UserID != 10 {
		t.Fatalf("successor row not captured: %+v", pair.Refresh)
	}
	if !pair.Refresh.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("successor expiry: got %v", pair.Refresh.ExpiresAt)
	}
	if len(pair.RefreshValue) != 96 || pair.Access.Value == "" {
		t.Fatalf("incomplete pair: value=%q access=%q", pair.RefreshValue, pair.Access.Value)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshLosesConcurrentConsume(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := rotationRepo(t, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, token_hash").
		WithArgs(hashTokenValue("contended")).
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow(7, 10, hashTokenValue("contended"), now.Add(time.Hour), false,
				now.Add(-time.Hour), 10, now.Add(-time.Hour), 10))
	// The other rotation already flipped the flag: zero rows match the guard.
	mock.ExpectExec("UPDATE refresh_tokens SET is_deleted=1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	pair, _, err := r.Refresh(context.Background(), "contended")
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("losing rotation: got %v, want ErrInvalidOperation", err)
	}
	if pair != nil {
		t.Fatalf("losing rotation must yield no pair: %v", pair)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
