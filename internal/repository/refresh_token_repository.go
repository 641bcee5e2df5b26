package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/windcore/authsvc/internal/model"
	"github.com/windcore/authsvc/internal/pipeline"
	"github.com/windcore/authsvc/internal/token"
)

// TokenPair is the result of login or rotation: a fresh access token and
// the refresh token that succeeds the presented one. RefreshValue carries
// the opaque value handed to the client; only its hash is persisted.
type TokenPair struct {
	Access       token.AccessToken
	Refresh      *model.RefreshToken
	RefreshValue string
}

// RefreshTokenRepo persists refresh tokens and implements the
// generate / rotate / invalidate protocol. All writes go through the
// pipeline, so rows carry audit metadata and are only ever soft-deleted.
type RefreshTokenRepo struct {
	db     *sql.DB
	pipe   *pipeline.Runner
	tokens *token.Service
	users  *UserRepo
	ttl    time.Duration
}

// NewRefreshTokenRepo returns a repo issuing refresh tokens valid for ttl.
func NewRefreshTokenRepo(db *sql.DB, pipe *pipeline.Runner, tokens *token.Service, users *UserRepo, ttl time.Duration) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db, pipe: pipe, tokens: tokens, users: users, ttl: ttl}
}

// Generate creates a refresh token bound to the subject of the given
// access token and persists it through the pipeline. It returns the
// record and the raw opaque value. ErrInvalidSubject is returned when the
// access token does not resolve to a live user.
func (r *RefreshTokenRepo) Generate(ctx context.Context, rawAccess string) (*model.RefreshToken, string, error) {
	subjectID, _, err := r.tokens.Validate(ctx, rawAccess)
	if err != nil {
		return nil, "", ErrInvalidSubject
	}
	if _, err := r.users.GetByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrInvalidSubject
		}
		return nil, "", err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	rec, raw, err := r.generateTx(ctx, tx, subjectID)
	if err != nil {
		_ = tx.Rollback()
		return nil, "", err
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return rec, raw, nil
}

// generateTx inserts a fresh refresh-token row inside the caller's
// transaction on behalf of the owning user.
func (r *RefreshTokenRepo) generateTx(ctx context.Context, db pipeline.DBTX, userID uint64) (*model.RefreshToken, string, error) {
	raw, err := randomHex(48)
	if err != nil {
		return nil, "", err
	}
	rec := &model.RefreshToken{
		UserID:    userID,
		TokenHash: hashTokenValue(raw),
		ExpiresAt: r.pipe.Now().Add(r.ttl),
	}
	err = r.pipe.SaveTx(ctx, db, userID, pipeline.Change{
		Op:     pipeline.OpInsert,
		Entity: rec,
		Exec:   r.insertExec(rec),
	})
	if err != nil {
		return nil, "", err
	}
	return rec, raw, nil
}

// Refresh is the rotate-on-use protocol. Inside one transaction it looks
// up the live row for the presented value, consumes it with a conditional
// update guarded on the soft-delete flag (so concurrent duplicates cannot
// both win), and issues the successor pair. Unknown, expired and already
// consumed tokens all fail with ErrInvalidOperation; reused reports
// whether the value matched a consumed row, which callers may surface to
// operators without changing the client-visible outcome.
func (r *RefreshTokenRepo) Refresh(ctx context.Context, rawValue string) (pair *TokenPair, reused bool, err error) {
	hash := hashTokenValue(rawValue)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rec, err := r.getLiveByHashTx(ctx, tx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.wasConsumed(ctx, hash), ErrInvalidOperation
		}
		return nil, false, err
	}
	if rec.Expired(r.pipe.Now()) {
		return nil, false, ErrInvalidOperation
	}

	// Consume the presented token. The CAS inside consumeExec is what
	// guarantees at most one concurrent rotation wins.
	err = r.pipe.SaveTx(ctx, tx, rec.UserID, pipeline.Change{
		Op:     pipeline.OpDelete,
		Entity: rec,
		Exec:   r.consumeExec(rec),
	})
	if err != nil {
		return nil, false, err
	}

	access, err := r.tokens.Issue(rec.UserID)
	if err != nil {
		return nil, false, err
	}
	next, nextRaw, err := r.generateTx(ctx, tx, rec.UserID)
	if err != nil {
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	return &TokenPair{Access: access, Refresh: next, RefreshValue: nextRaw}, false, nil
}

// Invalidate soft-deletes the token matching the given value on behalf of
// actorID. Unknown or already deleted values are a no-op, never an error.
func (r *RefreshTokenRepo) Invalidate(ctx context.Context, rawValue string, actorID uint64) error {
	rec, err := r.getLiveByHashTx(ctx, r.db, hashTokenValue(rawValue))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	return r.pipe.Save(ctx, actorID, pipeline.Change{
		Op:     pipeline.OpDelete,
		Entity: rec,
		Exec:   r.invalidateExec(rec),
	})
}

// InvalidateAllForUser soft-deletes every live token owned by userID in a
// single transaction. Used on logout to terminate the whole session.
func (r *RefreshTokenRepo) InvalidateAllForUser(ctx context.Context, userID, actorID uint64) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, is_deleted, created_at, created_by, updated_at, updated_by
		 FROM refresh_tokens WHERE user_id=? AND is_deleted=0`, userID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var changes []pipeline.Change
	for rows.Next() {
		rec := &model.RefreshToken{}
		if err := scanRefreshToken(rows, rec); err != nil {
			return err
		}
		changes = append(changes, pipeline.Change{
			Op:     pipeline.OpDelete,
			Entity: rec,
			Exec:   r.invalidateExec(rec),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	return r.pipe.Save(ctx, actorID, changes...)
}

// Sweep soft-deletes expired live tokens through the pipeline and then
// hard-deletes soft-deleted rows older than the retention window. The
// hard delete is the retention purge the soft-delete contract explicitly
// allows; it is the only physical removal in the service.
func (r *RefreshTokenRepo) Sweep(ctx context.Context, retention time.Duration) (purged int64, err error) {
	now := r.pipe.Now()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, is_deleted, created_at, created_by, updated_at, updated_by
		 FROM refresh_tokens WHERE is_deleted=0 AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	var changes []pipeline.Change
	for rows.Next() {
		rec := &model.RefreshToken{}
		if err := scanRefreshToken(rows, rec); err != nil {
			rows.Close()
			return 0, err
		}
		changes = append(changes, pipeline.Change{
			Op:     pipeline.OpDelete,
			Entity: rec,
			Exec:   r.invalidateExec(rec),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()
	if len(changes) > 0 {
		if err := r.pipe.Save(ctx, pipeline.SystemActor, changes...); err != nil {
			return 0, err
		}
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE is_deleted=1 AND updated_at < ?`, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *RefreshTokenRepo) getLiveByHashTx(ctx context.Context, db pipeline.DBTX, hash string) (*model.RefreshToken, error) {
	rec := &model.RefreshToken{}
	err := scanRefreshToken(db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, is_deleted, created_at, created_by, updated_at, updated_by
		 FROM refresh_tokens WHERE token_hash=? AND is_deleted=0 LIMIT 1`, hash), rec)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// wasConsumed reports whether the value matches a soft-deleted row, i.e.
// a token presented again after rotation or logout. Best-effort: lookup
// errors read as false.
func (r *RefreshTokenRepo) wasConsumed(ctx context.Context, hash string) bool {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM refresh_tokens WHERE token_hash=? AND is_deleted=1 LIMIT 1`, hash).Scan(&one)
	return err == nil
}

func (r *RefreshTokenRepo) insertExec(rec *model.RefreshToken) func(context.Context, pipeline.DBTX, pipeline.Op) error {
	return func(ctx context.Context, db pipeline.DBTX, _ pipeline.Op) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, is_deleted, created_at, created_by, updated_at, updated_by)
			 VALUES (?,?,?,?,?,?,?,?)`,
			rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.IsDeleted,
			rec.CreatedAt, rec.CreatedBy, rec.UpdatedAt, rec.UpdatedBy)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rec.ID = uint64(id)
		return nil
	}
}

// consumeExec marks the row deleted only if it is still live and requires
// exactly one affected row. A concurrent rotation that already consumed
// the row makes this fail with ErrInvalidOperation.
func (r *RefreshTokenRepo) consumeExec(rec *model.RefreshToken) func(context.Context, pipeline.DBTX, pipeline.Op) error {
	return func(ctx context.Context, db pipeline.DBTX, _ pipeline.Op) error {
		n, err := r.markDeleted(ctx, db, rec)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrInvalidOperation
		}
		return nil
	}
}

// invalidateExec is the idempotent variant: losing the guard means the
// row is already gone, which is the desired end state.
func (r *RefreshTokenRepo) invalidateExec(rec *model.RefreshToken) func(context.Context, pipeline.DBTX, pipeline.Op) error {
	return func(ctx context.Context, db pipeline.DBTX, _ pipeline.Op) error {
		_, err := r.markDeleted(ctx, db, rec)
		return err
	}
}

func (r *RefreshTokenRepo) markDeleted(ctx context.Context, db pipeline.DBTX, rec *model.RefreshToken) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_deleted=1, updated_at=?, updated_by=? WHERE id=? AND is_deleted=0`,
		rec.UpdatedAt, rec.UpdatedBy, rec.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefreshToken(row interface{ Scan(dest ...any) error }, rec *model.RefreshToken) error {
	return row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.IsDeleted,
		&rec.CreatedAt, &rec.CreatedBy, &rec.UpdatedAt, &rec.UpdatedBy)
}

// hashTokenValue returns the SHA-256 hex digest stored in place of the
// raw refresh value, so a leaked table cannot be replayed.
func hashTokenValue(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns n bytes of cryptographically secure randomness as a
// hex string. 48 bytes gives a 96-character opaque token value.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
