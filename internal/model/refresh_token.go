package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table. Each token
// belongs to a user and is single-use: rotation or logout soft-deletes the
// row instead of removing it, so a consumed token can never come back.
// The plain token value is not stored; only its SHA-256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the opaque token value.
//  ExpiresAt – expiration timestamp of the token.
//  IsDeleted – logical-deletion flag (set on rotation, logout or sweep).
//  Audit     – created/updated bookkeeping, stamped by the pipeline.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash
	ExpiresAt time.Time // refresh_tokens.expires_at
	IsDeleted bool      // refresh_tokens.is_deleted
	Audit
}

// AuditMeta exposes the audit columns to the persistence pipeline.
func (t *RefreshToken) AuditMeta() *Audit { return &t.Audit }

// DeletionFlag exposes the soft-delete flag to the persistence pipeline.
func (t *RefreshToken) DeletionFlag() *bool { return &t.IsDeleted }

// Expired reports whether the token's expiry has passed at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
