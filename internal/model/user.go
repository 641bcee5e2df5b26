package model

// User represents an application user record as stored in the `users`
// table. The record is owned by the identity store; this service reads it
// to verify credentials and to bind refresh tokens to a subject, and only
// ever writes it through the audited pipeline (registration, soft delete).
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  IsActive     – whether the account may authenticate.
//  IsDeleted    – logical-deletion flag.
//  Audit        – created/updated bookkeeping, stamped by the pipeline.
type User struct {
	ID           uint64 // users.id
	Email        string // users.email
	PasswordHash string // users.password_hash
	IsActive     bool   // users.is_active
	IsDeleted    bool   // users.is_deleted
	Audit
}

// AuditMeta exposes the audit columns to the persistence pipeline.
func (u *User) AuditMeta() *Audit { return &u.Audit }

// DeletionFlag exposes the soft-delete flag to the persistence pipeline.
func (u *User) DeletionFlag() *bool { return &u.IsDeleted }
