package model

import "time"

// Audit carries the bookkeeping columns shared by every audited table.
// The fields are written exclusively by the persistence pipeline at save
// time; application code must never assign them directly.
//
// Fields:
//  CreatedAt – timestamp of the original insert (UTC).
//  CreatedBy – ID of the user who performed the insert (0 for system actions).
//  UpdatedAt – timestamp of the most recent write (UTC).
//  UpdatedBy – ID of the user who performed the most recent write.
type Audit struct {
	CreatedAt time.Time // *.created_at
	CreatedBy uint64    // *.created_by
	UpdatedAt time.Time // *.updated_at
	UpdatedBy uint64    // *.updated_by
}

// Auditable is implemented by any entity whose rows carry audit columns.
// The pipeline discovers the capability by type assertion, so an entity
// opts in simply by embedding Audit and exposing it here.
type Auditable interface {
	AuditMeta() *Audit
}

// SoftDeletable is implemented by any entity whose rows are removed
// logically. The pipeline rewrites physical deletes of such entities into
// updates that set the flag, and every default read path filters on it.
type SoftDeletable interface {
	DeletionFlag() *bool
}
