package repository

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/windcore/authsvc/internal/model"
	"github.com/windcore/authsvc/internal/pipeline"
)

// UserRepo is the identity-store collaborator. The auth core only reads
// users (credential checks, subject resolution); the one write path,
// registration, rides the audited pipeline like every other mutation.
type UserRepo struct {
	db   pipeline.DBTX
	pipe *pipeline.Runner
	cost int
}

// NewUserRepo returns a UserRepo using the given bcrypt cost for new
// password hashes.
func NewUserRepo(db pipeline.DBTX, pipe *pipeline.Runner, cost int) *UserRepo {
	return &UserRepo{db: db, pipe: pipe, cost: cost}
}

// Create registers a new user and returns the populated record. The
// insert is saved through the pipeline on behalf of the system actor, so
// the row carries audit metadata from its first write.
func (r *UserRepo) Create(ctx context.Context, email, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		IsActive:     true,
	}
	err = r.pipe.Save(ctx, pipeline.SystemActor, pipeline.Change{
		Op:     pipeline.OpInsert,
		Entity: u,
		Exec:   r.execUser(u),
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return u, nil
}

// execUser is the statement function for user rows. OpDelete never
// reaches it: users are SoftDeletable, so the pipeline rewrites deletes
// into updates first.
func (r *UserRepo) execUser(u *model.User) func(context.Context, pipeline.DBTX, pipeline.Op) error {
	return func(ctx context.Context, db pipeline.DBTX, op pipeline.Op) error {
		switch op {
		case pipeline.OpInsert:
			res, err := db.ExecContext(ctx,
				`INSERT INTO users (email, password_hash, is_active, is_deleted, created_at, created_by, updated_at, updated_by)
				 VALUES (?,?,?,?,?,?,?,?)`,
				u.Email, u.PasswordHash, u.IsActive, u.IsDeleted,
				u.CreatedAt, u.CreatedBy, u.UpdatedAt, u.UpdatedBy)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			u.ID = uint64(id)
			return nil
		default:
			_, err := db.ExecContext(ctx,
				`UPDATE users SET email=?, password_hash=?, is_active=?, is_deleted=?, updated_at=?, updated_by=? WHERE id=?`,
				u.Email, u.PasswordHash, u.IsActive, u.IsDeleted,
				u.UpdatedAt, u.UpdatedBy, u.ID)
			return err
		}
	}
}

// GetByEmail fetches a live user by normalized email. Soft-deleted rows
// are filtered here as on every default read path.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, is_active, is_deleted, created_at, created_by, updated_at, updated_by
		 FROM users WHERE email=? AND is_deleted=0 LIMIT 1`, email))
}

// GetByID fetches a live user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, is_active, is_deleted, created_at, created_by, updated_at, updated_by
		 FROM users WHERE id=? AND is_deleted=0 LIMIT 1`, id))
}

func (r *UserRepo) scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsDeleted,
		&u.CreatedAt, &u.CreatedBy, &u.UpdatedAt, &u.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// VerifyPassword safely compares the stored bcrypt hash against a
// candidate password.
func (r *UserRepo) VerifyPassword(u *model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
