package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/eventflow/eventflow-api/internal/model"
	"github.com/eventflow/eventflow-api/internal/utils"
)

const userColumns = "id, name, email, password_hash, role, phone, avatar, is_active, email_verified, created_at, updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries the registration input.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Phone    *string
	Role     string
}

func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.Avatar,
		&u.IsActive, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create hashes the password, inserts the user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, in NewUser, cost int) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	hash, err := utils.HashPassword(in.Password, cost)
	if err != nil {
		return 0, err
	}
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role, phone) VALUES (?,?,?,?,?)",
		strings.TrimSpace(in.Name), email, hash, role, in.Phone)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// ProfileUpdate holds optional profile fields; nil leaves a column unchanged.
type ProfileUpdate struct {
	Name   *string
	Phone  *string
	Avatar *string
}

// UpdateProfile applies the non-nil fields of p and returns the fresh row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, p ProfileUpdate) (model.User, error) {
	sets := []string{}
	args := []any{}
	if p.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, strings.TrimSpace(*p.Name))
	}
	if p.Phone != nil {
		sets = append(sets, "phone=?")
		args = append(args, *p.Phone)
	}
	if p.Avatar != nil {
		sets = append(sets, "avatar=?")
		args = append(args, *p.Avatar)
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...); err != nil {
			return model.User{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// UpdatePassword stores a new bcrypt hash for the user.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, plain string, cost int) error {
	hash, err := utils.HashPassword(plain, cost)
	if err != nil {
		return err
	}
	return requireAffected(r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", hash, id))
}

// List returns one page of users ordered by id and the total count.
func (r *UserRepo) List(ctx context.Context, p Page) ([]model.User, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id ASC LIMIT ? OFFSET ?", p.Limit, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// Deactivate soft deletes a user.  ErrNotApplied means the user does not
// exist or is already inactive.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	return requireAffected(r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=FALSE WHERE id=? AND is_active=TRUE", id))
}
