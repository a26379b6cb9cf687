package repository

import (
	"context"
	"database/sql"
	"time"
)

// ResetRepo stores single-use password reset tokens.
type ResetRepo struct{ DB *sql.DB }

func NewResetRepo(db *sql.DB) *ResetRepo { return &ResetRepo{DB: db} }

// Create stores the hash of a freshly issued reset token.
func (r *ResetRepo) Create(ctx context.Context, email, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO password_resets (email, token_hash, expires_at) VALUES (?,?,?)",
		email, tokenHash, exp)
	return err
}

// Consume redeems a reset token: it sets the new password hash, deletes every
// reset row of the email and revokes the user's refresh tokens, all in one
// transaction.  Unknown or expired tokens yield sql.ErrNoRows.
func (r *ResetRepo) Consume(ctx context.Context, tokenHash, passwordHash string) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var email string
	if err := tx.QueryRowContext(ctx,
		"SELECT email FROM password_resets WHERE token_hash=? AND expires_at > UTC_TIMESTAMP() LIMIT 1 FOR UPDATE",
		tokenHash).Scan(&email); err != nil {
		return 0, err
	}
	var userID uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM users WHERE email=? AND is_active=TRUE LIMIT 1 FOR UPDATE",
		email).Scan(&userID); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", passwordHash, userID); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM password_resets WHERE email=?", email); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL", userID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return userID, nil
}

// PurgeExpired deletes expired reset rows and reports how many were removed.
func (r *ResetRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM password_resets WHERE expires_at <= UTC_TIMESTAMP()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
