package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/queue"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/utils"
)

const accountSecret = "account-test-secret"

type accountFixture struct {
	svc  *AccountService
	mock sqlmock.Sqlmock
	pub  *recordingPublisher
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, m.ExpectationsWereMet())
		db.Close()
	})
	pub := &recordingPublisher{}
	svc := NewAccountService(repository.NewUserRepo(db), repository.NewTokenRepo(db), repository.NewResetRepo(db), pub,
		AccountOptions{JWTSecret: accountSecret, AccessTTLMin: 15, RefreshTTLDays: 7, ResetTTLMin: 60, BcryptCost: bcrypt.MinCost})
	svc.now = func() time.Time { return fixedNow }
	return &accountFixture{svc: svc, mock: m, pub: pub}
}

func userRows(id int, email, hash string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "phone", "avatar",
		"is_active", "email_verified", "created_at", "updated_at"}).
		AddRow(id, "Ann", email, hash, "user", nil, nil, active, false, fixedNow, fixedNow)
}

func hashOf(t *testing.T, plain string) string {
	t.Helper()
	h, err := utils.HashPassword(plain, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestRegisterIssuesTokens(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectExec(q("INSERT INTO users")).
		WithArgs("Ann", "ann@example.com", sqlmock.AnyArg(), "user", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(5, 1))
	f.mock.ExpectQuery(q("FROM users WHERE id=?")).WithArgs(uint64(5)).
		WillReturnRows(userRows(5, "ann@example.com", "x", true))
	f.mock.ExpectExec(q("INSERT INTO refresh_tokens")).
		WithArgs(uint64(5), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := f.svc.Register(context.Background(), RegisterInput{Name: " Ann ", Email: "ANN@example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.User.ID)
	assert.Len(t, res.RefreshToken, 96)

	claims, err := utils.ParseAccessToken(accountSecret, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "5", claims.Subject)

	require.Len(t, f.pub.msgs, 1)
	assert.Equal(t, queue.KeyAccountRegistered, f.pub.msgs[0].key)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectExec(q("INSERT INTO users")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	assert.True(t, domain.IsConflict(err))
	assert.Empty(t, f.pub.msgs)
}

func TestRegisterShortPassword(t *testing.T) {
	f := newAccountFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "123"})
	assert.True(t, domain.IsValidation(err))
}

func TestLogin(t *testing.T) {
	hash := hashOf(t, "secret1")

	t.Run("unknown email", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mock.ExpectQuery(q("FROM users WHERE email=?")).WithArgs("nobody@example.com").WillReturnError(sql.ErrNoRows)
		_, err := f.svc.Login(context.Background(), "nobody@example.com", "secret1")
		require.True(t, domain.IsUnauthorized(err))
		assert.Equal(t, "Invalid email or password", err.Error())
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnRows(userRows(5, "ann@example.com", hash, true))
		_, err := f.svc.Login(context.Background(), "ann@example.com", "nope")
		require.True(t, domain.IsUnauthorized(err))
		assert.Equal(t, "Invalid email or password", err.Error())
	})

	t.Run("deactivated", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnRows(userRows(5, "ann@example.com", hash, false))
		_, err := f.svc.Login(context.Background(), "ann@example.com", "secret1")
		require.True(t, domain.IsUnauthorized(err))
		assert.Equal(t, "Account is deactivated", err.Error())
	})

	t.Run("success", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnRows(userRows(5, "ann@example.com", hash, true))
		f.mock.ExpectExec(q("INSERT INTO refresh_tokens")).WillReturnResult(sqlmock.NewResult(1, 1))
		res, err := f.svc.Login(context.Background(), "ann@example.com", "secret1")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
	})
}

func expectValidRefresh(m sqlmock.Sqlmock, raw string, userID int) {
	m.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).WithArgs(utils.HashToken(raw)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(userID, time.Now().UTC().Add(time.Hour), nil))
}

func TestRefreshRotates(t *testing.T) {
	f := newAccountFixture(t)
	expectValidRefresh(f.mock, "old-token", 5)
	f.mock.ExpectQuery(q("FROM users WHERE id=?")).WillReturnRows(userRows(5, "ann@example.com", "x", true))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at")).
		WithArgs(utils.HashToken("old-token"), uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(q("INSERT INTO refresh_tokens")).WillReturnResult(sqlmock.NewResult(2, 1))
	f.mock.ExpectCommit()

	res, err := f.svc.Refresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", res.RefreshToken)
}

func TestRefreshUsedTwice(t *testing.T) {
	f := newAccountFixture(t)
	expectValidRefresh(f.mock, "old-token", 5)
	f.mock.ExpectQuery(q("FROM users WHERE id=?")).WillReturnRows(userRows(5, "ann@example.com", "x", true))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	_, err := f.svc.Refresh(context.Background(), "old-token")
	assert.True(t, domain.IsUnauthorized(err))
}

func TestRefreshUnknownToken(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).WillReturnError(sql.ErrNoRows)
	_, err := f.svc.Refresh(context.Background(), "nope")
	assert.True(t, domain.IsUnauthorized(err))
}

func TestLogout(t *testing.T) {
	t.Run("single token", func(t *testing.T) {
		f := newAccountFixture(t)
		expectValidRefresh(f.mock, "tok", 5)
		f.mock.ExpectExec(q("WHERE token_hash=? AND revoked_at IS NULL")).
			WithArgs(utils.HashToken("tok")).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, f.svc.Logout(context.Background(), nil, "tok"))
	})

	t.Run("all sessions", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mock.ExpectExec(q("WHERE user_id=? AND revoked_at IS NULL")).
			WithArgs(uint64(10)).WillReturnResult(sqlmock.NewResult(0, 3))
		assert.NoError(t, f.svc.Logout(context.Background(), &user, ""))
	})

	t.Run("nothing to revoke", func(t *testing.T) {
		f := newAccountFixture(t)
		assert.True(t, domain.IsValidation(f.svc.Logout(context.Background(), nil, " ")))
	})
}

func TestChangePasswordChecksCurrent(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectQuery(q("FROM users WHERE id=?")).WillReturnRows(userRows(10, "ann@example.com", hashOf(t, "secret1"), true))

	err := f.svc.ChangePassword(context.Background(), user, "wrong", "newsecret")
	assert.True(t, domain.IsUnauthorized(err))
}

func TestChangePassword(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectQuery(q("FROM users WHERE id=?")).WillReturnRows(userRows(10, "ann@example.com", hashOf(t, "secret1"), true))
	f.mock.ExpectExec(q("UPDATE users SET password_hash=? WHERE id=?")).
		WithArgs(sqlmock.AnyArg(), uint64(10)).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, f.svc.ChangePassword(context.Background(), user, "secret1", "newsecret"))
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectExec(q("DELETE FROM password_resets WHERE expires_at")).WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnError(sql.ErrNoRows)

	assert.NoError(t, f.svc.ForgotPassword(context.Background(), "ghost@example.com"))
	assert.Empty(t, f.pub.msgs)
}

func TestForgotPasswordPublishesToken(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectExec(q("DELETE FROM password_resets WHERE expires_at")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnRows(userRows(10, "ann@example.com", "x", true))
	f.mock.ExpectExec(q("INSERT INTO password_resets")).
		WithArgs("ann@example.com", sqlmock.AnyArg(), fixedNow.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "ann@example.com"))
	require.Len(t, f.pub.msgs, 1)
	assert.Equal(t, queue.KeyPasswordResetRequest, f.pub.msgs[0].key)
	msg := f.pub.msgs[0].raw.(queue.PasswordResetRequested)
	assert.Len(t, msg.Token, 64)
	assert.Equal(t, fixedNow.Add(time.Hour), msg.ExpiresAt)
}

func TestResetPasswordInvalidToken(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(q("SELECT email FROM password_resets")).
		WithArgs(utils.HashToken("bad")).WillReturnError(sql.ErrNoRows)
	f.mock.ExpectRollback()

	err := f.svc.ResetPassword(context.Background(), "bad", "newsecret")
	require.True(t, domain.IsValidation(err))
	assert.Equal(t, "token: Invalid or expired reset token", err.Error())
}

func TestResetPassword(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(q("SELECT email FROM password_resets")).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("ann@example.com"))
	f.mock.ExpectQuery(q("SELECT id FROM users WHERE email=?")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	f.mock.ExpectExec(q("UPDATE users SET password_hash=?")).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(q("DELETE FROM password_resets WHERE email=?")).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at")).WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectCommit()

	assert.NoError(t, f.svc.ResetPassword(context.Background(), "good", "newsecret"))
}

func TestListUsersAdminOnly(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectQuery(q("SELECT COUNT(*) FROM users")).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	f.mock.ExpectQuery(q("FROM users ORDER BY id ASC LIMIT ? OFFSET ?")).WithArgs(10, 0).
		WillReturnRows(userRows(5, "ann@example.com", "x", true))

	users, total, err := f.svc.ListUsers(context.Background(), admin, repository.Page{}.Normalize(10))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "ann@example.com", users[0].Email)

	_, _, err = f.svc.ListUsers(context.Background(), user, repository.Page{}.Normalize(10))
	assert.True(t, domain.IsForbidden(err))
}

func TestDeactivateUserRevokesTokens(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectExec(q("UPDATE users SET is_active=FALSE WHERE id=? AND is_active=TRUE")).
		WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at")).
		WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, f.svc.DeactivateUser(context.Background(), admin, 5))
}

func TestDeactivatedUserCannotLogIn(t *testing.T) {
	f := newAccountFixture(t)
	f.mock.ExpectQuery(q("FROM users WHERE email=?")).
		WillReturnRows(userRows(5, "ann@example.com", hashOf(t, "secret1"), false))

	_, err := f.svc.Login(context.Background(), "ann@example.com", "secret1")
	assert.True(t, domain.IsUnauthorized(err), "got %v", err)
}

func TestDeactivateUser(t *testing.T) {
	t.Run("already inactive", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mock.ExpectExec(q("UPDATE users SET is_active=FALSE")).WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectQuery(q("FROM users WHERE id=?")).WithArgs(uint64(5)).
			WillReturnRows(userRows(5, "ann@example.com", "x", false))
		f.mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at")).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, f.svc.DeactivateUser(context.Background(), admin, 5))
	})
	t.Run("unknown user", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mock.ExpectExec(q("UPDATE users SET is_active=FALSE")).WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectQuery(q("FROM users WHERE id=?")).WillReturnError(sql.ErrNoRows)

		assert.True(t, domain.IsNotFound(f.svc.DeactivateUser(context.Background(), admin, 99)))
	})
	t.Run("self", func(t *testing.T) {
		f := newAccountFixture(t)
		assert.True(t, domain.IsValidation(f.svc.DeactivateUser(context.Background(), admin, admin.UserID)))
	})
	t.Run("not admin", func(t *testing.T) {
		f := newAccountFixture(t)
		assert.True(t, domain.IsForbidden(f.svc.DeactivateUser(context.Background(), user, 5)))
	})
}
