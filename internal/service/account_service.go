package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/model"
	"github.com/eventflow/eventflow-api/internal/policy"
	"github.com/eventflow/eventflow-api/internal/queue"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/utils"
)

const minPasswordLen = 6

// AccountService issues and revokes credentials and manages profiles.
type AccountService struct {
	users     *repository.UserRepo
	tokens    *repository.TokenRepo
	resets    *repository.ResetRepo
	publisher queue.Publisher
	opts      AccountOptions
	now       func() time.Time
}

// AccountOptions carries token lifetimes and hashing cost.
type AccountOptions struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	ResetTTLMin    int
	BcryptCost     int
}

func NewAccountService(users *repository.UserRepo, tokens *repository.TokenRepo, resets *repository.ResetRepo, pub queue.Publisher, opts AccountOptions) *AccountService {
	if users == nil || tokens == nil || resets == nil || pub == nil {
		panic("nil dependency passed to NewAccountService")
	}
	if opts.ResetTTLMin <= 0 {
		opts.ResetTTLMin = 60
	}
	return &AccountService{
		users:     users,
		tokens:    tokens,
		resets:    resets,
		publisher: pub,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	User             model.User `json:"user"`
	Token            string     `json:"token"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RefreshToken     string     `json:"refresh_token"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
}

// Register creates a user with the user role and signs them in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	if len(in.Password) < minPasswordLen {
		return AuthResult{}, domain.Validation("password", "Password must be at least 6 characters")
	}
	uid, err := s.users.Create(ctx, repository.NewUser{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Phone:    in.Phone,
		Role:     model.RoleUser,
	}, s.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, domain.Conflict("user", "User already exists with this email")
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	res, err := s.issue(ctx, u)
	if err != nil {
		return AuthResult{}, err
	}
	s.publish(queue.KeyAccountRegistered, queue.AccountRegistered{UserID: u.ID, Email: u.Email, Name: u.Name})
	return res, nil
}

// Login checks the credentials.  Unknown emails and wrong passwords produce
// the same error and take the same time.
func (s *AccountService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			utils.BurnPasswordCheck(password)
			return AuthResult{}, domain.Unauthorized("Invalid email or password")
		}
		return AuthResult{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return AuthResult{}, domain.Unauthorized("Invalid email or password")
	}
	if !u.IsActive {
		return AuthResult{}, domain.Unauthorized("Account is deactivated")
	}
	return s.issue(ctx, u)
}

// Refresh exchanges a refresh token for a new pair.  The old token is revoked
// in the same transaction, so each refresh token works once.
func (s *AccountService) Refresh(ctx context.Context, raw string) (AuthResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AuthResult{}, domain.Validation("refresh_token", "refresh_token is required")
	}
	invalid := domain.Unauthorized("Invalid or expired refresh token")
	oldHash := utils.HashToken(raw)

	uid, err := s.tokens.ValidateRefresh(ctx, oldHash)
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthResult{}, invalid
		}
		return AuthResult{}, err
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthResult{}, invalid
		}
		return AuthResult{}, err
	}
	if !u.IsActive {
		return AuthResult{}, domain.Unauthorized("Account is deactivated")
	}

	access, err := utils.NewAccessToken(s.opts.JWTSecret, u.ID, u.Email, u.Role, s.opts.AccessTTLMin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.opts.RefreshTTLDays)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.tokens.Rotate(ctx, u.ID, oldHash, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			return AuthResult{}, invalid
		}
		return AuthResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return AuthResult{
		User:             u,
		Token:            access.Token,
		ExpiresAt:        access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}

// Logout revokes one refresh token when raw is given, otherwise every token
// of the authenticated caller.
func (s *AccountService) Logout(ctx context.Context, id *policy.Identity, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		hash := utils.HashToken(raw)
		if _, err := s.tokens.ValidateRefresh(ctx, hash); err != nil {
			if repository.IsNotFound(err) {
				return domain.Unauthorized("Invalid or expired refresh token")
			}
			return err
		}
		return s.tokens.RevokeByHash(ctx, hash)
	}
	if id == nil {
		return domain.Validation("refresh_token", "Provide an Authorization header or refresh_token")
	}
	return s.tokens.RevokeAllForUser(ctx, id.UserID)
}

// Profile returns the caller's user record.
func (s *AccountService) Profile(ctx context.Context, id policy.Identity) (model.User, error) {
	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.User{}, domain.NotFound("user", "User not found")
		}
		return model.User{}, err
	}
	return u, nil
}

// UpdateProfile changes name, phone and avatar.
func (s *AccountService) UpdateProfile(ctx context.Context, id policy.Identity, p repository.ProfileUpdate) (model.User, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return model.User{}, domain.Validation("name", "Name cannot be empty")
	}
	u, err := s.users.UpdateProfile(ctx, id.UserID, p)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.User{}, domain.NotFound("user", "User not found")
		}
		return model.User{}, err
	}
	return u, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, id policy.Identity, current, next string) error {
	if len(next) < minPasswordLen {
		return domain.Validation("new_password", "Password must be at least 6 characters")
	}
	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.NotFound("user", "User not found")
		}
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return domain.Unauthorized("Current password is incorrect")
	}
	return s.users.UpdatePassword(ctx, u.ID, next, s.opts.BcryptCost)
}

// ForgotPassword issues a reset token and hands it to the notification
// pipeline.  It reports nothing about whether the email exists; the caller
// always answers with the same message.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	if n, err := s.resets.PurgeExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("purge expired password resets")
	} else if n > 0 {
		log.Debug().Int64("removed", n).Msg("purged expired password resets")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !u.IsActive {
		return nil
	}

	token, err := utils.RandomHex(32)
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	exp := s.now().Add(time.Duration(s.opts.ResetTTLMin) * time.Minute)
	if err := s.resets.Create(ctx, u.Email, utils.HashToken(token), exp); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	s.publish(queue.KeyPasswordResetRequest, queue.PasswordResetRequested{
		Email:     u.Email,
		Name:      u.Name,
		Token:     token,
		ExpiresAt: exp,
	})
	return nil
}

// ResetPassword redeems a reset token.  Every reset row of the email is
// deleted and every refresh token of the user revoked.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Validation("token", "Reset token is required")
	}
	if len(password) < minPasswordLen {
		return domain.Validation("password", "Password must be at least 6 characters")
	}
	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	if _, err := s.resets.Consume(ctx, utils.HashToken(token), hash); err != nil {
		if repository.IsNotFound(err) {
			return domain.Validation("token", "Invalid or expired reset token")
		}
		return err
	}
	return nil
}

// ListUsers returns one page of users to an admin.
func (s *AccountService) ListUsers(ctx context.Context, id policy.Identity, p repository.Page) ([]model.User, int, error) {
	if !policy.Can(&id, policy.ManageUsers, policy.Resource{}) {
		return nil, 0, domain.Forbidden("Not authorized to access this route")
	}
	return s.users.List(ctx, p)
}

// DeactivateUser soft deletes a user and revokes their refresh tokens.
// Deactivating an inactive user succeeds without changes.
func (s *AccountService) DeactivateUser(ctx context.Context, id policy.Identity, userID uint64) error {
	if !policy.Can(&id, policy.ManageUsers, policy.Resource{}) {
		return domain.Forbidden("Not authorized to access this route")
	}
	if userID == id.UserID {
		return domain.Validation("id", "You cannot deactivate your own account")
	}
	err := s.users.Deactivate(ctx, userID)
	if errors.Is(err, repository.ErrNotApplied) {
		if _, gerr := s.users.GetByID(ctx, userID); repository.IsNotFound(gerr) {
			return domain.NotFound("user", "User not found")
		} else if gerr != nil {
			return gerr
		}
		err = nil
	}
	if err != nil {
		return err
	}
	log.Info().Uint64("user_id", userID).Uint64("by", id.UserID).Msg("user deactivated")
	return s.tokens.RevokeAllForUser(ctx, userID)
}

func (s *AccountService) issue(ctx context.Context, u model.User) (AuthResult, error) {
	access, err := utils.NewAccessToken(s.opts.JWTSecret, u.ID, u.Email, u.Role, s.opts.AccessTTLMin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.opts.RefreshTTLDays)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return AuthResult{}, fmt.Errorf("store refresh token: %w", err)
	}
	return AuthResult{
		User:             u,
		Token:            access.Token,
		ExpiresAt:        access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}

func (s *AccountService) publish(key string, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, key, v); err != nil {
		log.Warn().Err(err).Str("routing_key", key).Msg("publish account event failed")
	}
}
