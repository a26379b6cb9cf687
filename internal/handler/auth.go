package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/middleware"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/response"
	"github.com/eventflow/eventflow-api/internal/service"
)

// forgotPasswordMessage is returned whether or not the email exists.
const forgotPasswordMessage = "If a user exists with this email, a reset link will be sent"

// AuthHandler serves the /api/auth endpoints.
type AuthHandler struct {
	accounts *service.AccountService
}

func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	if accounts == nil {
		panic("nil account service passed to NewAuthHandler")
	}
	return &AuthHandler{accounts: accounts}
}

type registerReq struct {
	Name     string  `json:"name" validate:"required,notblank,max=100"`
	Email    string  `json:"email" validate:"required,email,max=255"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type profileReq struct {
	Name   *string `json:"name" validate:"omitempty,notblank,max=100"`
	Phone  *string `json:"phone" validate:"omitempty,max=20"`
	Avatar *string `json:"avatar" validate:"omitempty,url,max=500"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

type forgotPasswordReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Register creates an account and returns a token pair.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := h.accounts.Register(ctx, service.RegisterInput{
		Name: req.Name, Email: req.Email, Password: req.Password, Phone: req.Phone,
	})
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusCreated, "User registered successfully", res)
}

// Login verifies credentials and returns a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := h.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Login successful", res)
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := h.accounts.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Token refreshed", res)
}

// Logout revokes the refresh token in the body, or all of the caller's
// tokens when the body has none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.accounts.Logout(ctx, middleware.IdentityFrom(c), req.RefreshToken); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) Profile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.accounts.Profile(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", u)
}

func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req profileReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.accounts.UpdateProfile(ctx, id, repository.ProfileUpdate{Name: req.Name, Phone: req.Phone, Avatar: req.Avatar})
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Profile updated successfully", u)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.accounts.ChangePassword(ctx, id, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Password updated successfully", nil)
}

// ForgotPassword always answers with the same message so the endpoint
// cannot be used to discover accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.accounts.ForgotPassword(ctx, req.Email); err != nil {
		log.Error().Err(err).Msg("forgot password")
	}
	return response.OK(c, http.StatusOK, forgotPasswordMessage, nil)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.accounts.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Password has been reset successfully", nil)
}
