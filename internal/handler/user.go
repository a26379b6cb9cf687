package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventflow/eventflow-api/internal/response"
	"github.com/eventflow/eventflow-api/internal/service"
)

// UserHandler serves the admin /api/users endpoints.
type UserHandler struct {
	accounts *service.AccountService
}

func NewUserHandler(accounts *service.AccountService) *UserHandler {
	if accounts == nil {
		panic("nil account service passed to NewUserHandler")
	}
	return &UserHandler{accounts: accounts}
}

// List handles GET /api/users.
func (h *UserHandler) List(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	p := pageFrom(c)
	ctx, cancel := dbContext(c)
	defer cancel()

	users, total, err := h.accounts.ListUsers(ctx, caller, p)
	if err != nil {
		return respondError(c, err)
	}
	return response.Page(c, http.StatusOK, users, response.NewPagination(p.Page, p.Limit, total))
}

// Deactivate handles DELETE /api/users/:id.  Users are never removed, only
// deactivated.
func (h *UserHandler) Deactivate(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.accounts.DeactivateUser(ctx, caller, id); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "User deactivated successfully", nil)
}
