package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/middleware"
	"github.com/eventflow/eventflow-api/internal/policy"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/response"
)

// Per-request deadlines for database work and for calls that reach the
// payment processor.
const (
	dbTimeout      = 5 * time.Second
	gatewayTimeout = 15 * time.Second
)

// respondError maps a domain error to its status code.  Anything that is not
// a domain error is logged and reported as an opaque 500.
func respondError(c echo.Context, err error) error {
	var (
		ve  *domain.ValidationError
		ue  *domain.UnauthorizedError
		fe  *domain.ForbiddenError
		nfe *domain.NotFoundError
		ce  *domain.ConflictError
		be  *domain.BusinessError
		upe *domain.UpstreamError
		he  *echo.HTTPError
	)
	switch {
	case errors.As(err, &ve):
		return response.Fail(c, http.StatusBadRequest, ve.Msg)
	case errors.As(err, &ue):
		return response.Fail(c, http.StatusUnauthorized, ue.Msg)
	case errors.As(err, &fe):
		return response.Fail(c, http.StatusForbidden, fe.Msg)
	case errors.As(err, &nfe):
		return response.Fail(c, http.StatusNotFound, nfe.Error())
	case errors.As(err, &ce):
		return response.Fail(c, http.StatusConflict, ce.Msg)
	case errors.As(err, &be):
		return response.Fail(c, http.StatusBadRequest, be.Msg)
	case errors.As(err, &upe):
		log.Warn().Err(err).Str("service", upe.Service).Str("path", c.Path()).Msg("upstream failure")
		return response.Fail(c, http.StatusBadGateway, upe.Msg)
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return response.Fail(c, he.Code, msg)
	case errors.Is(err, context.DeadlineExceeded):
		log.Error().Err(err).Str("path", c.Path()).Msg("request timed out")
		return response.Fail(c, http.StatusGatewayTimeout, "Request timed out")
	}
	rid, _ := c.Get("request_id").(string)
	log.Error().Err(err).Str("request_id", rid).Str("method", c.Request().Method).Str("path", c.Path()).Msg("unhandled error")
	return response.Fail(c, http.StatusInternalServerError, "Internal server error")
}

// bind decodes and validates the request body.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return domain.Validation("", "Invalid request body")
	}
	return c.Validate(dst)
}

func identity(c echo.Context) (policy.Identity, error) {
	if id := middleware.IdentityFrom(c); id != nil {
		return *id, nil
	}
	return policy.Identity{}, domain.Unauthorized("Not authorized, invalid or missing token")
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.Validation(name, "Invalid "+name)
	}
	return id, nil
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

func pageFrom(c echo.Context) repository.Page {
	return repository.Page{Page: queryInt(c, "page"), Limit: queryInt(c, "limit")}.Normalize(10)
}

func dbContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// ErrorHandler is installed as echo's HTTPErrorHandler so errors raised
// outside the handlers (unknown routes, recovered panics) use the envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if werr := respondError(c, err); werr != nil {
		log.Error().Err(werr).Msg("write error response")
	}
}
