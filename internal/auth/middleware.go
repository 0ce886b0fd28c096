package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/pipeline"
	"devcamper-api/internal/store"
)

// CookieName is the cookie that carries the token for browser clients.
const CookieName = "token"

const userKey = "auth.user"

// User roles.
const (
	RoleUser      = "user"
	RolePublisher = "publisher"
	RoleAdmin     = "admin"
)

const notAuthorized = "Not authorized to access this route"

// UserFinder loads the user a token was issued for.
type UserFinder interface {
	FindUser(ctx context.Context, id string) (store.Document, error)
}

// Protect returns a middleware that requires a valid token, taken from the
// Authorization bearer header or else the token cookie, and loads its user.
func Protect(tokens *Tokens, users UserFinder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFrom(c)
			if raw == "" {
				return apperr.Auth(notAuthorized)
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				return apperr.Auth(notAuthorized)
			}

			user, err := users.FindUser(c.Request().Context(), claims.UserID)
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
				return apperr.Auth(notAuthorized)
			}
			if err != nil {
				return err
			}

			c.Set(userKey, user)
			return next(c)
		}
	}
}

// Authorize returns a middleware that only lets users with one of roles
// through. It must run after Protect.
func Authorize(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return apperr.Auth(notAuthorized)
			}
			role, _ := user["role"].(string)
			if !slices.Contains(roles, role) {
				return apperr.Forbidden(fmt.Sprintf("User role %s is not authorized to access this route", role))
			}
			return next(c)
		}
	}
}

// CurrentUser returns the user loaded by Protect.
func CurrentUser(c echo.Context) (store.Document, bool) {
	u, ok := c.Get(userKey).(store.Document)
	return u, ok
}

func tokenFrom(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return pipeline.Cookies(c)[CookieName]
}
