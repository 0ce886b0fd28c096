package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/auth"
	"devcamper-api/internal/config"
	"devcamper-api/internal/model"
	"devcamper-api/internal/pipeline"
	"devcamper-api/internal/service"
)

// logoutCookieTTL is how long the cleared token cookie lives.
const logoutCookieTTL = 10 * time.Second

// AuthHandler serves registration, login and the current user.
type AuthHandler struct {
	svc    *service.AuthService
	cfg    *config.Config
	now    func() time.Time
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *service.AuthService, cfg *config.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "auth_handler"),
	}
}

// Register creates a user and signs them in.
func (h *AuthHandler) Register(c echo.Context) error {
	tok, _, err := h.svc.Register(c.Request().Context(), pipeline.Body(c))
	if err != nil {
		return err
	}
	return h.sendToken(c, tok)
}

// Login checks email and password and signs the user in.
func (h *AuthHandler) Login(c echo.Context) error {
	body := pipeline.Body(c)
	email, _ := body["email"].(string)
	password, _ := body["password"].(string)

	tok, err := h.svc.Login(c.Request().Context(), email, password)
	if err != nil {
		return err
	}
	return h.sendToken(c, tok)
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return apperr.Auth("Not authorized to access this route")
	}
	return c.JSON(http.StatusOK, model.OK(user))
}

// Logout replaces the token cookie with one that expires shortly.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    "none",
		Path:     "/",
		Expires:  h.now().Add(logoutCookieTTL),
		HttpOnly: true,
	})
	return c.JSON(http.StatusOK, model.OK(map[string]any{}))
}

func (h *AuthHandler) sendToken(c echo.Context, tok string) error {
	days := time.Duration(h.cfg.Auth.CookieExpireDays) * 24 * time.Hour
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    tok,
		Path:     "/",
		Expires:  h.now().Add(days),
		HttpOnly: true,
		Secure:   h.cfg.Environment == config.EnvProduction,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, model.TokenResponse{Success: true, Token: tok})
}
