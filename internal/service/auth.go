package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/auth"
	"devcamper-api/internal/store"
)

// AuthService registers and signs in users.
type AuthService struct {
	resources *ResourceService
	tokens    *auth.Tokens
	logger    *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(resources *ResourceService, tokens *auth.Tokens, logger *slog.Logger) *AuthService {
	return &AuthService{
		resources: resources,
		tokens:    tokens,
		logger:    logger.With("component", "auth_service"),
	}
}

// Register creates a user and returns a token for it.
func (a *AuthService) Register(ctx context.Context, body map[string]any) (string, map[string]any, error) {
	user, err := a.resources.Create(ctx, Users, body, nil)
	if err != nil {
		return "", nil, err
	}
	id, _ := user[store.IDField].(string)
	role, _ := user["role"].(string)

	tok, err := a.tokens.Issue(id, role)
	if err != nil {
		return "", nil, apperr.Internal("issue token", err)
	}
	a.logger.Info("user registered", "user_id", id, "role", role)
	return tok, user, nil
}

// Login checks the credentials and returns a token.
func (a *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", apperr.Validation("Please provide an email and password")
	}

	user, err := a.resources.FindOne(ctx, Users, map[string]any{"email": email})
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.Auth("Invalid credentials")
	}
	if err != nil {
		return "", err
	}

	hash, _ := user["password"].(string)
	if !auth.CheckPassword(hash, password) {
		return "", apperr.Auth("Invalid credentials")
	}

	role, _ := user["role"].(string)
	tok, err := a.tokens.Issue(user.ID(), role)
	if err != nil {
		return "", apperr.Internal("issue token", err)
	}
	return tok, nil
}

// FindUser implements auth.UserFinder. The returned user has no secrets.
func (a *AuthService) FindUser(ctx context.Context, id string) (store.Document, error) {
	sc, err := a.resources.schema(Users)
	if err != nil {
		return nil, err
	}
	d, err := a.resources.store.Get(ctx, Users, id)
	if err != nil {
		return nil, err
	}
	return a.resources.public(sc, d), nil
}

// Tokens returns the token service.
func (a *AuthService) Tokens() *auth.Tokens { return a.tokens }
