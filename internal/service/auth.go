package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/auth"
	"github.com/Spok95/classtrack-portal/internal/db"
	"github.com/Spok95/classtrack-portal/internal/models"
)

var errBadCredentials = apperr.Validation("Incorrect username or password")

type LoginRequest struct {
	Identifier string `json:"identifier" form:"username" validate:"required,max=254"`
	Password   string `json:"password" form:"password" validate:"required,max=128"`
}

// Login checks credentials and issues a token. The identifier is a username,
// or a numeric account id for students who sign in with their school number.
func (s *Service) Login(ctx context.Context, req LoginRequest) (string, error) {
	ident := strings.TrimSpace(req.Identifier)
	u, err := s.repo.UserByUsername(ctx, ident)
	if errors.Is(err, db.ErrNotFound) {
		if id, perr := strconv.ParseInt(ident, 10, 64); perr == nil {
			u, err = s.repo.UserByID(ctx, id)
		}
	}
	if errors.Is(err, db.ErrNotFound) {
		return "", errBadCredentials
	}
	if err != nil {
		return "", err
	}
	if auth.CheckPassword(u.PasswordHash, req.Password) != nil {
		s.log.Info("login rejected", zap.Int64("user_id", u.ID))
		return "", errBadCredentials
	}
	tok, err := s.tokens.Issue(s.identity(u))
	if err != nil {
		return "", err
	}
	s.log.Info("login", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return tok, nil
}

// Authenticate resolves a bearer token to the current account.
func (s *Service) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return models.Identity{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return models.Identity{}, apperr.AuthExpired("invalid token subject")
	}
	u, err := s.repo.UserByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return models.Identity{}, apperr.AuthExpired("account no longer exists")
	}
	if err != nil {
		return models.Identity{}, err
	}
	return s.identity(u), nil
}
