package session

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
)

// ProfileFetcher calls GET /users/me with a bearer token.
type ProfileFetcher interface {
	Me(ctx context.Context, token string) (models.Identity, error)
}

// Resolver exchanges a token for the Identity behind it.
type Resolver struct {
	profiles ProfileFetcher
	log      *zap.Logger
}

func NewResolver(profiles ProfileFetcher, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{profiles: profiles, log: log}
}

// Resolve returns apperr kinds AuthExpired (401), AuthForbidden (403) or
// Transient for anything else that went wrong.
func (r *Resolver) Resolve(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, apperr.AuthExpired("")
	}
	id, err := r.profiles.Me(ctx, token)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindAuthExpired, apperr.KindAuthForbidden, apperr.KindTransient:
			return models.Identity{}, err
		}
		return models.Identity{}, apperr.Transient(errors.Wrap(err, "resolving identity"))
	}
	if !id.Role.Valid() || id.ID == 0 {
		return models.Identity{}, apperr.Transient(fmt.Errorf("profile endpoint returned unusable identity (id=%d role=%q)", id.ID, id.Role))
	}
	r.log.Debug("identity resolved", zap.Int64("user_id", id.ID), zap.String("role", string(id.Role)))
	return id, nil
}
