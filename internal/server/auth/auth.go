package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"

	"telechat/internal/models"
)

const DefaultTokenExpiry = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

type Config struct {
	TokenExpiry time.Duration
}

// TokenService mints opaque bearer tokens for participants and resolves them
// while they live. Tokens expire from the TTL cache; there is no mid-session
// re-auth, matching the query-authenticated socket contract.
type TokenService struct {
	liveTokens geche.Geche[string, models.User]
}

func NewTokenService(ctx context.Context, config Config) *TokenService {
	if config.TokenExpiry <= 0 {
		config.TokenExpiry = DefaultTokenExpiry
	}
	return &TokenService{
		liveTokens: geche.NewMapTTLCache[string, models.User](ctx, config.TokenExpiry, time.Minute),
	}
}

// Issue mints a fresh token bound to the given participant.
func (ts *TokenService) Issue(user models.User) string {
	token := uuid.NewString()
	ts.liveTokens.Set(token, user)
	slog.Info("token issued", "user_id", user.ID, "role", user.Role)
	return token
}

// Resolve returns the participant a live token belongs to.
func (ts *TokenService) Resolve(token string) (models.User, error) {
	user, err := ts.liveTokens.Get(token)
	if err != nil {
		return models.User{}, ErrInvalidToken
	}
	return user, nil
}
