package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

const loginUserKeyPrefix = "login:token:"

// SessionService maps opaque tokens to users. Each successful lookup slides
// the session expiry forward.
type SessionService struct {
	cache port.CacheRepository
	ttl   time.Duration
}

func NewSessionService(cache port.CacheRepository, ttl time.Duration) *SessionService {
	return &SessionService{cache: cache, ttl: ttl}
}

func (s *SessionService) Issue(ctx context.Context, user domain.User) (string, error) {
	if user.ID <= 0 {
		return "", fmt.Errorf("user id %d: %w", user.ID, domain.ErrInvalidArgument)
	}

	token := uuid.NewString()
	if err := s.cache.PutHash(ctx, loginUserKeyPrefix+token, user.Fields(), s.ttl); err != nil {
		return "", infraError("store session", err)
	}
	return token, nil
}

func (s *SessionService) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, domain.ErrUnauthorized
	}

	key := loginUserKeyPrefix + token
	fields, err := s.cache.GetHash(ctx, key)
	if err != nil {
		return domain.User{}, infraError("read session", err)
	}
	if len(fields) == 0 {
		return domain.User{}, domain.ErrUnauthorized
	}

	user, err := domain.UserFromFields(fields)
	if err != nil {
		return domain.User{}, fmt.Errorf("session %s: %w", token, domain.ErrUnauthorized)
	}

	if _, err := s.cache.Expire(ctx, key, s.ttl); err != nil {
		return domain.User{}, infraError("refresh session", err)
	}
	return user, nil
}
