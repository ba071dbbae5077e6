package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

// TokenService issues and validates HS256 actor tokens.
// A token names the actor kind and id it was issued for.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for actor
func (s *TokenService) Issue(ctx context.Context, actor models.Actor) (string, time.Time, error) {
	ctx = wrap.WithAction(ctx, "issue_token")
	if !actor.Kind.IsValid() {
		return "", time.Time{}, types.ErrInvalidActorKind
	}

	issuedAt := s.now().UTC()
	exp := issuedAt.Add(s.ttl)
	claims := jwt.MapClaims{
		"jti":  uuid.NewString(),
		"sub":  strconv.FormatInt(actor.ID, 10),
		"kind": actor.Kind.String(),
		"iat":  issuedAt.Unix(),
		"exp":  exp.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, wrap.Error(ctx, fmt.Errorf("sign token: %w", err))
	}
	return token, exp, nil
}

// Validate checks the signature and expiry and returns the actor the token was issued for
func (s *TokenService) Validate(ctx context.Context, token string) (models.Actor, error) {
	ctx = wrap.WithAction(ctx, "validate_token")

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, ErrExpToken
		}
		return models.Actor{}, wrap.Error(ctx, ErrInvalidToken)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return models.Actor{}, wrap.Error(ctx, ErrInvalidToken)
	}

	kind, _ := mc["kind"].(string)
	actor := models.Actor{Kind: types.ActorKind(kind)}
	if !actor.Kind.IsValid() {
		return models.Actor{}, wrap.Error(ctx, fmt.Errorf("%w: unknown actor kind %q", ErrInvalidToken, kind))
	}

	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return models.Actor{}, wrap.Error(ctx, fmt.Errorf("%w: missing subject", ErrInvalidToken))
	}
	actor.ID, err = strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return models.Actor{}, wrap.Error(ctx, fmt.Errorf("%w: subject is not an id", ErrInvalidToken))
	}
	return actor, nil
}
