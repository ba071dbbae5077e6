package middleware

import (
	"context"

	"github.com/justinas/alice"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
)

type (
	TokenValidator interface {
		Validate(ctx context.Context, token string) (models.Actor, error)
	}

	Middleware struct {
		auth    TokenValidator
		enabled bool
		service string
		log     logger.Logger
	}
)

// NewMiddleware builds the middleware set. With authEnabled false every route is open
// and no actor is attached to requests.
func NewMiddleware(auth TokenValidator, authEnabled bool, service string, log logger.Logger) *Middleware {
	return &Middleware{
		auth:    auth,
		enabled: authEnabled,
		service: service,
		log:     log,
	}
}

// Base is applied to every route. Metrics stays last so it sees the matched route pattern.
func (m *Middleware) Base() alice.Chain {
	return alice.New(m.Recover, m.RequestID, m.Logging, m.Metrics(m.service))
}
