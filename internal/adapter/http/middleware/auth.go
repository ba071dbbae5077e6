package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

var errNoToken = errors.New("authorization required")

// Require authenticates the request and admits only the given actor kinds.
// Admins are always admitted.
func (m *Middleware) Require(next http.HandlerFunc, kinds ...types.ActorKind) http.Handler {
	return m.authenticate(func(w http.ResponseWriter, r *http.Request, actor models.Actor) {
		if actor.Kind != types.ActorAdmin && !slices.Contains(kinds, actor.Kind) {
			errorResponse(w, http.StatusForbidden, "forbidden: actor kind not allowed")
			return
		}
		next(w, r)
	}, next)
}

// RequireSelf admits admins and the actor of kind whose id equals the path value param
func (m *Middleware) RequireSelf(next http.HandlerFunc, kind types.ActorKind, param string) http.Handler {
	return m.authenticate(func(w http.ResponseWriter, r *http.Request, actor models.Actor) {
		if actor.Kind == types.ActorAdmin {
			next(w, r)
			return
		}
		id, err := strconv.ParseInt(r.PathValue(param), 10, 64)
		if err != nil || actor.Kind != kind || actor.ID != id {
			errorResponse(w, http.StatusForbidden, "forbidden: token does not belong to this resource")
			return
		}
		next(w, r)
	}, next)
}

// RequireAny authenticates the request without restricting the actor kind
func (m *Middleware) RequireAny(next http.HandlerFunc) http.Handler {
	return m.authenticate(func(w http.ResponseWriter, r *http.Request, _ models.Actor) {
		next(w, r)
	}, next)
}

// authenticate resolves the actor and passes it to check. With auth disabled it calls open directly.
func (m *Middleware) authenticate(check func(http.ResponseWriter, *http.Request, models.Actor), open http.HandlerFunc) http.Handler {
	if !m.enabled {
		return open
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, err := extractToken(r)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}

		actor, err := m.auth.Validate(ctx, token)
		if err != nil {
			m.log.Warn(wrap.WithAction(ctx, "authenticate"), "rejected token", "error", err.Error())
			errorResponse(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx = wrap.WithActor(models.WithActor(ctx, actor), actor.Kind.String(), actor.ID)
		check(w, r.WithContext(ctx), actor)
	})
}

// extractToken reads a bearer token, or the token query parameter used by websocket clients
func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", errNoToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid Authorization header format")
	}
	return parts[1], nil
}
