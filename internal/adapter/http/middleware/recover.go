package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

var errPanic = errors.New("handler panic")

func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				ctx := wrap.WithAction(r.Context(), "recover_panic")
				m.log.Error(ctx, "panic while serving request", fmt.Errorf("%w: %v", errPanic, p), "path", r.URL.Path)

				w.Header().Set("Connection", "close")
				errorResponse(w, http.StatusInternalServerError, types.ErrInternal.Error())
			}
		}()

		next.ServeHTTP(w, r)
	})
}
