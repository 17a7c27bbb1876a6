// Package sessionctx resolves the {sessionID} route parameter into the
// page session every per-session handler works on.
package sessionctx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanmonitor/dashboard/internal/service/session"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

// Param is the chi URL parameter holding the session ID.
const Param = "sessionID"

type ctxKey struct{}

// Resolver looks sessions up by ID.
type Resolver interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Middleware loads the session named in the URL or answers 404.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := resolver.Get(r.Context(), chi.URLParam(r, Param))
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					utils.RespondError(w, http.StatusNotFound, err.Error())
					return
				}
				utils.RespondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(With(r.Context(), sess)))
		})
	}
}

// With stores sess in ctx.
func With(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// From returns the session stored by Middleware. Handlers mounted behind
// Middleware can rely on it being non-nil.
func From(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(ctxKey{}).(*session.Session)
	return sess
}
