package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/marketcore/api/responses"
	pkgAuth "github.com/angelmondragon/marketcore/pkg/auth"
	"github.com/angelmondragon/marketcore/pkg/config"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
)

// Auth resolves the caller from an optional bearer token. Requests without
// an Authorization header continue anonymously and each service decides
// whether that is enough. A header that is present but unusable is a 401.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(header)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			actor := claims.Context()
			ctx := WithAuth(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID)
				if actor.IsAdmin {
					ctx = logg.WithField(ctx, "actor_role", "admin")
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case as well as a bare token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		header = strings.TrimSpace(rest)
	} else if strings.EqualFold(header, "bearer") {
		header = ""
	}
	return header, header != ""
}
