package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorMiddleware resolves the acting user for audit stamps (processed_by,
// reconciled_by). Bearer tokens are verified with the configured HMAC secret
// and the subject claim becomes the actor. With devAuth enabled the X-Actor
// header is trusted instead, for local runs and tests.
func ActorMiddleware(jwtSecret string, devAuth bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if devAuth {
				actor := r.Header.Get("X-Actor")
				if actor == "" {
					actor = "dev"
				}
				next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "authorization token not provided")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				writeError(w, http.StatusUnauthorized, "token has no subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), sub)))
		})
	}
}

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the authenticated actor from context.
func ActorFromContext(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}
