package middleware

import (
	"net/http"

	"digistore-be/internal/auth"
	"digistore-be/internal/logger"
	"digistore-be/internal/utils"

	"go.uber.org/zap"
)

// AuthMiddleware attaches the bearer token's user to the request context.
// Requests without a token pass through anonymously; a token that fails
// verification is rejected with 401.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseJWT(secret, tokenStr)
			if err != nil {
				logger.FromCtx(r.Context()).Debug("rejecting bearer token", zap.Error(err))
				utils.WriteJSONError(w, "token is not valid", http.StatusUnauthorized)
				return
			}

			userID, err := claims.UserUUID()
			if err != nil {
				utils.WriteJSONError(w, "token is not valid", http.StatusUnauthorized)
				return
			}

			ctx := utils.SetUserContext(r.Context(), userID, claims.Email, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := utils.GetUserIDFromContext(r.Context()); !ok {
			utils.WriteJSONError(w, "not authorized, no token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
