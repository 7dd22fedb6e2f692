package middleware

import (
	"context"
	"net/http"
	"strings"

	"appsync/pkg/logger"
	"appsync/pkg/response"
)

type contextKey string

const (
	UserIDKey    contextKey = "userID"
	SessionIDKey contextKey = "sessionID"

	// SessionHeader identifies the client session that issued a request, so
	// change notices are not echoed back to it.
	SessionHeader = "X-Session-ID"
)

// TokenParser resolves an access token to a user id.
type TokenParser interface {
	UserID(token string) (int64, error)
}

// UserChecker reports whether a user still exists. Tokens of deleted accounts
// are rejected.
type UserChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

func unauthorized(w http.ResponseWriter, message string) {
	response.Error(w, http.StatusUnauthorized, message, nil, "UNAUTHORIZED")
}

// AuthMiddleware accepts the token from the "token" query parameter (browsers
// cannot set headers on websocket upgrades) or an Authorization bearer header.
func AuthMiddleware(tokens TokenParser, users UserChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				authHeader := r.Header.Get("Authorization")
				tokenString = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			}
			if tokenString == "" {
				unauthorized(w, "Unauthorized: No token provided")
				return
			}

			userID, err := tokens.UserID(tokenString)
			if err != nil {
				logger.Sugar.Warnf("Invalid token: %v", err)
				unauthorized(w, "Unauthorized: Invalid or expired token")
				return
			}

			if users != nil {
				ok, err := users.Exists(r.Context(), userID)
				if err != nil {
					logger.Sugar.Errorf("Failed to look up user %d: %v", userID, err)
					response.Error(w, http.StatusInternalServerError, "Authentication failed", nil, "INTERNAL_SERVER_ERROR")
					return
				}
				if !ok {
					unauthorized(w, "Unauthorized: User no longer exists")
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			session := r.Header.Get(SessionHeader)
			if session == "" {
				session = r.URL.Query().Get("session_id")
			}
			ctx = context.WithValue(ctx, SessionIDKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id, or 0 outside AuthMiddleware.
func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(UserIDKey).(int64)
	return id
}

// SessionID returns the caller's session id, which may be empty.
func SessionID(ctx context.Context) string {
	s, _ := ctx.Value(SessionIDKey).(string)
	return s
}
