package middleware

import (
	"context"
	"net/http"
	"strings"

	"wellping/internal/model"
)

type contextKey string

const (
	UsernameKey contextKey = "username"
	StudyIDKey  contextKey = "studyId"
)

// TokenValidator validates participant tokens.
type TokenValidator interface {
	ValidateToken(token string) (*model.ParticipantClaims, error)
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	tokens TokenValidator
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireParticipant validates the participant JWT from the Authorization
// header or the token query parameter.
func (m *AuthMiddleware) RequireParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			writeUnauthorized(w, "missing authorization")
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, claims.Username)
		ctx = context.WithValue(ctx, StudyIDKey, claims.StudyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUsername extracts the participant's username from context
func GetUsername(ctx context.Context) string {
	if v, ok := ctx.Value(UsernameKey).(string); ok {
		return v
	}
	return ""
}

// GetStudyID extracts the study ID from context
func GetStudyID(ctx context.Context) string {
	if v, ok := ctx.Value(StudyIDKey).(string); ok {
		return v
	}
	return ""
}

// ExtractToken reads a bearer token, falling back to the token query
// parameter used by WebSocket clients.
func ExtractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
