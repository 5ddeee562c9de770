package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"church-admin-api/internal/model"
	"church-admin-api/internal/token"
)

type userResolver interface {
	VerifyAccessToken(tokenString string) (*token.Claims, error)
	ResolveActiveUser(ctx context.Context, userID string) (model.User, error)
}

type auditor interface {
	Record(ctx context.Context, actorID *string, action string, subject string, detail string) error
}

type contextKey string

const authUserContextKey contextKey = "auth_user"

type AuthMiddleware struct {
	resolver userResolver
	audit    auditor
}

func NewAuthMiddleware(resolver userResolver, audit auditor) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver, audit: audit}
}

// RequireAuth authenticates the bearer token and resolves the live user row,
// so role and active changes apply on the next request rather than at token
// expiry. Each failure mode gets its own message.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, errMessage := m.resolve(r)
		if errMessage != "" {
			writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", errMessage)
			return
		}

		ctx := context.WithValue(r.Context(), authUserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth resolves the user when a valid token is present and proceeds
// unauthenticated otherwise; no failure is reported to the client.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, errMessage := m.resolve(r)
		if errMessage == "" {
			r = r.WithContext(context.WithValue(r.Context(), authUserContextKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) resolve(r *http.Request) (model.User, string) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return model.User{}, "missing or invalid authorization header"
	}

	tokenString := strings.TrimSpace(header[7:])
	claims, err := m.resolver.VerifyAccessToken(tokenString)
	if err != nil {
		if errors.Is(err, model.ErrTokenExpired) {
			return model.User{}, "token expired"
		}
		return model.User{}, "invalid token"
	}

	user, err := m.resolver.ResolveActiveUser(r.Context(), claims.UserID)
	if err != nil {
		// ResolveActiveUser distinguishes unknown and inactive users.
		return model.User{}, err.Error()
	}

	return user, ""
}

// RequireRoles gates an already-authenticated request on role membership.
// Denials are logged and audited with the actor, required roles and path.
func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	roleSet := map[string]struct{}{}
	for _, role := range allowedRoles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			if _, allowed := roleSet[strings.ToLower(user.Role)]; !allowed {
				slog.Warn("forbidden access attempt",
					"user_id", user.ID, "role", user.Role,
					"required_roles", strings.Join(allowedRoles, ","),
					"path", r.URL.Path, "method", r.Method)
				if m.audit != nil {
					if auditErr := m.audit.Record(r.Context(), &user.ID, "auth.forbidden", r.URL.Path, user.Role); auditErr != nil {
						slog.Warn("audit record failed", "action", "auth.forbidden", "error", auditErr)
					}
				}
				writeGuardError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireRoles(model.RoleAdmin)(next)
}

func (m *AuthMiddleware) RequireAdminOrSecretary(next http.Handler) http.Handler {
	return m.RequireRoles(model.RoleAdmin, model.RoleSecretary)(next)
}

func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(authUserContextKey).(model.User)
	return user, ok
}

func writeGuardError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
