package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"terrier/pkg/domain"
	"terrier/pkg/requestcontext"
)

// Claims are the identity facts the external identity collaborator encodes
// into each access token: who is calling, in what role, and for registrars
// their rank.
type Claims struct {
	Actor domain.ActorRef
	Role  domain.Role
	Rank  string
}

// TokenValidator validates a bearer token into Claims.
type TokenValidator interface {
	Validate(tokenString string) (Claims, error)
}

// JWTValidator checks HS256 tokens using the shared signing key.
type JWTValidator struct {
	key []byte
}

func NewJWTValidator(key []byte) *JWTValidator {
	return &JWTValidator{key: key}
}

func (v *JWTValidator) Validate(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("unexpected claims type")
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return Claims{}, fmt.Errorf("token missing subject")
	}
	actor, err := domain.ParseActorRef(subject)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid subject: %w", err)
	}

	roleClaim, _ := mapClaims["role"].(string)
	role, err := domain.ParseRole(roleClaim)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid role claim: %w", err)
	}

	rank, _ := mapClaims["rank"].(string)
	return Claims{Actor: actor, Role: role, Rank: rank}, nil
}

func writeAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, code, description))
}

// RequireAuth validates the bearer token and injects the actor identity into
// the request context for services to read.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx))
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx))
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.Actor, claims.Role)
			if claims.Rank != "" {
				ctx = requestcontext.WithRegistrarRank(ctx, claims.Rank)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers whose role is not in the allowed
// set. Must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := requestcontext.Role(ctx)
			if !allowed[role] {
				logger.WarnContext(ctx, "forbidden access",
					"role", role,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx))
				writeAuthError(w, http.StatusForbidden, "forbidden", "Caller role is not permitted for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
