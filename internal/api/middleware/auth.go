package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/api/shared"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
)

// Token validation errors.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token is expired")
)

// DefaultClockSkew is the leeway applied to time-based claims.
const DefaultClockSkew = 30 * time.Second

// AccessTokenQueryParam carries the token for streaming clients that cannot
// set request headers (EventSource, browser WebSockets).
const AccessTokenQueryParam = "access_token"

// AuthMiddleware verifies HS256 bearer tokens and places the subject, the
// task owner id, in the request context.
type AuthMiddleware struct {
	signingKey []byte
	clockSkew  time.Duration
	timeFunc   func() time.Time
}

// NewAuthMiddleware creates an AuthMiddleware for the given shared secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		signingKey: []byte(secret),
		clockSkew:  DefaultClockSkew,
		timeFunc:   time.Now,
	}
}

// Authenticate validates the bearer token and adds the owner id to the
// request context for authorized requests.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization required")
			return
		}

		ownerID, err := m.ValidateToken(r.Context(), token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "Token expired"
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, msg, err, shared.WithElevatedLogLevel())
			return
		}

		ctx := context.WithValue(r.Context(), shared.UserIDContextKey, ownerID)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("owner_id", ownerID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateToken parses tokenString and returns the owner id held in its
// subject claim.
func (m *AuthMiddleware) ValidateToken(ctx context.Context, tokenString string) (uuid.UUID, error) {
	log := logger.FromContext(ctx)
	now := m.timeFunc()

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			log.Debug("token validation failed: token expired")
			return uuid.Nil, ErrExpiredToken
		}
		log.Debug("token validation failed", "error_type", fmt.Sprintf("%T", err))
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	ownerID, err := uuid.Parse(claims.Subject)
	if err != nil || ownerID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not an owner id", ErrInvalidToken)
	}
	return ownerID, nil
}

// IssueToken signs an HS256 token for ownerID valid for ttl from now.
func IssueToken(secret string, ownerID uuid.UUID, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   ownerID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get(AccessTokenQueryParam); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMissingToken
	}
	return parts[1], nil
}
