package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/api/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-test-secret-that-is-at-least-32-bytes"

func issue(t *testing.T, secret string, owner uuid.UUID, now time.Time, ttl time.Duration) string {
	t.Helper()
	token, err := IssueToken(secret, owner, now, ttl)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	now := time.Now()

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   owner.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: owner.String(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid header token",
			header:     "Bearer " + issue(t, testSecret, owner, now, time.Hour),
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid query token",
			query:      issue(t, testSecret, owner, now, time.Hour),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Authorization required",
		},
		{
			name:       "invalid format",
			header:     "Token abc",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Authorization required",
		},
		{
			name:       "expired token",
			header:     "Bearer " + issue(t, testSecret, owner, now.Add(-2*time.Hour), time.Hour),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Token expired",
		},
		{
			name:       "wrong secret",
			header:     "Bearer " + issue(t, "another-secret-that-is-32-bytes-long!", owner, now, time.Hour),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
		{
			name:       "unsigned token",
			header:     "Bearer " + noneToken,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
		{
			name:       "subject is not a uuid",
			header:     "Bearer " + badSubject,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
		{
			name:       "no expiry",
			header:     "Bearer " + noExpiry,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = shared.GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			target := "/api/tasks"
			if tc.query != "" {
				target += "?" + AccessTokenQueryParam + "=" + tc.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			NewAuthMiddleware(testSecret).Authenticate(next).ServeHTTP(w, r)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, owner, got)
				return
			}
			assert.Contains(t, w.Body.String(), tc.wantBody)
			assert.NotContains(t, w.Body.String(), testSecret)
		})
	}
}

func TestAuthMiddleware_ClockSkew(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	now := time.Now()
	m := NewAuthMiddleware(testSecret)
	m.timeFunc = func() time.Time { return now }

	// Expired ten seconds ago, inside the default leeway.
	token := issue(t, testSecret, owner, now.Add(-time.Hour-10*time.Second), time.Hour)
	got, err := m.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	m.clockSkew = 0
	_, err = m.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
