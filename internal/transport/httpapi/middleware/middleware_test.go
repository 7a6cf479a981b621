package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shed3/investment-accountant/pkg/logger"
)

const testSecret = "test-secret-key-minimum-32-characters-long-for-security"

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// ============================================================================
// JWT
// ============================================================================

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateToken("importer", "write")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "importer", claims.Subject)
	assert.Equal(t, "write", claims.Scope)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestJWTService_EmptySubjectGetsID(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateToken("", "")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Len(t, claims.Subject, 36)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(testSecret)

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	now := time.Now()

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "wrong secret",
			token: sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}, jwt.SigningMethodHS256, []byte("another-secret")),
		},
		{
			name:  "expired",
			token: sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour))}}, jwt.SigningMethodHS256, []byte(testSecret)),
		},
		{
			name:  "no expiry",
			token: sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a"}}, jwt.SigningMethodHS256, []byte(testSecret)),
		},
		{
			name:  "no subject",
			token: sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}, jwt.SigningMethodHS256, []byte(testSecret)),
		},
		{
			name:  "other algorithm",
			token: sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}, jwt.SigningMethodHS512, []byte(testSecret)),
		},
		{
			name:  "garbage",
			token: "not.a.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	svc := NewJWTService(testSecret)
	token, err := svc.GenerateToken("importer", "")
	require.NoError(t, err)

	var subject string
	h := JWTMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = GetSubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
	assert.Equal(t, "importer", subject)
}

// ============================================================================
// Rate limiting
// ============================================================================

func TestRateLimit_PerClient(t *testing.T) {
	h := RateLimit(0.001, 1)(okHandler)

	call := func(addr, fwd string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if fwd != "" {
			req.Header.Set("X-Forwarded-For", fwd)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", "").Code)

	rec := call("10.0.0.1:2000", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000", "").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", "203.0.113.9, 10.0.0.1").Code)
}

func TestRateLimiter_Evict(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.getVisitor("a")
	rl.getVisitor("b")

	rl.evict(time.Now().Add(time.Hour))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.visitors)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 198.51.100.1 , 192.0.2.7")
	assert.Equal(t, "198.51.100.1", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", clientIP(req))
}

// ============================================================================
// Recovery
// ============================================================================

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

// ============================================================================
// Request logging
// ============================================================================

func TestLogger_LevelsAndErrorCode(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		level  string
		err    string
	}{
		{"success", http.StatusCreated, `{"processed":1}`, "INFO", ""},
		{"client error", http.StatusUnprocessableEntity, `{"error":"not enough lots","code":"INSUFFICIENT_TAX_LOTS"}`, "WARN", "INSUFFICIENT_TAX_LOTS: not enough lots"},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "ERROR", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.NewWithFormat("production", "", &buf)

			h := Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/transactions", nil))

			var rec map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tt.level, rec["level"])
			assert.EqualValues(t, tt.status, rec["status"])
			if tt.err == "" {
				assert.NotContains(t, rec, "error")
			} else {
				assert.Equal(t, tt.err, rec["error"])
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "", errorMessage([]byte("not json")))
	assert.Equal(t, "", errorMessage([]byte(`{"code":"X"}`)))
	assert.Equal(t, "bad", errorMessage([]byte(`{"error":"bad"}`)))
}
