package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"arbiter/internal/common/http/middleware"
)

const authSecret = "shared-secret"

func authRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/internal/ping", middleware.ServiceAuthMiddleware(authSecret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("service_name"))
	})
	return router
}

func mintToken(t *testing.T, secret, subject string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now.Add(-ttl)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestServiceAuthAcceptsValidToken(t *testing.T) {
	router := authRouter(t)
	token := mintToken(t, authSecret, "judge-worker", time.Minute)

	rec := doRequest(router, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "judge-worker" {
		t.Fatalf("service name = %q, want judge-worker", rec.Body.String())
	}
}

func TestServiceAuthRejectsMissingToken(t *testing.T) {
	rec := doRequest(authRouter(t), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServiceAuthRejectsWrongSecret(t *testing.T) {
	token := mintToken(t, "other-secret", "judge-worker", time.Minute)

	rec := doRequest(authRouter(t), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServiceAuthRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "judge-worker",
		IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(authSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec := doRequest(authRouter(t), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServiceAuthRejectsEmptySubject(t *testing.T) {
	token := mintToken(t, authSecret, "", time.Minute)

	rec := doRequest(authRouter(t), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
