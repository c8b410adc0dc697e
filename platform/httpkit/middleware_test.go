package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

type jwtConfig struct{}

func (jwtConfig) GetJWTAccessSecret() string { return testSecret }

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter(seen *Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthRequired(jwtConfig{}), func(c *gin.Context) {
		*seen = GetIdentity(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthRequiredPopulatesIdentity(t *testing.T) {
	var seen Identity
	r := newAuthRouter(&seen)

	userID := uuid.New()
	agencyID := uuid.New()
	token := signToken(t, jwt.MapClaims{
		"sub":       userID.String(),
		"tenant_id": agencyID.String(),
		"roles":     []string{"agent"},
		"type":      "access",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen.UserID() != userID {
		t.Fatalf("unexpected user id %s", seen.UserID())
	}
	if seen.AgencyID() == nil || *seen.AgencyID() != agencyID {
		t.Fatalf("unexpected agency id %v", seen.AgencyID())
	}
	if !seen.HasRole("agent") {
		t.Fatalf("expected agent role, got %v", seen.Roles())
	}
}

func TestAuthRequiredRejectsRefreshTokens(t *testing.T) {
	var seen Identity
	r := newAuthRouter(&seen)

	token := signToken(t, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"type": "refresh",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	var seen Identity
	r := newAuthRouter(&seen)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
