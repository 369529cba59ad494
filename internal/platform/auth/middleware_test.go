package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func invoke(mw echo.MiddlewareFunc, authHeader string) (Actor, int) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Actor
	handler := mw(func(c echo.Context) error {
		got = ActorFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	err := handler(c)
	status := rec.Code
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
	}
	return got, status
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: 2,
		Role:     "franchise_admin",
	})
	actor, status := invoke(mw, "Bearer "+token)
	if status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if actor.UserID != "user-7" || actor.Role != RoleFranchiseAdmin || actor.TenantID != 2 {
		t.Errorf("actor: %+v", actor)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	_, status := invoke(mw, "")
	if status != http.StatusUnauthorized {
		t.Errorf("status %d", status)
	}
}

func TestJWTMiddleware_BadToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	_, status := invoke(mw, "Bearer not.a.token")
	if status != http.StatusUnauthorized {
		t.Errorf("status %d", status)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: "admin",
	})
	_, status := invoke(mw, "Bearer "+token)
	if status != http.StatusUnauthorized {
		t.Errorf("status %d", status)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	actor, status := invoke(DevAuthMiddleware(), "")
	if status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if actor.Role != RoleAdmin {
		t.Errorf("dev actor role: %s", actor.Role)
	}
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole(RoleFranchiseAdmin)

	run := func(role Role) int {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), Actor{Role: role}))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
		if he, ok := err.(*echo.HTTPError); ok {
			return he.Code
		}
		return rec.Code
	}

	if run(RoleFranchiseAdmin) != http.StatusOK {
		t.Error("franchise_admin should pass")
	}
	if run(RoleAdmin) != http.StatusOK {
		t.Error("admin should always pass")
	}
	if run(RoleOther) != http.StatusForbidden {
		t.Error("other should be rejected")
	}
}
