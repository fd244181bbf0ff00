package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/auth"
	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", AccessTTL: time.Hour}

type captured struct {
	called bool
	user   string
	role   string
	store  string
}

func capture(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.user = UserIDFromContext(r.Context())
		c.role = RoleFromContext(r.Context())
		c.store = StoreIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	var c captured
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(capture(&c)).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if c.called {
		t.Fatal("handler should not run")
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	var c captured
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(capture(&c)).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	storeID := uuid.New()
	token := mintTestToken(t, enums.UserRoleSeller, &storeID)

	var c captured
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(capture(&c)).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if c.user == "" {
		t.Fatal("expected user id in context")
	}
	if c.role != string(enums.UserRoleSeller) {
		t.Fatalf("expected role seller got %s", c.role)
	}
	if c.store != storeID.String() {
		t.Fatalf("expected store %s got %s", storeID, c.store)
	}
}

func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	var c captured
	resp := httptest.NewRecorder()
	OptionalAuth(testJWT, nil)(capture(&c)).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if c.user != "" {
		t.Fatalf("expected anonymous request, got user %s", c.user)
	}

	token := mintTestToken(t, enums.UserRoleCustomer, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	OptionalAuth(testJWT, nil)(capture(&c)).ServeHTTP(httptest.NewRecorder(), req)
	if c.user == "" || c.store != "" {
		t.Fatalf("unexpected identity user=%q store=%q", c.user, c.store)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	resp = httptest.NewRecorder()
	OptionalAuth(testJWT, nil)(capture(&c)).ServeHTTP(resp, bad)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token got %d", resp.Code)
	}
}

func TestRequireRole(t *testing.T) {
	var c captured
	mw := RequireRole(nil, enums.UserRoleSeller, enums.UserRoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.UserRoleCustomer)))
	resp := httptest.NewRecorder()
	mw(capture(&c)).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.UserRoleAdmin)))
	resp = httptest.NewRecorder()
	mw(capture(&c)).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func mintTestToken(t *testing.T, role enums.UserRole, storeID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:  uuid.New(),
		StoreID: storeID,
		Role:    role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
