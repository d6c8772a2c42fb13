package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, Identity) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Identity
	handler := mw(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, got
}

func TestMiddleware_ValidToken(t *testing.T) {
	pid := uuid.New()
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:      RolePatient,
		PatientID: pid.String(),
	})

	rec, id := doRequest(t, Middleware(testSecret), "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if id.Role != RolePatient {
		t.Errorf("expected role patient, got %q", id.Role)
	}
	if id.PatientID != pid {
		t.Errorf("expected patient id %s, got %s", pid, id.PatientID)
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	rec, _ := doRequest(t, Middleware(testSecret), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: RoleDoctor,
	})

	rec, _ := doRequest(t, Middleware(testSecret), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_WrongSecret(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	})
	s, err := tok.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec, _ := doRequest(t, Middleware(testSecret), "Bearer "+s)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		role     string
		required []string
		want     int
	}{
		{RoleAdmin, []string{RoleDoctor}, http.StatusOK},
		{RoleDoctor, []string{RoleDoctor}, http.StatusOK},
		{RoleReceptionist, []string{RoleDoctor, RoleReceptionist}, http.StatusOK},
		{RolePatient, []string{RoleDoctor}, http.StatusForbidden},
		{"", []string{RoleReceptionist}, http.StatusForbidden},
	}

	for _, tc := range cases {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(context.Background(), Identity{Subject: "u", Role: tc.role}))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := RequireRole(tc.required...)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := handler(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		if rec.Code != tc.want {
			t.Errorf("role %q requiring %v: expected %d, got %d", tc.role, tc.required, tc.want, rec.Code)
		}
	}
}
