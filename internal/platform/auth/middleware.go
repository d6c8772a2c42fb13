package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "auth_identity"

const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleReceptionist = "receptionist"
	RolePatient      = "patient"
)

type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	PatientID string `json:"patient_id,omitempty"`
	DoctorID  string `json:"doctor_id,omitempty"`
}

// Identity is the authenticated requester, threaded through the request
// context for ownership checks in services.
type Identity struct {
	Subject   string
	Role      string
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// IsStaff reports whether the requester acts on behalf of the clinic rather
// than a single patient.
func (i Identity) IsStaff() bool {
	return i.Role == RoleAdmin || i.Role == RoleDoctor || i.Role == RoleReceptionist
}

// Middleware parses and verifies the bearer token and stores the Identity in
// the request context. Requests without a valid token are rejected.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id := Identity{Subject: claims.Subject, Role: claims.Role}
			if claims.PatientID != "" {
				id.PatientID, _ = uuid.Parse(claims.PatientID)
			}
			if claims.DoctorID != "" {
				id.DoctorID, _ = uuid.Parse(claims.DoctorID)
			}

			ctx := WithIdentity(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("auth_subject", id.Subject)
			return next(c)
		}
	}
}

// DevMiddleware grants every request admin access. Development only.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := Identity{Subject: "dev", Role: RoleAdmin}
			ctx := WithIdentity(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("auth_subject", id.Subject)
			return next(c)
		}
	}
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated requester, or a zero Identity
// when the request was not authenticated.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}
