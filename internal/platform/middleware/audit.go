package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AuditRecorder persists audit entries for mutating requests. Implementations
// must be best effort: recording failures never fail the request.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType string, entityID *uuid.UUID, before, after interface{})
}

var auditActions = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

// Audit returns middleware that records every successful mutating API
// request: who did it, the action, and the entity touched. Reads are not
// recorded. The entity type is taken from the first path segment after the
// API prefix, the entity id from the :id route parameter when present.
func Audit(rec AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			action, ok := auditActions[c.Request().Method]
			if !ok || err != nil || c.Response().Status >= http.StatusBadRequest {
				return err
			}

			entityType := entityTypeFromPath(c.Request().URL.Path)
			var entityID *uuid.UUID
			if raw := c.Param("id"); raw != "" {
				if id, parseErr := uuid.Parse(raw); parseErr == nil {
					entityID = &id
				}
			}
			rec.Record(c.Request().Context(), action, entityType, entityID, nil, nil)
			return nil
		}
	}
}

func entityTypeFromPath(path string) string {
	path = strings.TrimPrefix(path, "/api/v1/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
