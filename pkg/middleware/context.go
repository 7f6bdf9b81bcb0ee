// Package middleware provides the echo middleware chain: request context
// seeding, access logging and the JSON error handler.
package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	trellisctx "github.com/Ramsey-B/trellis/pkg/context"
)

// Tenancy and identity headers. Every /api/v1 route is tenant-scoped;
// handlers read the tenant from the request context, never from headers.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// Context seeds the request context with the request id, tenant, user and
// transport details so repositories and the error handler can log them
// without touching echo.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			// echo the id back so callers can correlate retries
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = trellisctx.SetRequestID(ctx, requestID)
			ctx = trellisctx.SetMethod(ctx, req.Method)
			ctx = trellisctx.SetRoute(ctx, c.Path())
			ctx = trellisctx.SetRemoteIP(ctx, c.RealIP())
			ctx = trellisctx.SetTenantID(ctx, req.Header.Get(HeaderTenantID))
			ctx = trellisctx.SetUserID(ctx, req.Header.Get(HeaderUserID))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
