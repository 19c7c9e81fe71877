package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/auth"
	"github.com/example/courtboard/internal/logging"
)

// TokenParser verifies admin bearer tokens.
type TokenParser interface {
	Parse(raw string) (auth.Claims, error)
}

// RequireAdmin rejects requests without a valid admin bearer token and
// attaches the verified claims to the request context.
func RequireAdmin(parser TokenParser, logger *slog.Logger) echo.MiddlewareFunc {
	resp := newResponder(logger)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearerToken(c.Request())
			if token == "" {
				return resp.writeJSON(c, http.StatusUnauthorized, errorResponse{
					ErrorCode: "unauthorized",
					Message:   errMissingAuthToken.Error(),
				})
			}

			claims, err := parser.Parse(token)
			if err != nil || claims.Role != auth.RoleAdmin {
				ctx := c.Request().Context()
				resp.loggerFor(ctx).WarnContext(ctx, "admin token rejected", "error", err)
				return resp.writeJSON(c, http.StatusUnauthorized, errorResponse{
					ErrorCode: "unauthorized",
					Message:   errInvalidAuthToken.Error(),
				})
			}

			ctx := ContextWithAdmin(c.Request().Context(), claims)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequestLogger attaches a per-request logger with a monotonically
// increasing request_id and logs start and completion.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := counter.Add(1)
			r := c.Request()
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			c.SetRequest(r.WithContext(ctx))
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			if err := next(c); err != nil {
				c.Error(err)
			}
			logger.InfoContext(ctx, "request completed", "status", c.Response().Status, "duration", time.Since(start))
			return nil
		}
	}
}

func extractBearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
