package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/auth"
)

type authenticator interface {
	Login(passcode string) (string, time.Time, error)
}

// AuthHandler exchanges the admin passcode for a bearer token.
type AuthHandler struct {
	auth      authenticator
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(a authenticator, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{auth: a, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// Login handles POST /admin/login.
func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		h.log(ctx, "Login", "error_kind", "bad_request").ErrorContext(ctx, "failed to decode login request", "error", err)
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	logger := h.log(ctx, "Login")
	token, expires, err := h.auth.Login(req.Passcode)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPasscode) {
			logger.WarnContext(ctx, "admin login rejected", "error_kind", "invalid_passcode")
			return h.responder.writeJSON(c, http.StatusUnauthorized, errorResponse{
				ErrorCode: "invalid-passcode",
				Message:   "The passcode is incorrect.",
			})
		}
		logger.ErrorContext(ctx, "admin login failed", "error", err)
		return h.responder.writeError(c, http.StatusInternalServerError, nil)
	}

	logger.InfoContext(ctx, "admin logged in", "expires_at", expires)
	return h.responder.writeJSON(c, http.StatusCreated, loginResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339Nano),
	})
}

type loginRequest struct {
	Passcode string `json:"passcode"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
