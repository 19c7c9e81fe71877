package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/application"
	"github.com/example/courtboard/internal/logging"
	"github.com/example/courtboard/internal/waitlist"
)

var (
	errBadRequestBody   = errors.New("The request body is not valid JSON.")
	errInvalidCourtID   = errors.New("The court number must be a positive integer.")
	errInvalidMode      = errors.New("Mode must be strict or lookahead.")
	errMissingAuthToken = errors.New("An admin token is required.")
	errInvalidAuthToken = errors.New("The admin token is invalid or expired. Please log in again.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(c echo.Context, status int, payload any) error {
	if status == http.StatusNoContent || payload == nil {
		return c.NoContent(status)
	}
	return c.JSON(status, payload)
}

func (r responder) writeError(c echo.Context, status int, err error) error {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(c.Request().Context()).ErrorContext(c.Request().Context(), "request failed", "status", status, "error", err)
	}
	return r.writeJSON(c, status, errorResponse{Message: message})
}

// handleServiceError maps application errors onto status codes. The body
// always carries the stable reason as error_code.
func (r responder) handleServiceError(c echo.Context, err error) error {
	if err == nil {
		return r.writeError(c, http.StatusInternalServerError, errors.New("unknown error"))
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: string(application.ReasonInvalidInput),
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    localizeValidationErrors(vErr),
		})
	}

	var rErr *application.RejectionError
	if errors.As(err, &rErr) {
		return r.writeJSON(c, reasonStatus(rErr.Reason), errorResponse{
			ErrorCode: string(rErr.Reason),
			Message:   reasonMessage(rErr),
			Court:     rErr.Court,
			Position:  rErr.Position,
		})
	}

	ctx := c.Request().Context()
	r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
	return r.writeJSON(c, http.StatusInternalServerError, errorResponse{
		ErrorCode: string(application.ReasonUnexpected),
		Message:   statusMessage(http.StatusInternalServerError),
	})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func reasonStatus(reason application.Reason) int {
	switch reason {
	case application.ReasonInvalidInput:
		return http.StatusUnprocessableEntity
	case application.ReasonNotFound:
		return http.StatusNotFound
	case application.ReasonWriteRefused, application.ReasonStaleSnapshot:
		return http.StatusServiceUnavailable
	case application.ReasonUnexpected:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func reasonMessage(rErr *application.RejectionError) string {
	switch rErr.Reason {
	case application.ReasonDuplicatePlaying:
		return "A player in this group is already on a court."
	case application.ReasonDuplicateQueued:
		return "A player in this group is already on the waitlist."
	case application.ReasonPriorityViolation:
		return "Groups on the waitlist have priority for the next court."
	case application.ReasonTargetUnavailable:
		return "That court cannot be assigned right now."
	case application.ReasonActiveSessionPresent:
		return "That court is still in play."
	case application.ReasonNotOccupied:
		return "That court is not in use."
	case application.ReasonCourtAvailable:
		return "A court is available now; assign it instead of joining the waitlist."
	case application.ReasonNotFound:
		return statusMessage(http.StatusNotFound)
	case application.ReasonWriteRefused, application.ReasonStaleSnapshot:
		return "The board changed while saving. Refresh and try again."
	default:
		return statusMessage(reasonStatus(rErr.Reason))
	}
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "The request is malformed."
	case http.StatusUnauthorized:
		return "Authentication is required."
	case http.StatusForbidden:
		return "You are not allowed to perform this action."
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusMethodNotAllowed:
		return "Method not allowed."
	case http.StatusConflict:
		return "The request conflicts with the current state of the board."
	case http.StatusUnprocessableEntity:
		return "Some fields are invalid."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable."
	default:
		return "An internal server error occurred."
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case waitlist.MsgGroupRequired:
		return "Enter at least one player."
	case waitlist.MsgGroupTooLarge:
		return "Too many players for one court."
	case waitlist.MsgNameRequired:
		return "Player name is required."
	case waitlist.MsgDuplicateInGrp:
		return "The same player is listed twice."
	case waitlist.MsgGuestsNegative:
		return "Guest count cannot be negative."
	case "end must be after start":
		return "The end time must be after the start time."
	case "start and end are required":
		return "Start and end times are required."
	case "reason is required":
		return "Enter a reason for the block."
	default:
		if strings.HasPrefix(message, "court must be between") {
			return "Court " + strings.TrimPrefix(message, "court ")
		}
		if strings.HasPrefix(message, "duration must be between") {
			return "Duration " + strings.TrimPrefix(message, "duration ")
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Court     int               `json:"court,omitempty"`
	Position  int               `json:"position,omitempty"`
}

// errorHandler renders echo's own errors (unknown route, wrong method, bind
// failures) in the same body shape as service errors.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	resp := newResponder(logger)
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		if status >= http.StatusInternalServerError {
			ctx := c.Request().Context()
			resp.loggerFor(ctx).ErrorContext(ctx, "unhandled error", "error", err)
		}
		_ = resp.writeJSON(c, status, errorResponse{Message: statusMessage(status)})
	}
}
