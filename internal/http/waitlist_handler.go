package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/application"
	"github.com/example/courtboard/internal/court"
)

type waitlistService interface {
	Board(ctx context.Context) (application.Board, error)
	Enqueue(ctx context.Context, params application.EnqueueParams) (application.EnqueueResult, error)
	Withdraw(ctx context.Context, entryID string) (court.Snapshot, error)
}

// WaitlistHandler serves the queue of waiting groups.
type WaitlistHandler struct {
	service   waitlistService
	responder responder
	logger    *slog.Logger
}

func NewWaitlistHandler(service waitlistService, logger *slog.Logger) *WaitlistHandler {
	base := defaultLogger(logger)
	return &WaitlistHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *WaitlistHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "WaitlistHandler", operation, attrs...)
}

// List handles GET /waitlist: entries in order with estimated waits.
func (h *WaitlistHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	board, err := h.service.Board(ctx)
	if err != nil {
		h.log(ctx, "List").ErrorContext(ctx, "waitlist unavailable", "error", err)
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, waitlistResponse{Waitlist: board.Waitlist, MustWait: board.MustWait})
}

// Join handles POST /waitlist. Force is ignored here.
func (h *WaitlistHandler) Join(c echo.Context) error {
	return h.join(c, false)
}

// AdminJoin handles POST /admin/waitlist, honoring force.
func (h *WaitlistHandler) AdminJoin(c echo.Context) error {
	return h.join(c, true)
}

func (h *WaitlistHandler) join(c echo.Context, admin bool) error {
	ctx := c.Request().Context()
	var req joinRequest
	if err := c.Bind(&req); err != nil {
		h.log(ctx, "Join", "error_kind", "bad_request").ErrorContext(ctx, "failed to decode waitlist request", "error", err)
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	logger := h.log(ctx, "Join", "group_size", len(req.Players), "admin", admin)
	result, err := h.service.Enqueue(ctx, application.EnqueueParams{
		Participants: req.Players,
		Guests:       req.Guests,
		Force:        admin && req.Force,
	})
	if err != nil {
		logger.ErrorContext(ctx, "join failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}

	logger.InfoContext(ctx, "group joined waitlist", "entry_id", result.Entry.ID, "position", result.Position)
	return h.responder.writeJSON(c, http.StatusCreated, joinResponse{Entry: result.Entry, Position: result.Position})
}

// Withdraw handles DELETE /waitlist/:id.
func (h *WaitlistHandler) Withdraw(c echo.Context) error {
	ctx := c.Request().Context()
	id := strings.TrimSpace(c.Param("id"))
	logger := h.log(ctx, "Withdraw", "entry_id", id)

	if _, err := h.service.Withdraw(ctx, id); err != nil {
		logger.ErrorContext(ctx, "withdraw failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	logger.InfoContext(ctx, "group withdrawn")
	return h.responder.writeJSON(c, http.StatusNoContent, nil)
}

type waitlistResponse struct {
	Waitlist []application.WaitlistView `json:"waitlist"`
	MustWait bool                       `json:"mustWait"`
}

type joinRequest struct {
	Players []court.Participant `json:"players"`
	Guests  int                 `json:"guests"`
	Force   bool                `json:"force"`
}

type joinResponse struct {
	Entry    court.WaitlistEntry `json:"entry"`
	Position int                 `json:"position"`
}
