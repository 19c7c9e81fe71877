package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/application"
	"github.com/example/courtboard/internal/availability"
	"github.com/example/courtboard/internal/waitlist"
)

type boardService interface {
	Board(ctx context.Context) (application.Board, error)
	Offerable(ctx context.Context, mode availability.Mode) ([]int, error)
}

// BoardHandler serves read-only views of the court pool.
type BoardHandler struct {
	service    boardService
	now        func() time.Time
	avgMinutes int
	responder  responder
	logger     *slog.Logger
}

func NewBoardHandler(service boardService, now func() time.Time, avgMinutes int, logger *slog.Logger) *BoardHandler {
	if now == nil {
		now = time.Now
	}
	base := defaultLogger(logger)
	return &BoardHandler{service: service, now: now, avgMinutes: avgMinutes, responder: newResponder(base), logger: base}
}

func (h *BoardHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BoardHandler", operation, attrs...)
}

// Health handles GET /health.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Board handles GET /board.
func (h *BoardHandler) Board(c echo.Context) error {
	ctx := c.Request().Context()
	board, err := h.service.Board(ctx)
	if err != nil {
		h.log(ctx, "Board").ErrorContext(ctx, "board unavailable", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, board)
}

// Offerable handles GET /courts/offerable?mode=strict|lookahead.
func (h *BoardHandler) Offerable(c echo.Context) error {
	ctx := c.Request().Context()
	mode, err := availability.ParseMode(c.QueryParam("mode"))
	if err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidMode)
	}
	courts, err := h.service.Offerable(ctx, mode)
	if err != nil {
		h.log(ctx, "Offerable", "mode", mode).ErrorContext(ctx, "offerable lookup failed", "error", err)
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, offerableResponse{Mode: string(mode), Courts: nonNilInts(courts)})
}

// Estimate handles POST /estimate, exposing the estimator on caller data.
func (h *BoardHandler) Estimate(c echo.Context) error {
	var req estimateRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	avg := req.AvgMinutes
	if avg <= 0 {
		avg = h.avgMinutes
	}
	now := h.now()
	if req.Now != nil {
		now = *req.Now
	}
	etas := waitlist.EstimateWait(now, req.Positions, req.CurrentFreeCount, req.NextFree, avg)
	return h.responder.writeJSON(c, http.StatusOK, estimateResponse{ETAs: etas})
}

type offerableResponse struct {
	Mode   string `json:"mode"`
	Courts []int  `json:"courts"`
}

type estimateRequest struct {
	Now              *time.Time  `json:"now"`
	Positions        []int       `json:"positions"`
	CurrentFreeCount int         `json:"current_free_count"`
	NextFree         []time.Time `json:"next_free"`
	AvgMinutes       int         `json:"avg_minutes"`
}

type estimateResponse struct {
	ETAs []int `json:"etas"`
}
