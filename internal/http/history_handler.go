package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/persistence/sqlstore"
	"github.com/example/courtboard/internal/queue"
)

type historyReader interface {
	ListHistory(ctx context.Context, filter sqlstore.HistoryFilter) ([]queue.SessionArchivedEvent, error)
}

// HistoryHandler exposes the archived-session log kept by the SQL store.
type HistoryHandler struct {
	reader    historyReader
	responder responder
	logger    *slog.Logger
}

func NewHistoryHandler(reader historyReader, logger *slog.Logger) *HistoryHandler {
	base := defaultLogger(logger)
	return &HistoryHandler{reader: reader, responder: newResponder(base), logger: base}
}

// List handles GET /admin/history?court=N&limit=N.
func (h *HistoryHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	filter := sqlstore.HistoryFilter{}
	if v := c.QueryParam("court"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 1 {
			return h.responder.writeError(c, http.StatusBadRequest, errInvalidCourtID)
		}
		filter.Court = id
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return h.responder.writeError(c, http.StatusBadRequest, nil)
		}
		filter.Limit = limit
	}

	events, err := h.reader.ListHistory(ctx, filter)
	if err != nil {
		handlerLogger(ctx, h.logger, "HistoryHandler", "List").ErrorContext(ctx, "history query failed", "error", err)
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, historyResponse{Sessions: events})
}

type historyResponse struct {
	Sessions []queue.SessionArchivedEvent `json:"sessions"`
}
