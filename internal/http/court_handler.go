package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/application"
	"github.com/example/courtboard/internal/court"
)

type courtService interface {
	Allocate(ctx context.Context, params application.AllocateParams) (application.AllocationResult, error)
	Release(ctx context.Context, params application.ReleaseParams) (application.ReleaseResult, error)
	MarkWet(ctx context.Context, id int) (court.Snapshot, error)
	ClearWet(ctx context.Context, id int) (court.Snapshot, error)
	ClearAllWet(ctx context.Context) (court.Snapshot, error)
	AutoClearOverdue(ctx context.Context) (application.AutoClearResult, error)
}

// CourtHandler serves assignment, clearing and wet-court operations.
type CourtHandler struct {
	service   courtService
	responder responder
	logger    *slog.Logger
}

func NewCourtHandler(service courtService, logger *slog.Logger) *CourtHandler {
	base := defaultLogger(logger)
	return &CourtHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CourtHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "CourtHandler", operation, attrs...)
}

// Assign handles POST /courts/:id/assign. Priority override is ignored here.
func (h *CourtHandler) Assign(c echo.Context) error {
	return h.assign(c, false)
}

// AdminAssign handles POST /admin/courts/:id/assign, honoring override.
func (h *CourtHandler) AdminAssign(c echo.Context) error {
	return h.assign(c, true)
}

func (h *CourtHandler) assign(c echo.Context, admin bool) error {
	ctx := c.Request().Context()
	id, err := courtParam(c)
	if err != nil {
		h.log(ctx, "Assign", "error_kind", "bad_request").ErrorContext(ctx, "invalid court id", "value", c.Param("id"))
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidCourtID)
	}

	var req assignRequest
	if err := c.Bind(&req); err != nil {
		h.log(ctx, "Assign", "court", id, "error_kind", "bad_request").ErrorContext(ctx, "failed to decode assign request", "error", err)
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	logger := h.log(ctx, "Assign", "court", id, "admin", admin)
	result, err := h.service.Allocate(ctx, application.AllocateParams{
		Court:            id,
		Participants:     req.Players,
		Guests:           req.Guests,
		DurationMinutes:  req.DurationMinutes,
		WaitlistEntryID:  strings.TrimSpace(req.WaitlistEntryID),
		OverridePriority: admin && req.Override,
	})
	if err != nil {
		logger.ErrorContext(ctx, "assign failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}

	logger.InfoContext(ctx, "court assigned", "bumped", result.Bumped != nil)
	return h.responder.writeJSON(c, http.StatusCreated, assignResponse{
		Court:   result.Court,
		Session: result.Session,
		Bumped:  result.Bumped,
		Tick:    result.Snapshot.Tick,
	})
}

// Clear handles POST /courts/:id/clear.
func (h *CourtHandler) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := courtParam(c)
	if err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidCourtID)
	}

	var req clearRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	logger := h.log(ctx, "Clear", "court", id)
	result, err := h.service.Release(ctx, application.ReleaseParams{Court: id, Reason: req.Reason})
	if err != nil {
		logger.ErrorContext(ctx, "clear failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}

	logger.InfoContext(ctx, "court cleared", "reason", result.Archived.Reason)
	return h.responder.writeJSON(c, http.StatusOK, clearResponse{
		Court:    result.Court,
		Archived: result.Archived,
		Tick:     result.Snapshot.Tick,
	})
}

// MarkWet handles PUT /admin/wet/:id.
func (h *CourtHandler) MarkWet(c echo.Context) error {
	return h.wet(c, "MarkWet", h.service.MarkWet)
}

// ClearWet handles DELETE /admin/wet/:id.
func (h *CourtHandler) ClearWet(c echo.Context) error {
	return h.wet(c, "ClearWet", h.service.ClearWet)
}

// ClearAllWet handles DELETE /admin/wet.
func (h *CourtHandler) ClearAllWet(c echo.Context) error {
	ctx := c.Request().Context()
	snap, err := h.service.ClearAllWet(ctx)
	if err != nil {
		h.log(ctx, "ClearAllWet").ErrorContext(ctx, "clear all wet failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, wetResponse{WetCourts: nonNilInts(snap.WetCourts), Tick: snap.Tick})
}

func (h *CourtHandler) wet(c echo.Context, operation string, apply func(context.Context, int) (court.Snapshot, error)) error {
	ctx := c.Request().Context()
	id, err := courtParam(c)
	if err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidCourtID)
	}
	snap, err := apply(ctx, id)
	if err != nil {
		h.log(ctx, operation, "court", id).ErrorContext(ctx, "wet marker update failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, wetResponse{WetCourts: nonNilInts(snap.WetCourts), Tick: snap.Tick})
}

// AutoClear handles POST /admin/maintenance/auto-clear.
func (h *CourtHandler) AutoClear(c echo.Context) error {
	ctx := c.Request().Context()
	result, err := h.service.AutoClearOverdue(ctx)
	if err != nil {
		h.log(ctx, "AutoClear").ErrorContext(ctx, "auto-clear failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, autoClearResponse{Courts: nonNilInts(result.Courts), Tick: result.Snapshot.Tick})
}

func courtParam(c echo.Context) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(c.Param("id")))
	if err != nil || id < 1 {
		return 0, errInvalidCourtID
	}
	return id, nil
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

type assignRequest struct {
	Players         []court.Participant `json:"players"`
	Guests          int                 `json:"guests"`
	DurationMinutes int                 `json:"duration_minutes"`
	WaitlistEntryID string              `json:"waitlist_entry_id"`
	Override        bool                `json:"override"`
}

type assignResponse struct {
	Court   int                    `json:"court"`
	Session court.Session          `json:"session"`
	Bumped  *court.ArchivedSession `json:"bumped,omitempty"`
	Tick    int64                  `json:"tick"`
}

type clearRequest struct {
	Reason string `json:"reason"`
}

type clearResponse struct {
	Court    int                   `json:"court"`
	Archived court.ArchivedSession `json:"archived"`
	Tick     int64                 `json:"tick"`
}

type wetResponse struct {
	WetCourts []int `json:"wetCourts"`
	Tick      int64 `json:"tick"`
}

type autoClearResponse struct {
	Courts []int `json:"courts"`
	Tick   int64 `json:"tick"`
}
