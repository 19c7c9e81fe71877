package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/application"
	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/recurrence"
)

type blockService interface {
	Catalog() recurrence.Catalog
	ListBlocks(ctx context.Context) ([]court.Block, error)
	AddBlocks(ctx context.Context, blocks []court.Block) ([]court.Block, error)
	ApplyTemplate(ctx context.Context, params application.ApplyTemplateParams) ([]court.Block, error)
	ExpandRecurrence(ctx context.Context, params application.ExpandRecurrenceParams) ([]court.Block, error)
	CancelBlock(ctx context.Context, id string) error
}

// BlockHandler administers court blocks. All routes are admin-only.
type BlockHandler struct {
	service   blockService
	responder responder
	logger    *slog.Logger
}

func NewBlockHandler(service blockService, logger *slog.Logger) *BlockHandler {
	base := defaultLogger(logger)
	return &BlockHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BlockHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BlockHandler", operation, attrs...)
}

// List handles GET /admin/blocks.
func (h *BlockHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	blocks, err := h.service.ListBlocks(ctx)
	if err != nil {
		h.log(ctx, "List").ErrorContext(ctx, "listing blocks failed", "error", err)
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, blocksResponse{Blocks: nonNilBlocks(blocks)})
}

// Catalog handles GET /admin/blocks/catalog.
func (h *BlockHandler) Catalog(c echo.Context) error {
	catalog := h.service.Catalog()
	templates := catalog.Templates
	if templates == nil {
		templates = []court.BlockTemplate{}
	}
	rules := catalog.Recurrences
	if rules == nil {
		rules = []court.RecurrenceRule{}
	}
	return h.responder.writeJSON(c, http.StatusOK, catalogResponse{Templates: templates, Recurrences: rules})
}

// Create handles POST /admin/blocks.
func (h *BlockHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	var req createBlocksRequest
	if err := c.Bind(&req); err != nil {
		h.log(ctx, "Create", "error_kind", "bad_request").ErrorContext(ctx, "failed to decode blocks", "error", err)
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	added, err := h.service.AddBlocks(ctx, req.Blocks)
	return h.added(c, "Create", added, err)
}

// ApplyTemplate handles POST /admin/blocks/template.
func (h *BlockHandler) ApplyTemplate(c echo.Context) error {
	ctx := c.Request().Context()
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	params := application.ApplyTemplateParams{TemplateID: strings.TrimSpace(req.TemplateID), Template: req.Template}
	if req.At != nil {
		params.At = *req.At
	}
	added, err := h.service.ApplyTemplate(ctx, params)
	return h.added(c, "ApplyTemplate", added, err)
}

// ExpandRecurrence handles POST /admin/blocks/recurrence.
func (h *BlockHandler) ExpandRecurrence(c echo.Context) error {
	ctx := c.Request().Context()
	var req recurrenceRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	added, err := h.service.ExpandRecurrence(ctx, application.ExpandRecurrenceParams{
		RuleID: strings.TrimSpace(req.RuleID),
		Rule:   req.Rule,
		Start:  req.Start,
		End:    req.End,
	})
	return h.added(c, "ExpandRecurrence", added, err)
}

// Cancel handles DELETE /admin/blocks/:id.
func (h *BlockHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.CancelBlock(ctx, id); err != nil {
		h.log(ctx, "Cancel", "block_id", id).ErrorContext(ctx, "cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusNoContent, nil)
}

func (h *BlockHandler) added(c echo.Context, operation string, added []court.Block, err error) error {
	ctx := c.Request().Context()
	logger := h.log(ctx, operation)
	if err != nil {
		logger.ErrorContext(ctx, "block creation failed", "error", err, "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	logger.InfoContext(ctx, "blocks created", "count", len(added))
	return h.responder.writeJSON(c, http.StatusCreated, blocksResponse{Blocks: nonNilBlocks(added)})
}

func nonNilBlocks(blocks []court.Block) []court.Block {
	if blocks == nil {
		return []court.Block{}
	}
	return blocks
}

type blocksResponse struct {
	Blocks []court.Block `json:"blocks"`
}

type catalogResponse struct {
	Templates   []court.BlockTemplate  `json:"templates"`
	Recurrences []court.RecurrenceRule `json:"recurrences"`
}

type createBlocksRequest struct {
	Blocks []court.Block `json:"blocks"`
}

type templateRequest struct {
	TemplateID string               `json:"template_id"`
	Template   *court.BlockTemplate `json:"template"`
	At         *time.Time           `json:"at"`
}

type recurrenceRequest struct {
	RuleID string                `json:"rule_id"`
	Rule   *court.RecurrenceRule `json:"rule"`
	Start  time.Time             `json:"start"`
	End    time.Time             `json:"end"`
}
