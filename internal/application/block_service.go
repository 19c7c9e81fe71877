package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/recurrence"
)

// BlockService administers court blocks. Blocks are immutable once stored;
// they leave the list by expiring or by explicit cancellation.
type BlockService struct {
	mu          sync.Mutex
	store       SnapshotStore
	engine      *recurrence.Engine
	catalog     recurrence.Catalog
	courtCount  int
	now         func() time.Time
	idGenerator func() string
	logger      *slog.Logger
}

// NewBlockService wires dependencies for block administration.
func NewBlockService(store SnapshotStore, engine *recurrence.Engine, catalog recurrence.Catalog, courtCount int, now func() time.Time, logger *slog.Logger) *BlockService {
	if now == nil {
		now = time.Now
	}
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC, now, nil, logger)
	}
	return &BlockService{
		store:       store,
		engine:      engine,
		catalog:     catalog,
		courtCount:  courtCount,
		now:         now,
		idGenerator: uuid.NewString,
		logger:      defaultLogger(logger),
	}
}

func (s *BlockService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BlockService", operation, attrs...)
}

// Catalog returns the configured templates and recurrence rules.
func (s *BlockService) Catalog() recurrence.Catalog {
	return s.catalog
}

// ListBlocks returns every stored block ordered by start then court.
func (s *BlockService) ListBlocks(ctx context.Context) ([]court.Block, error) {
	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return nil, err
	}
	sortBlocks(blocks)
	return blocks, nil
}

// ActiveBlocks returns the blocks covering now.
func (s *BlockService) ActiveBlocks(ctx context.Context) ([]court.Block, error) {
	blocks, err := s.ListBlocks(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return slices.DeleteFunc(blocks, func(b court.Block) bool { return !b.Active(now) }), nil
}

// AddBlocks validates and stores blocks. Blocks whose id is already stored
// are skipped, so re-applying a template at the same instant is harmless.
// The blocks actually added are returned.
func (s *BlockService) AddBlocks(ctx context.Context, blocks []court.Block) (added []court.Block, err error) {
	ctx, span := startSpan(ctx, "BlockService.AddBlocks", attribute.Int("courtboard.blocks", len(blocks)))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "AddBlocks", "requested", len(blocks))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "adding blocks failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "blocks added", "added", len(added))
	}()

	vErr := &ValidationError{}
	for i, b := range blocks {
		s.validateBlock(b, i, vErr)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.Blocks(ctx)
	if err != nil {
		return nil, err
	}

	created := s.now()
	added = make([]court.Block, 0, len(blocks))
	next := court.CloneBlocks(existing)
	for _, b := range blocks {
		if b.ID == "" {
			b.ID = s.idGenerator()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = created
		}
		if containsBlock(next, b.ID) {
			continue
		}
		next = append(next, b)
		added = append(added, b)
	}
	if len(added) == 0 {
		return added, nil
	}

	sortBlocks(next)
	if err = s.store.SaveBlocks(ctx, next); err != nil {
		return nil, err
	}
	return added, nil
}

// ApplyTemplate creates blocks from a catalog or inline template at params.At.
func (s *BlockService) ApplyTemplate(ctx context.Context, params ApplyTemplateParams) ([]court.Block, error) {
	tpl, err := s.resolveTemplate(params)
	if err != nil {
		return nil, err
	}
	at := params.At
	if at.IsZero() {
		at = s.now()
	}
	blocks, err := s.engine.ApplyTemplate(tpl, at)
	if err != nil {
		return nil, invalidFromEngine("template", err)
	}
	return s.AddBlocks(ctx, blocks)
}

// ExpandRecurrence creates the blocks of a catalog or inline rule in
// [params.Start, params.End).
func (s *BlockService) ExpandRecurrence(ctx context.Context, params ExpandRecurrenceParams) ([]court.Block, error) {
	rule, err := s.resolveRule(params)
	if err != nil {
		return nil, err
	}
	blocks, err := s.engine.ExpandRecurrence(ctx, rule, params.Start, params.End)
	if err != nil {
		field := "rule"
		if errors.Is(err, recurrence.ErrInvalidWindow) || errors.Is(err, recurrence.ErrTooManyOccurrences) {
			field = "range"
		}
		return nil, invalidFromEngine(field, err)
	}
	return s.AddBlocks(ctx, blocks)
}

// CancelBlock removes one block by id.
func (s *BlockService) CancelBlock(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "BlockService.CancelBlock", attribute.String("courtboard.block_id", id))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "CancelBlock", "block_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "cancel failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "block cancelled")
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(blocks, func(b court.Block) bool { return b.ID == id })
	if idx < 0 {
		return &RejectionError{Reason: ReasonNotFound, Detail: "block " + id}
	}
	return s.store.SaveBlocks(ctx, slices.Delete(blocks, idx, idx+1))
}

// PruneExpired drops blocks that ended at or before now and returns how many
// were removed.
func (s *BlockService) PruneExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	before := len(blocks)
	blocks = slices.DeleteFunc(blocks, func(b court.Block) bool { return !b.End.After(now) })
	removed := before - len(blocks)
	if removed == 0 {
		return 0, nil
	}
	if err := s.store.SaveBlocks(ctx, blocks); err != nil {
		return 0, err
	}
	s.loggerWith(ctx, "PruneExpired").InfoContext(ctx, "expired blocks pruned", "removed", removed)
	return removed, nil
}

func (s *BlockService) resolveTemplate(params ApplyTemplateParams) (court.BlockTemplate, error) {
	if params.Template != nil {
		return *params.Template, nil
	}
	id := strings.TrimSpace(params.TemplateID)
	if id == "" {
		vErr := &ValidationError{}
		vErr.add("template_id", "template id or template is required")
		return court.BlockTemplate{}, vErr
	}
	tpl, ok := s.catalog.Template(id)
	if !ok {
		return court.BlockTemplate{}, &RejectionError{Reason: ReasonNotFound, Detail: "template " + id}
	}
	return tpl, nil
}

func (s *BlockService) resolveRule(params ExpandRecurrenceParams) (court.RecurrenceRule, error) {
	if params.Rule != nil {
		return *params.Rule, nil
	}
	id := strings.TrimSpace(params.RuleID)
	if id == "" {
		vErr := &ValidationError{}
		vErr.add("rule_id", "rule id or rule is required")
		return court.RecurrenceRule{}, vErr
	}
	rule, ok := s.catalog.Recurrence(id)
	if !ok {
		return court.RecurrenceRule{}, &RejectionError{Reason: ReasonNotFound, Detail: "recurrence " + id}
	}
	return rule, nil
}

func (s *BlockService) validateBlock(b court.Block, i int, vErr *ValidationError) {
	prefix := fmt.Sprintf("blocks[%d]", i)
	if b.Court < 1 || (s.courtCount > 0 && b.Court > s.courtCount) {
		vErr.add(prefix+".courtNumber", fmt.Sprintf("court must be between 1 and %d", s.courtCount))
	}
	if b.Start.IsZero() || b.End.IsZero() {
		vErr.add(prefix+".startTime", "start and end are required")
		return
	}
	if !b.Start.Before(b.End) {
		vErr.add(prefix+".endTime", "end must be after start")
	}
	if strings.TrimSpace(b.Reason) == "" {
		vErr.add(prefix+".reason", "reason is required")
	}
}

func invalidFromEngine(field string, err error) error {
	vErr := &ValidationError{}
	vErr.add(field, err.Error())
	return vErr
}

func containsBlock(blocks []court.Block, id string) bool {
	return slices.ContainsFunc(blocks, func(b court.Block) bool { return b.ID == id })
}

func sortBlocks(blocks []court.Block) {
	slices.SortStableFunc(blocks, func(a, b court.Block) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.Court - b.Court
	})
}
