package http

import (
	"log/slog"

	"github.com/labstack/echo/v4"
)

// RouterConfig lists the handlers to mount. Nil handlers leave their routes
// unregistered.
type RouterConfig struct {
	Board    *BoardHandler
	Courts   *CourtHandler
	Waitlist *WaitlistHandler
	Blocks   *BlockHandler
	History  *HistoryHandler
	Auth     *AuthHandler
	Stream   *StreamHandler
	// Admin guards the /admin group. Without it admin routes are not mounted.
	Admin      echo.MiddlewareFunc
	Middleware []echo.MiddlewareFunc
	Logger     *slog.Logger
}

// NewRouter builds the echo instance serving the court board.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(defaultLogger(cfg.Logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			e.Use(mw)
		}
	}

	e.GET("/health", Health)

	if cfg.Board != nil {
		e.GET("/board", cfg.Board.Board)
		e.GET("/courts/offerable", cfg.Board.Offerable)
		e.POST("/estimate", cfg.Board.Estimate)
	}
	if cfg.Courts != nil {
		e.POST("/courts/:id/assign", cfg.Courts.Assign)
		e.POST("/courts/:id/clear", cfg.Courts.Clear)
	}
	if cfg.Waitlist != nil {
		e.GET("/waitlist", cfg.Waitlist.List)
		e.POST("/waitlist", cfg.Waitlist.Join)
		e.DELETE("/waitlist/:id", cfg.Waitlist.Withdraw)
	}
	if cfg.Stream != nil {
		e.GET("/ws", cfg.Stream.Serve)
	}
	if cfg.Auth != nil {
		e.POST("/admin/login", cfg.Auth.Login)
	}

	if cfg.Admin == nil {
		return e
	}
	admin := e.Group("/admin", cfg.Admin)
	if cfg.Courts != nil {
		admin.POST("/courts/:id/assign", cfg.Courts.AdminAssign)
		admin.PUT("/wet/:id", cfg.Courts.MarkWet)
		admin.DELETE("/wet/:id", cfg.Courts.ClearWet)
		admin.DELETE("/wet", cfg.Courts.ClearAllWet)
		admin.POST("/maintenance/auto-clear", cfg.Courts.AutoClear)
	}
	if cfg.Waitlist != nil {
		admin.POST("/waitlist", cfg.Waitlist.AdminJoin)
	}
	if cfg.Blocks != nil {
		admin.GET("/blocks", cfg.Blocks.List)
		admin.POST("/blocks", cfg.Blocks.Create)
		admin.GET("/blocks/catalog", cfg.Blocks.Catalog)
		admin.POST("/blocks/template", cfg.Blocks.ApplyTemplate)
		admin.POST("/blocks/recurrence", cfg.Blocks.ExpandRecurrence)
		admin.DELETE("/blocks/:id", cfg.Blocks.Cancel)
	}
	if cfg.History != nil {
		admin.GET("/history", cfg.History.List)
	}
	return e
}
