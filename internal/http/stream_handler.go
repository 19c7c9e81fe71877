package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/persistence"
)

const (
	streamPingInterval = 15 * time.Second
	streamWriteTimeout = 10 * time.Second
	streamBuffer       = 16
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type snapshotSource interface {
	Snapshot(ctx context.Context) (court.Snapshot, error)
}

// StreamHandler pushes every accepted snapshot and block list write to
// websocket clients.
type StreamHandler struct {
	source snapshotSource
	bus    persistence.Bus
	logger *slog.Logger
}

func NewStreamHandler(source snapshotSource, bus persistence.Bus, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{source: source, bus: bus, logger: defaultLogger(logger)}
}

type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Serve handles GET /ws. The current snapshot is sent first; updates follow
// in publish order.
func (h *StreamHandler) Serve(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	logger := handlerLogger(ctx, h.logger, "StreamHandler", "Serve")

	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	updates := make(chan streamMessage, streamBuffer)
	forward := func(kind string) func([]byte) {
		return func(payload []byte) {
			select {
			case updates <- streamMessage{Type: kind, Data: payload}:
			default:
				logger.WarnContext(ctx, "stream client too slow, dropping update", "type", kind)
			}
		}
	}
	for _, topic := range []string{persistence.TopicSnapshot, persistence.TopicBlocks} {
		stop, err := h.bus.Subscribe(ctx, topic, forward(topic))
		if err != nil {
			logger.ErrorContext(ctx, "subscribe failed", "topic", topic, "error", err)
			return nil
		}
		defer stop()
	}

	snap, err := h.source.Snapshot(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "initial snapshot unavailable", "error", err)
		return nil
	}
	initial, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	if err := writeStream(conn, streamMessage{Type: persistence.TopicSnapshot, Data: initial}); err != nil {
		return nil
	}

	done := make(chan struct{})
	go drain(conn, done)

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-updates:
			if err := writeStream(conn, msg); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return nil
			}
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func writeStream(conn *websocket.Conn, msg streamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// drain reads until the client goes away; clients never send data.
func drain(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
