package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"PulsePrice/internal/domain/models"
	svcmetrics "PulsePrice/internal/service/metrics"
	applogger "PulsePrice/pkg/logger"
)

const (
	defaultKeepAlive = 15 * time.Second
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
)

// StreamHandler pushes snapshot and price_update messages over SSE and
// WebSocket.
type StreamHandler struct {
	logger    *applogger.Logger
	engine    PriceService
	metrics   *svcmetrics.APIMetrics
	keepAlive time.Duration
	upgrader  websocket.Upgrader
}

func NewStreamHandler(l *applogger.Logger, engine PriceService, keepAlive time.Duration, metrics *svcmetrics.APIMetrics) *StreamHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &StreamHandler{
		logger:    l,
		engine:    engine,
		metrics:   metrics,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/stream", h.SSE)
	e.GET("/ws", h.WebSocket)
}

// SSE streams events until the client goes away or the subscriber is dropped.
func (h *StreamHandler) SSE(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub := h.engine.Subscribe()
	defer h.engine.Unsubscribe(sub)
	defer h.metrics.StreamOpened("sse")()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	done := c.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				h.logger.Debug("sse subscriber dropped", applogger.Int64("subscriber", int64(sub.ID)))
				return nil
			}
			if err := writeEvent(w, msg); err != nil {
				return nil
			}
			w.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, msg models.StreamMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, payload)
	return err
}

// WebSocket carries the same messages as SSE, one JSON text frame each.
func (h *StreamHandler) WebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already answered the client.
		h.logger.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	defer conn.Close()

	sub := h.engine.Subscribe()
	defer h.engine.Unsubscribe(sub)
	defer h.metrics.StreamOpened("websocket")()

	// The read loop only services control frames and notices disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
					time.Now().Add(wsWriteWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}
