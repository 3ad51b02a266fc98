package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams the status of a domain until its analysis ends.
type WebSocketHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
	interval time.Duration
	maxWait  time.Duration
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(analyzer Analyzer, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		analyzer: analyzer,
		logger:   logger,
		interval: 500 * time.Millisecond,
		maxWait:  5 * time.Minute,
	}
}

// Stream handles GET /api/v1/domains/stream?domain= (WebSocket upgrade)
func (h *WebSocketHandler) Stream(c *gin.Context) {
	var q domainQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain: " + err.Error()})
		return
	}
	name := domain.NormalizeName(q.Domain)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("domain", name))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.maxWait)
	defer cancel()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		res, err := h.analyzer.Status(ctx, name)
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			_ = conn.WriteJSON(gin.H{"error": "Domain not found"})
			return
		case err != nil:
			h.logger.Warn("Status lookup failed", zap.String("domain", name), zap.Error(err))
			_ = conn.WriteJSON(gin.H{"error": "Service temporarily unavailable"})
			return
		}

		if err := conn.WriteJSON(res); err != nil {
			h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			return
		}
		if res.IsTerminal() {
			h.logger.Debug("Analysis reached terminal state, closing WebSocket", zap.String("domain", name))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(res.Status)))
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "timeout"))
			return
		}
	}
}
