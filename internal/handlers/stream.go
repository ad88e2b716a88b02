package handlers

import (
	"net/http"
	"time"

	"healthai/internal/metrics"
	"healthai/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Источники проверяются CORS политикой, API открыт для всех
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream обрабатывает GET /api/stream: раз в интервал отправляет
// классифицированное показание в формате /api/health-data
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	// Чтение нужно для обработки close и pong фреймов
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if !h.pushReading(conn) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if !h.pushReading(conn) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushReading отправляет одно показание; false означает, что поток нужно закрыть
func (h *Handler) pushReading(conn *websocket.Conn) bool {
	resp, err := h.classifiedReading(models.AlertSourceStream)
	if err != nil {
		h.logger.Error("stream classification failed", zap.Error(err))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
		if werr := conn.WriteMessage(websocket.CloseMessage, msg); werr != nil {
			h.logger.Debug("stream close frame not sent", zap.Error(werr))
		}
		return false
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(resp); err != nil {
		h.logger.Debug("stream client gone", zap.Error(err))
		return false
	}
	return true
}
