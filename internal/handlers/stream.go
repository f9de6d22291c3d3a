package handlers

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/types"
)

// StreamHandler pushes job record changes over a WebSocket
type StreamHandler struct {
	store    StatusReader
	interval time.Duration
	logger   *zap.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(store StatusReader, interval time.Duration, logger *zap.Logger) *StreamHandler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &StreamHandler{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Handle sends the current record, then every change, and closes the
// connection after a terminal record.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()
	episodeID := c.Params("episodeId")

	// The client sends nothing; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last *types.JobRecord
	for {
		rec := h.store.Get(episodeID)
		if last == nil || recordChanged(*last, rec) {
			if err := c.WriteJSON(rec); err != nil {
				h.logger.Debug("status stream write failed", zap.String("episode_id", episodeID), zap.Error(err))
				return
			}
			last = &rec
		}

		if types.IsTerminal(rec.Status) {
			_ = c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, rec.Status))
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func recordChanged(a, b types.JobRecord) bool {
	return a.Status != b.Status || a.Progress != b.Progress || a.Error != b.Error
}
