package handlers

import (
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/download"
	"github.com/codebuildervaibhav/podflow/internal/queue"
	"github.com/codebuildervaibhav/podflow/internal/transcription"
)

// JobSubmitter queues compression jobs.
type JobSubmitter interface {
	Submit(job *queue.Job) error
}

// CompressHandler starts compression jobs
type CompressHandler struct {
	pool   JobSubmitter
	logger *zap.Logger
}

// NewCompressHandler creates a new compress handler
func NewCompressHandler(pool JobSubmitter, logger *zap.Logger) *CompressHandler {
	return &CompressHandler{
		pool:   pool,
		logger: logger,
	}
}

// CompressRequest represents the request body
type CompressRequest struct {
	EpisodeID string `json:"episodeId" form:"episodeId"`
	UserID    string `json:"userId" form:"userId"`
	FileName  string `json:"fileName" form:"fileName"`
	FilePath  string `json:"filePath" form:"filePath"`
	AudioURL  string `json:"audioUrl" form:"audioUrl"`
}

// Handle validates the request, records the initial status and returns
// without waiting for the job.
func (h *CompressHandler) Handle(c *fiber.Ctx) error {
	var req CompressRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	job := queue.NewJob(req.EpisodeID, req.UserID, req.FileName, req.FilePath, req.AudioURL)
	if missing := job.MissingFields(); len(missing) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Missing required parameters",
			"code":    "ERR_MISSING_PARAMS",
			"missing": missing,
		})
	}

	// Video pages are captured whatever the stored name says.
	if filepath.Ext(job.FileName) != "" && !transcription.ValidateAudioFormat(job.FileName) && !download.IsVideoLink(job.AudioURL) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	if err := h.pool.Submit(job); err != nil {
		h.logger.Error("failed to start compression", zap.String("episode_id", job.EpisodeID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start compression: " + err.Error(),
			"code":  "ERR_START_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "started",
		"message": "Compression started for " + strings.TrimSpace(job.FileName),
	})
}
