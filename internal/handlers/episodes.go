package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/storage"
	"github.com/codebuildervaibhav/podflow/internal/transcript"
	"github.com/codebuildervaibhav/podflow/internal/types"
)

// EpisodeReader reads persisted episodes.
type EpisodeReader interface {
	ListEpisodes(ctx context.Context, limit int) ([]*types.Episode, error)
	GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error)
}

// EpisodeHandler serves completed episodes and their transcript pages
type EpisodeHandler struct {
	episodes EpisodeReader
	logger   *zap.Logger
}

// NewEpisodeHandler creates a new episode handler
func NewEpisodeHandler(episodes EpisodeReader, logger *zap.Logger) *EpisodeHandler {
	return &EpisodeHandler{
		episodes: episodes,
		logger:   logger,
	}
}

// List handles GET /api/episodes?limit=N
func (h *EpisodeHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	episodes, err := h.episodes.ListEpisodes(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("failed to list episodes", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list episodes",
			"code":  "ERR_DB",
		})
	}
	return c.JSON(fiber.Map{"episodes": episodes})
}

// TranscriptPage handles GET /api/episodes/:episodeId/transcript?page=N
// (1-based). Pages are recomputed from the stored transcript.
func (h *EpisodeHandler) TranscriptPage(c *fiber.Ctx) error {
	episodeID := c.Params("episodeId")
	ep, err := h.episodes.GetEpisode(c.UserContext(), episodeID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Episode not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	if err != nil {
		h.logger.Error("failed to load episode", zap.String("episode_id", episodeID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load episode",
			"code":  "ERR_DB",
		})
	}

	pages := transcript.Paginate(ep.Transcript)
	if len(pages) == 0 {
		pages = []string{""}
	}

	page := c.QueryInt("page", 1)
	if page < 1 || page > len(pages) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":      "Page out of range",
			"code":       "ERR_PAGE_NOT_FOUND",
			"totalPages": len(pages),
		})
	}

	return c.JSON(fiber.Map{
		"episodeId":  ep.EpisodeID,
		"page":       page,
		"totalPages": len(pages),
		"text":       pages[page-1],
	})
}
