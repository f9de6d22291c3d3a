package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/podflow/internal/types"
)

// StatusReader is the read side of the job status store.
type StatusReader interface {
	Get(episodeID string) types.JobRecord
}

// StatusHandler returns the current job record
type StatusHandler struct {
	store StatusReader
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(store StatusReader) *StatusHandler {
	return &StatusHandler{store: store}
}

// Handle always answers 200; unknown episodes get the not_found record.
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(h.store.Get(c.Params("episodeId")))
}
