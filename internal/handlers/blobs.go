package handlers

import (
	"net/url"
	"os"

	"github.com/gofiber/fiber/v2"
)

// BlobVerifier checks a signed local blob URL and resolves the file.
type BlobVerifier interface {
	Verify(objectPath, expires, signature string) (string, error)
}

// BlobHandler serves objects of the local blob store behind signed URLs
type BlobHandler struct {
	verifier BlobVerifier
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(verifier BlobVerifier) *BlobHandler {
	return &BlobHandler{verifier: verifier}
}

// Handle serves GET /blobs/*?expires=..&signature=..
func (h *BlobHandler) Handle(c *fiber.Ctx) error {
	objectPath, err := url.PathUnescape(c.Params("*"))
	if err != nil || objectPath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid object path",
			"code":  "ERR_INVALID_PATH",
		})
	}

	localPath, err := h.verifier.Verify(objectPath, c.Query("expires"), c.Query("signature"))
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Link is invalid or has expired",
			"code":  "ERR_FORBIDDEN",
		})
	}

	if info, err := os.Stat(localPath); err != nil || info.IsDir() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Object not found",
			"code":  "ERR_NOT_FOUND",
		})
	}

	return c.SendFile(localPath)
}
