package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/storage"
	"github.com/codebuildervaibhav/podflow/internal/transcription"
)

// UploadHandler handles file uploads into the blob store
type UploadHandler struct {
	blobs      storage.BlobStore
	scratchDir string
	maxSizeMB  int
	logger     *zap.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(blobs storage.BlobStore, scratchDir string, maxSizeMB int, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		blobs:      blobs,
		scratchDir: scratchDir,
		maxSizeMB:  maxSizeMB,
		logger:     logger,
	}
}

// Handle stores the uploaded file at episodes/<userId>/<fileName> and
// returns the path to pass to the compress endpoint.
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	userID := c.FormValue("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId is required",
			"code":  "ERR_NO_USER",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if h.maxSizeMB > 0 && file.Size > maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !transcription.ValidateAudioFormat(file.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	if err := os.MkdirAll(h.scratchDir, 0755); err != nil {
		h.logger.Error("failed to create scratch directory", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}
	tempPath := filepath.Join(h.scratchDir, "upload-"+uuid.NewString()+filepath.Ext(file.Filename))
	defer os.Remove(tempPath)

	if err := c.SaveFile(file, tempPath); err != nil {
		h.logger.Error("failed to save uploaded file", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	fileName := storage.SanitizeFilename(filepath.Base(file.Filename))
	objectPath := "episodes/" + storage.SanitizeFilename(userID) + "/" + fileName
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.blobs.Upload(c.UserContext(), tempPath, objectPath, contentType); err != nil {
		h.logger.Error("failed to store upload", zap.String("object_path", objectPath), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store file",
			"code":  "ERR_UPLOAD_FAILED",
		})
	}

	h.logger.Info("file uploaded", zap.String("object_path", objectPath), zap.Int64("bytes", file.Size))
	return c.JSON(fiber.Map{
		"fileName": fileName,
		"filePath": objectPath,
		"message":  "File uploaded successfully",
	})
}
