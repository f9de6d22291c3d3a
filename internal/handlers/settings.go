package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/transcription"
	"github.com/codebuildervaibhav/podflow/internal/types"
)

// SettingsStore reads and writes per-user settings.
type SettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (*types.UserSettings, error)
	SaveUserSettings(ctx context.Context, s *types.UserSettings) error
}

// SettingsHandler manages per-user transcription settings
type SettingsHandler struct {
	store  SettingsStore
	logger *zap.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store SettingsStore, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:  store,
		logger: logger,
	}
}

// SettingsRequest is a partial update; nil fields keep their stored value.
type SettingsRequest struct {
	OpenAIAPIKey    *string `json:"openaiApiKey"`
	DefaultLanguage *string `json:"defaultLanguage"`
}

// Get handles GET /api/settings/:userId. The API key is never returned in full.
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	userID := c.Params("userId")
	s, err := h.store.GetUserSettings(c.UserContext(), userID)
	if err != nil {
		h.logger.Error("failed to load settings", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load settings",
			"code":  "ERR_DB",
		})
	}
	if s == nil {
		s = &types.UserSettings{UserID: userID}
	}
	return c.JSON(settingsView(s))
}

// Put handles PUT /api/settings/:userId
func (h *SettingsHandler) Put(c *fiber.Ctx) error {
	userID := c.Params("userId")
	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	s, err := h.store.GetUserSettings(c.UserContext(), userID)
	if err != nil {
		h.logger.Error("failed to load settings", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load settings",
			"code":  "ERR_DB",
		})
	}
	if s == nil {
		s = &types.UserSettings{UserID: userID}
	}

	if req.OpenAIAPIKey != nil {
		s.OpenAIAPIKey = strings.TrimSpace(*req.OpenAIAPIKey)
	}
	if req.DefaultLanguage != nil {
		lang := strings.TrimSpace(*req.DefaultLanguage)
		if lang != "" {
			lang = transcription.NormalizeLanguage(lang)
			if lang == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Unsupported language",
					"code":  "ERR_INVALID_LANGUAGE",
				})
			}
		}
		s.DefaultLanguage = lang
	}
	s.UpdatedAt = time.Now()

	if err := h.store.SaveUserSettings(c.UserContext(), s); err != nil {
		h.logger.Error("failed to save settings", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save settings",
			"code":  "ERR_DB",
		})
	}
	return c.JSON(settingsView(s))
}

func settingsView(s *types.UserSettings) fiber.Map {
	return fiber.Map{
		"userId":          s.UserID,
		"openaiApiKey":    maskKey(s.OpenAIAPIKey),
		"hasOpenaiApiKey": s.OpenAIAPIKey != "",
		"defaultLanguage": s.DefaultLanguage,
		"updatedAt":       s.UpdatedAt,
	}
}

// maskKey keeps the last four characters: "sk-...wxyz".
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	prefix := ""
	if strings.HasPrefix(key, "sk-") {
		prefix = "sk-"
	}
	return prefix + "..." + key[len(key)-4:]
}
