package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/codebuildervaibhav/podflow/internal/transcript"
	"github.com/codebuildervaibhav/podflow/internal/types"
)

// DefaultMaxFileBytes is the Whisper API upload limit.
const DefaultMaxFileBytes int64 = 25 * 1024 * 1024

// SettingsProvider looks up per-user settings. A nil result means the user
// has none.
type SettingsProvider interface {
	GetUserSettings(ctx context.Context, userID string) (*types.UserSettings, error)
}

// WhisperConfig configures the OpenAI transcription client.
type WhisperConfig struct {
	Model         string
	Language      string
	BaseURL       string
	DefaultAPIKey string
	MaxFileBytes  int64
	HTTPClient    *http.Client
}

// WhisperTranscriber sends audio to the OpenAI Whisper API
type WhisperTranscriber struct {
	cfg      WhisperConfig
	settings SettingsProvider
	logger   *zap.Logger
}

// NewWhisperTranscriber creates a transcriber. settings may be nil.
func NewWhisperTranscriber(cfg WhisperConfig, settings SettingsProvider, logger *zap.Logger) *WhisperTranscriber {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return &WhisperTranscriber{
		cfg:      cfg,
		settings: settings,
		logger:   logger,
	}
}

// Transcribe uploads audioPath and returns the timestamped transcript. The
// size limit is checked before any credential lookup or network call.
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath, userID string) (*types.TranscriptionResult, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if info.Size() > wt.cfg.MaxFileBytes {
		return nil, fmt.Errorf("%w: %.2fMB exceeds the %.0fMB limit",
			ErrFileTooLarge, megabytes(info.Size()), megabytes(wt.cfg.MaxFileBytes))
	}

	userSettings := wt.lookupSettings(ctx, userID)
	apiKey, err := wt.resolveAPIKey(userSettings)
	if err != nil {
		return nil, err
	}
	lang := wt.resolveLanguage(userSettings)

	clientCfg := openai.DefaultConfig(apiKey)
	if wt.cfg.BaseURL != "" {
		clientCfg.BaseURL = wt.cfg.BaseURL
	}
	if wt.cfg.HTTPClient != nil {
		clientCfg.HTTPClient = wt.cfg.HTTPClient
	}
	client := openai.NewClientWithConfig(clientCfg)

	wt.logger.Info("transcribing audio",
		zap.String("path", audioPath),
		zap.Int64("bytes", info.Size()),
		zap.String("language", lang))

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    wt.cfg.Model,
		FilePath: audioPath,
		Language: lang,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s", ErrTranscriptionFailed, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	segments := make([]types.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	text := transcript.Join(segments)
	if text == "" {
		text = strings.TrimSpace(resp.Text)
	}

	duration := resp.Duration
	if duration == 0 && len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	result := &types.TranscriptionResult{
		Text:     text,
		Language: resp.Language,
		Duration: duration,
		Segments: segments,
	}
	wt.logger.Info("transcription completed",
		zap.Int("segments", len(segments)),
		zap.Float64("duration_seconds", duration))
	return result, nil
}

func (wt *WhisperTranscriber) lookupSettings(ctx context.Context, userID string) *types.UserSettings {
	if wt.settings == nil || userID == "" {
		return nil
	}
	s, err := wt.settings.GetUserSettings(ctx, userID)
	if err != nil {
		wt.logger.Warn("user settings unavailable, using defaults", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return s
}

// resolveAPIKey prefers the user's own key over the process-wide default.
func (wt *WhisperTranscriber) resolveAPIKey(s *types.UserSettings) (string, error) {
	if s != nil {
		if key := strings.TrimSpace(s.OpenAIAPIKey); key != "" {
			return key, nil
		}
	}
	if key := strings.TrimSpace(wt.cfg.DefaultAPIKey); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: add one in settings or set OPENAI_API_KEY", ErrMissingCredential)
}

func (wt *WhisperTranscriber) resolveLanguage(s *types.UserSettings) string {
	if s != nil {
		if lang := NormalizeLanguage(s.DefaultLanguage); lang != "" {
			return lang
		}
	}
	return NormalizeLanguage(wt.cfg.Language)
}

// NormalizeLanguage reduces a BCP 47 hint such as "en-US" to the ISO 639-1
// code Whisper expects. It returns "" for anything it cannot parse.
func NormalizeLanguage(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No || base.String() == "und" {
		return ""
	}
	return base.String()
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
