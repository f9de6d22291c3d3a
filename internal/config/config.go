package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port      int    `yaml:"port"`
		Host      string `yaml:"host"`
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`

	Workers struct {
		Count     int `yaml:"count"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"workers"`

	Storage struct {
		ScratchDir    string `yaml:"scratch_dir"`
		Database      string `yaml:"database"`
		BlobBackend   string `yaml:"blob_backend"`
		LocalBlobDir  string `yaml:"local_blob_dir"`
		SigningSecret string `yaml:"signing_secret"`
	} `yaml:"storage"`

	GCS struct {
		Bucket          string `yaml:"bucket"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"gcs"`

	Audio struct {
		Bitrate     string `yaml:"bitrate"`
		Codec       string `yaml:"codec"`
		Format      string `yaml:"format"`
		FFmpegPath  string `yaml:"ffmpeg_path"`
		FFprobePath string `yaml:"ffprobe_path"`
		YtDlpPath   string `yaml:"ytdlp_path"`
	} `yaml:"audio"`

	Transcription struct {
		Model         string `yaml:"model"`
		Language      string `yaml:"language"`
		MaxFileSizeMB int    `yaml:"max_file_size_mb"`
		BaseURL       string `yaml:"base_url"`
		DefaultAPIKey string `yaml:"-"`
	} `yaml:"transcription"`

	Jobs struct {
		SignedURLTTLHours   int `yaml:"signed_url_ttl_hours"`
		StageTimeoutMinutes int `yaml:"stage_timeout_minutes"`
	} `yaml:"jobs"`

	Cleanup struct {
		Schedule    string `yaml:"schedule"`
		MaxAgeHours int    `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		BodyLimitMB int `yaml:"body_limit_mb"`
	} `yaml:"limits"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads .env (if present), the YAML file at path (if present), applies
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	cfg.Transcription.DefaultAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("PODFLOW_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PODFLOW_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("PODFLOW_GCS_BUCKET")); v != "" {
		cfg.GCS.Bucket = v
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Workers.Count <= 0 {
		cfg.Workers.Count = 2
	}
	if cfg.Workers.QueueSize <= 0 {
		cfg.Workers.QueueSize = 100
	}
	if cfg.Storage.ScratchDir == "" {
		cfg.Storage.ScratchDir = "temp/podcast-compression"
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = "podflow.db"
	}
	if cfg.Storage.BlobBackend == "" {
		cfg.Storage.BlobBackend = "local"
	}
	if cfg.Storage.LocalBlobDir == "" {
		cfg.Storage.LocalBlobDir = "blobs"
	}
	if cfg.Audio.Bitrate == "" {
		cfg.Audio.Bitrate = "64k"
	}
	if cfg.Audio.Codec == "" {
		cfg.Audio.Codec = "libmp3lame"
	}
	if cfg.Audio.Format == "" {
		cfg.Audio.Format = "mp3"
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = "ffmpeg"
	}
	if cfg.Audio.FFprobePath == "" {
		cfg.Audio.FFprobePath = "ffprobe"
	}
	if cfg.Audio.YtDlpPath == "" {
		cfg.Audio.YtDlpPath = "yt-dlp"
	}
	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = "whisper-1"
	}
	if cfg.Transcription.Language == "" {
		cfg.Transcription.Language = "en"
	}
	if cfg.Transcription.MaxFileSizeMB <= 0 {
		cfg.Transcription.MaxFileSizeMB = 25
	}
	if cfg.Jobs.SignedURLTTLHours <= 0 {
		cfg.Jobs.SignedURLTTLHours = 7 * 24
	}
	if cfg.Jobs.StageTimeoutMinutes == 0 {
		cfg.Jobs.StageTimeoutMinutes = 30
	}
	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "@every 30m"
	}
	if cfg.Cleanup.MaxAgeHours <= 0 {
		cfg.Cleanup.MaxAgeHours = 6
	}
	if cfg.GoogleDrive.FolderName == "" {
		cfg.GoogleDrive.FolderName = "Podflow Transcripts"
	}
	if cfg.Limits.BodyLimitMB <= 0 {
		cfg.Limits.BodyLimitMB = 200
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.BlobBackend {
	case "local":
	case "gcs":
		if c.GCS.Bucket == "" {
			return errors.New("gcs.bucket is required when storage.blob_backend is gcs")
		}
		if c.GCS.CredentialsFile == "" {
			return errors.New("gcs.credentials_file is required when storage.blob_backend is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.blob_backend %q", c.Storage.BlobBackend)
	}
	// GCS V4 signatures are capped at seven days.
	if c.Jobs.SignedURLTTLHours > 7*24 {
		return fmt.Errorf("jobs.signed_url_ttl_hours %d exceeds 168", c.Jobs.SignedURLTTLHours)
	}
	return nil
}

// SignedURLTTL is the lifetime of the audio URL handed to clients.
func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.Jobs.SignedURLTTLHours) * time.Hour
}

// StageTimeout bounds each pipeline stage. A negative setting disables it.
func (c *Config) StageTimeout() time.Duration {
	if c.Jobs.StageTimeoutMinutes < 0 {
		return 0
	}
	return time.Duration(c.Jobs.StageTimeoutMinutes) * time.Minute
}

// MaxTranscriptionBytes is the speech-to-text upload limit.
func (c *Config) MaxTranscriptionBytes() int64 {
	return int64(c.Transcription.MaxFileSizeMB) * 1024 * 1024
}
