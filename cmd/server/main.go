package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/cleanup"
	"github.com/codebuildervaibhav/podflow/internal/config"
	"github.com/codebuildervaibhav/podflow/internal/download"
	"github.com/codebuildervaibhav/podflow/internal/handlers"
	"github.com/codebuildervaibhav/podflow/internal/logging"
	"github.com/codebuildervaibhav/podflow/internal/queue"
	"github.com/codebuildervaibhav/podflow/internal/status"
	"github.com/codebuildervaibhav/podflow/internal/storage"
	"github.com/codebuildervaibhav/podflow/internal/transcription"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logBuffer := logging.NewBuffer(1000)
	log, err := logging.New(cfg.Logging.Level, logBuffer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, logBuffer); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger, logBuffer *logging.Buffer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cleanup.EnsureTempDirExists(cfg.Storage.ScratchDir); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	log.Info("initializing components")

	// Blob store
	var (
		blobs     storage.BlobStore
		localBlob *storage.LocalBlobStore
	)
	switch cfg.Storage.BlobBackend {
	case "gcs":
		gcsStore, err := storage.NewGCSBlobStore(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsFile)
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		blobs = gcsStore
		log.Info("using gcs blob store", zap.String("bucket", cfg.GCS.Bucket))
	default:
		lb, err := storage.NewLocalBlobStore(cfg.Storage.LocalBlobDir, cfg.Server.PublicURL, cfg.Storage.SigningSecret)
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		localBlob = lb
		blobs = lb
		log.Info("using local blob store", zap.String("dir", cfg.Storage.LocalBlobDir))
		if cfg.Storage.SigningSecret == "" {
			log.Warn("storage.signing_secret is empty; signed URLs will not survive a restart")
		}
	}

	// Database
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	// Google Drive archive (optional)
	var archive queue.Archiver
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); cfg.GoogleDrive.CredentialsFile != "" && err == nil {
		driveClient, err := storage.NewDriveClient(ctx,
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
			log.Named("drive"),
		)
		if err != nil {
			log.Warn("google drive archive not available", zap.Error(err))
		} else {
			archive = driveClient
			log.Info("google drive archive enabled", zap.String("folder", cfg.GoogleDrive.FolderName))
		}
	} else {
		log.Info("google drive credentials not found; transcripts are not archived")
	}

	if cfg.Transcription.DefaultAPIKey == "" {
		log.Warn("OPENAI_API_KEY is not set; jobs need a per-user key")
	}

	store := status.NewMemoryStore()

	fetcher := download.NewFetcher(&http.Client{Timeout: 30 * time.Minute}, blobs, cfg.Audio.YtDlpPath, log.Named("fetch"))
	transcoder := transcription.NewTranscoder(transcription.TranscoderConfig{
		FFmpegPath:  cfg.Audio.FFmpegPath,
		FFprobePath: cfg.Audio.FFprobePath,
		Codec:       cfg.Audio.Codec,
		Bitrate:     cfg.Audio.Bitrate,
		Format:      cfg.Audio.Format,
	}, log.Named("transcode"))
	transcriber := transcription.NewWhisperTranscriber(transcription.WhisperConfig{
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		BaseURL:       cfg.Transcription.BaseURL,
		DefaultAPIKey: cfg.Transcription.DefaultAPIKey,
		MaxFileBytes:  cfg.MaxTranscriptionBytes(),
	}, db, log.Named("whisper"))

	// Worker pool
	workerPool := queue.NewWorkerPool(queue.Options{
		Workers:      cfg.Workers.Count,
		QueueSize:    cfg.Workers.QueueSize,
		ScratchDir:   cfg.Storage.ScratchDir,
		SignedURLTTL: cfg.SignedURLTTL(),
		StageTimeout: cfg.StageTimeout(),
	}, queue.Deps{
		Store:       store,
		Fetcher:     fetcher,
		Transcoder:  transcoder,
		Transcriber: transcriber,
		Blobs:       blobs,
		Episodes:    db,
		Archive:     archive,
		Logger:      log.Named("queue"),
	})
	workerPool.Start(ctx)
	defer workerPool.Stop()

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(cfg.Storage.ScratchDir, cfg.Cleanup.Schedule, cfg.Cleanup.MaxAgeHours, workerPool, log.Named("cleanup"))
	if err := cleanupScheduler.Start(); err != nil {
		return err
	}
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Limits.BodyLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
		Immutable:             true,
	})

	// Middleware
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(logger.New(logger.Config{Output: io.MultiWriter(os.Stdout, logBuffer)}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Initialize handlers
	compressHandler := handlers.NewCompressHandler(workerPool, log.Named("http"))
	statusHandler := handlers.NewStatusHandler(store)
	streamHandler := handlers.NewStreamHandler(store, 500*time.Millisecond, log.Named("ws"))
	uploadHandler := handlers.NewUploadHandler(blobs, cfg.Storage.ScratchDir, cfg.Limits.BodyLimitMB, log.Named("http"))
	episodeHandler := handlers.NewEpisodeHandler(db, log.Named("http"))
	settingsHandler := handlers.NewSettingsHandler(db, log.Named("http"))

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.Lines(),
		})
	})

	api := app.Group("/api")
	api.Post("/compress-audio", compressHandler.Handle)
	api.Get("/compression-status/:episodeId", statusHandler.Handle)
	api.Post("/upload", uploadHandler.Handle)
	api.Get("/episodes", episodeHandler.List)
	api.Get("/episodes/:episodeId/transcript", episodeHandler.TranscriptPage)
	api.Get("/settings/:userId", settingsHandler.Get)
	api.Put("/settings/:userId", settingsHandler.Put)

	app.Get("/ws/compression-status/:episodeId", websocket.New(streamHandler.Handle))

	if localBlob != nil {
		app.Get("/blobs/*", handlers.NewBlobHandler(localBlob).Handle)
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("server starting",
		zap.String("addr", addr),
		zap.Strings("endpoints", []string{
			"POST /api/compress-audio",
			"GET  /api/compression-status/:episodeId",
			"GET  /ws/compression-status/:episodeId",
			"POST /api/upload",
			"GET  /api/episodes",
			"GET  /api/episodes/:episodeId/transcript",
			"GET  /api/settings/:userId",
			"PUT  /api/settings/:userId",
			"GET  /logs",
			"GET  /health",
		}))

	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
