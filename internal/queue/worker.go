package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/download"
	"github.com/codebuildervaibhav/podflow/internal/status"
	"github.com/codebuildervaibhav/podflow/internal/transcript"
	"github.com/codebuildervaibhav/podflow/internal/transcription"
	"github.com/codebuildervaibhav/podflow/internal/types"
)

var (
	// ErrQueueFull is returned by Submit when the buffer has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Fetcher downloads the source audio into scratch storage.
type Fetcher interface {
	Fetch(ctx context.Context, req download.Request) (string, error)
}

// Transcoder re-encodes audio, reporting 0-100 progress.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string, onProgress func(int)) error
}

// Transcriber turns audio into timestamped text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, userID string) (*types.TranscriptionResult, error)
}

// BlobStore receives the compressed artifact.
type BlobStore interface {
	Upload(ctx context.Context, localPath, destPath, contentType string) error
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}

// EpisodeRecorder persists completed episodes.
type EpisodeRecorder interface {
	SaveEpisode(ctx context.Context, ep *types.Episode) error
}

// Archiver copies completed transcripts somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, ep *types.Episode) error
}

// Options tunes the pool.
type Options struct {
	Workers      int
	QueueSize    int
	ScratchDir   string
	SignedURLTTL time.Duration
	// StageTimeout bounds each stage; zero means unbounded.
	StageTimeout time.Duration
}

// Deps are the pool's collaborators. Episodes and Archive may be nil.
type Deps struct {
	Store       status.Store
	Fetcher     Fetcher
	Transcoder  Transcoder
	Transcriber Transcriber
	Blobs       BlobStore
	Episodes    EpisodeRecorder
	Archive     Archiver
	Logger      *zap.Logger
}

// WorkerPool manages a pool of workers processing compression jobs
type WorkerPool struct {
	jobQueue chan *Job
	opts     Options
	deps     Deps
	logger   *zap.Logger

	mu        sync.Mutex
	active    map[string]struct{}
	scratches map[*scratch]struct{}
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(opts Options, deps Deps) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 7 * 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue:  make(chan *Job, opts.QueueSize),
		opts:      opts,
		deps:      deps,
		logger:    logger,
		active:    make(map[string]struct{}),
		scratches: make(map[*scratch]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start initializes all workers. Cancelling ctx aborts running jobs.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	wp.ctx, wp.cancel = context.WithCancel(ctx)
	wp.mu.Unlock()

	wp.logger.Info("starting worker pool", zap.Int("workers", wp.opts.Workers), zap.Int("queue_size", wp.opts.QueueSize))
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels in-flight jobs, drains the queue and waits for the workers.
// Jobs still queued end failed.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	cancel := wp.cancel
	wp.mu.Unlock()

	cancel()
	wp.wg.Wait()
	wp.logger.Info("worker pool stopped")
}

// Submit initialises the episode's record and queues the job without
// waiting for it. A job already queued or running for the same episode is
// left alone and Submit reports success.
func (wp *WorkerPool) Submit(job *Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrPoolStopped
	}
	if _, running := wp.active[job.EpisodeID]; running {
		wp.logger.Info("job already in progress", zap.String("episode_id", job.EpisodeID))
		return nil
	}

	rec := types.NewJobRecord(types.StatusDownloading, 0)
	rec.Message = stageMessages[types.StatusDownloading]
	wp.deps.Store.Set(job.EpisodeID, rec)

	select {
	case wp.jobQueue <- job:
	default:
		wp.deps.Store.Set(job.EpisodeID, failedRecord(0, ErrQueueFull))
		wp.logger.Warn("job rejected", zap.String("episode_id", job.EpisodeID), zap.Error(ErrQueueFull))
		return ErrQueueFull
	}
	wp.active[job.EpisodeID] = struct{}{}

	wp.logger.Info("job enqueued",
		zap.String("episode_id", job.EpisodeID),
		zap.String("user_id", job.UserID),
		zap.String("file_name", job.FileName))
	return nil
}

// InUse reports whether path is a scratch file of a job that is still running.
func (wp *WorkerPool) InUse(path string) bool {
	path = filepath.Clean(path)
	wp.mu.Lock()
	defer wp.mu.Unlock()
	for sc := range wp.scratches {
		if sc.owns(path) {
			return true
		}
	}
	return false
}

func (wp *WorkerPool) holdScratch(sc *scratch) {
	wp.mu.Lock()
	wp.scratches[sc] = struct{}{}
	wp.mu.Unlock()
}

func (wp *WorkerPool) dropScratch(sc *scratch) {
	sc.Release()
	wp.mu.Lock()
	delete(wp.scratches, sc)
	wp.mu.Unlock()
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for job := range wp.jobQueue {
		wp.runJob(id, job)
	}
}

func (wp *WorkerPool) runJob(workerID int, job *Job) {
	logger := wp.logger.With(zap.String("episode_id", job.EpisodeID), zap.Int("worker", workerID))
	run := newJobRun(wp.deps.Store, job.EpisodeID, func(write func()) {
		wp.mu.Lock()
		defer wp.mu.Unlock()
		write()
		delete(wp.active, job.EpisodeID)
	})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic processing job", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			run.fail(fmt.Errorf("worker panic: %v", r))
		}
	}()

	logger.Info("processing job")
	if err := wp.processJob(wp.ctx, logger, run, job); err != nil {
		var stageErr *transcription.StageError
		stage := "unknown"
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		logger.Error("job failed", zap.String("stage", stage), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		run.fail(err)
		return
	}
	logger.Info("job completed", zap.Duration("elapsed", time.Since(start)))
}

// processJob handles the complete pipeline. Scratch files are removed on
// every exit path.
func (wp *WorkerPool) processJob(ctx context.Context, logger *zap.Logger, run *jobRun, job *Job) error {
	sc, err := newScratch(wp.opts.ScratchDir, job.EpisodeID, logger)
	if err != nil {
		return transcription.NewStageError(transcription.StageFetch,
			fmt.Errorf("%w: create scratch directory: %v", transcription.ErrFetchFailed, err))
	}
	wp.holdScratch(sc)
	defer wp.dropScratch(sc)

	// Step 1: Fetch source audio
	inputPath := sc.path("input", job.inputExt())
	err = wp.stage(ctx, logger, transcription.StageFetch, func(ctx context.Context) error {
		fetched, err := wp.deps.Fetcher.Fetch(ctx, download.Request{
			BlobPath: job.FilePath,
			URL:      job.AudioURL,
			Dest:     inputPath,
		})
		sc.track(fetched)
		if err == nil {
			inputPath = fetched
		}
		return err
	})
	if err != nil {
		return err
	}

	// Step 2: Compress
	run.advance(types.StatusCompressing, progressCompressFloor)
	outputPath := sc.path("output", ".mp3")
	err = wp.stage(ctx, logger, transcription.StageTranscode, func(ctx context.Context) error {
		return wp.deps.Transcoder.Transcode(ctx, inputPath, outputPath, func(p int) {
			run.advance(types.StatusCompressing, Rescale(p, progressCompressFloor, progressCompressCeiling))
		})
	})
	if err != nil {
		return err
	}

	// Step 3: Transcribe
	run.advance(types.StatusTranscribing, progressTranscribeFloor)
	var result *types.TranscriptionResult
	err = wp.stage(ctx, logger, transcription.StageTranscribe, func(ctx context.Context) error {
		var err error
		result, err = wp.deps.Transcriber.Transcribe(ctx, outputPath, job.UserID)
		return err
	})
	if err != nil {
		return err
	}
	run.advance(types.StatusTranscribing, progressTranscribed)

	// Step 4: Paginate
	pages := transcript.Paginate(result.Text)
	if len(pages) == 0 {
		pages = []string{""}
	}

	// Step 5: Upload and sign
	objectPath := job.compressedObjectPath()
	var audioURL string
	err = wp.stage(ctx, logger, transcription.StageUpload, func(ctx context.Context) error {
		if err := wp.deps.Blobs.Upload(ctx, outputPath, objectPath, "audio/mpeg"); err != nil {
			return fmt.Errorf("%w: %v", transcription.ErrUploadFailed, err)
		}
		url, err := wp.deps.Blobs.SignedURL(ctx, objectPath, wp.opts.SignedURLTTL)
		if err != nil {
			return fmt.Errorf("%w: sign url: %v", transcription.ErrUploadFailed, err)
		}
		audioURL = url
		return nil
	})
	if err != nil {
		return err
	}

	segments := result.Segments
	if segments == nil {
		segments = []types.Segment{}
	}

	ep := &types.Episode{
		EpisodeID:          job.EpisodeID,
		UserID:             job.UserID,
		FileName:           job.FileName,
		CompressedFilePath: objectPath,
		AudioURL:           audioURL,
		Transcript:         result.Text,
		TotalPages:         len(pages),
		Segments:           segments,
		Duration:           result.Duration,
		WordCount:          transcript.WordCount(result.Text),
		CreatedAt:          time.Now(),
	}
	wp.recordEpisode(ctx, logger, ep)

	rec := types.NewJobRecord(types.StatusCompleted, progressDone)
	rec.Message = stageMessages[types.StatusCompleted]
	rec.AudioURL = audioURL
	rec.CompressedFilePath = objectPath
	rec.Transcript = result.Text
	rec.TranscriptPages = pages
	rec.TotalPages = len(pages)
	rec.Segments = segments
	run.complete(rec)

	wp.archive(logger, ep)
	return nil
}

// stage runs fn under the per-stage timeout and tags its error with the stage.
func (wp *WorkerPool) stage(ctx context.Context, logger *zap.Logger, name string, fn func(context.Context) error) error {
	if wp.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.opts.StageTimeout)
		defer cancel()
	}
	start := time.Now()
	if err := fn(ctx); err != nil {
		return transcription.NewStageError(name, err)
	}
	logger.Debug("stage finished", zap.String("stage", name), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (wp *WorkerPool) recordEpisode(ctx context.Context, logger *zap.Logger, ep *types.Episode) {
	if wp.deps.Episodes == nil {
		return
	}
	if err := wp.deps.Episodes.SaveEpisode(ctx, ep); err != nil {
		logger.Warn("failed to save episode metadata", zap.Error(err))
	}
}

// archive runs in the background; its outcome never touches the job record.
func (wp *WorkerPool) archive(logger *zap.Logger, ep *types.Episode) {
	if wp.deps.Archive == nil {
		return
	}
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		if err := wp.deps.Archive.Archive(wp.ctx, ep); err != nil {
			logger.Warn("transcript archive failed", zap.Error(err))
			return
		}
		logger.Info("transcript archived")
	}()
}
