package cleanup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// FileGuard reports files that must survive a sweep whatever their age.
type FileGuard interface {
	InUse(path string) bool
}

// Scheduler removes scratch files left behind by jobs that never reached
// their cleanup, e.g. after a crash.
type Scheduler struct {
	tempDir  string
	schedule string
	maxAge   time.Duration
	guard    FileGuard
	cron     *cron.Cron
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a new cleanup scheduler. schedule is a cron spec
// such as "@every 30m". guard may be nil.
func NewScheduler(tempDir, schedule string, maxAgeHours int, guard FileGuard, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		schedule: schedule,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		guard:    guard,
		cron:     cron.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs one sweep immediately and then on the schedule.
func (s *Scheduler) Start() error {
	s.logger.Info("running initial scratch cleanup", zap.String("dir", s.tempDir))
	s.Sweep()

	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()

	s.logger.Info("cleanup scheduler started",
		zap.String("schedule", s.schedule),
		zap.Duration("max_age", s.maxAge))
	return nil
}

// Stop stops the scheduler and waits for a running sweep.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}

// Sweep removes files older than the max age and returns how many were deleted.
func (s *Scheduler) Sweep() int {
	now := s.now()

	var deletedCount int
	var deletedSize int64

	err := filepath.WalkDir(s.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		if s.guard != nil && s.guard.InUse(path) {
			s.logger.Debug("keeping old scratch file of a running job", zap.String("file", filepath.Base(path)))
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to delete old scratch file", zap.String("path", path), zap.Error(err))
			return nil
		}
		deletedCount++
		deletedSize += info.Size()
		s.logger.Debug("deleted old scratch file",
			zap.String("file", filepath.Base(path)),
			zap.Duration("age", age.Round(time.Minute)))
		return nil
	})
	if err != nil {
		s.logger.Error("scratch cleanup failed", zap.Error(err))
	}

	if deletedCount > 0 {
		s.logger.Info("scratch cleanup complete",
			zap.Int("files_deleted", deletedCount),
			zap.Float64("mb_freed", float64(deletedSize)/(1024*1024)))
	}
	return deletedCount
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
